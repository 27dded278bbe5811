package feed_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/chirpnet/chirp/feed"
	"github.com/chirpnet/chirp/internal/dynamotest"
	"github.com/chirpnet/chirp/store"
)

// countingAPI counts store calls to prove validation happens first.
type countingAPI struct {
	*dynamotest.DB
	queries int64
	gets    int64
}

func (c *countingAPI) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	atomic.AddInt64(&c.queries, 1)
	return c.DB.Query(ctx, params, optFns...)
}

func (c *countingAPI) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	atomic.AddInt64(&c.gets, 1)
	return c.DB.GetItem(ctx, params, optFns...)
}

func TestReadsRejectOversizedLimit(t *testing.T) {
	api := &countingAPI{DB: dynamotest.New()}
	reader := feed.NewReader(store.New(api, store.DefaultConfig()))
	ctx := context.Background()

	calls := []struct {
		name string
		read func(limit int) error
	}{
		{"GetTweets", func(limit int) error {
			_, err := reader.GetTweets(ctx, "alice", "alice", limit, "")
			return err
		}},
		{"GetMyTimeline", func(limit int) error {
			_, err := reader.GetMyTimeline(ctx, "alice", limit, "")
			return err
		}},
		{"GetLikes", func(limit int) error {
			_, err := reader.GetLikes(ctx, "alice", "alice", limit, "")
			return err
		}},
	}

	for _, call := range calls {
		for _, limit := range []int{26, 100, 0, -1} {
			if err := call.read(limit); !errors.Is(err, feed.ErrLimitExceeded) {
				t.Errorf("%s(limit=%d) err = %v, want ErrLimitExceeded", call.name, limit, err)
			}
		}
	}
	if api.queries != 0 || api.gets != 0 {
		t.Errorf("store was touched: %d queries, %d gets", api.queries, api.gets)
	}
}

func TestGetTweetsSingleTweet(t *testing.T) {
	e := newEnv(t)
	e.seedUser(t, "alice")
	text := "abcdefghijklmnop"
	tweet := e.mustTweet(t, "alice", text)

	page, err := e.reader.GetTweets(context.Background(), "alice", "alice", 25, "")
	if err != nil {
		t.Fatalf("GetTweets: %v", err)
	}
	if page.NextToken != "" {
		t.Errorf("nextToken = %q, want empty", page.NextToken)
	}
	if len(page.Tweets) != 1 {
		t.Fatalf("tweets = %d, want 1", len(page.Tweets))
	}

	got := page.Tweets[0]
	if got.ID != tweet.ID || got.Text != text {
		t.Errorf("tweet = %+v", got)
	}
	if got.LikesCount != 0 || got.RetweetsCount != 0 || got.RepliesCount != 0 {
		t.Errorf("counters not zero: %+v", got)
	}
	if got.Liked || got.Retweeted {
		t.Errorf("flags set on fresh tweet: %+v", got)
	}
	if got.Profile == nil || got.Profile.ID != "alice" || got.Profile.TweetsCount != 1 {
		t.Errorf("profile = %+v", got.Profile)
	}
}

func TestSelfRetweetViews(t *testing.T) {
	e := newEnv(t)
	e.seedUser(t, "alice")
	tweet := e.mustTweet(t, "alice", "abcdefghijklmnop")

	if _, err := e.engine.Retweet(context.Background(), "alice", tweet.ID); err != nil {
		t.Fatalf("Retweet: %v", err)
	}

	// The tweet stream shows the retweet first, with the enriched
	// original embedded.
	page, err := e.reader.GetTweets(context.Background(), "alice", "alice", 25, "")
	if err != nil {
		t.Fatalf("GetTweets: %v", err)
	}
	if len(page.Tweets) != 2 {
		t.Fatalf("tweets = %d, want 2", len(page.Tweets))
	}
	rt := page.Tweets[0]
	if rt.Type != feed.TweetTypeRetweet {
		t.Fatalf("first item type = %q, want RETWEET", rt.Type)
	}
	if rt.Profile == nil || rt.Profile.TweetsCount != 2 {
		t.Errorf("retweet profile = %+v", rt.Profile)
	}
	if rt.RetweetOf == nil {
		t.Fatal("retweet has no embedded original")
	}
	if rt.RetweetOf.ID != tweet.ID || rt.RetweetOf.RetweetsCount != 1 || !rt.RetweetOf.Retweeted {
		t.Errorf("embedded original = %+v", rt.RetweetOf)
	}
	orig := page.Tweets[1]
	if orig.ID != tweet.ID || orig.RetweetsCount != 1 || !orig.Retweeted {
		t.Errorf("original = %+v", orig)
	}

	// The home timeline never shows a self-retweet.
	timeline, err := e.reader.GetMyTimeline(context.Background(), "alice", 25, "")
	if err != nil {
		t.Fatalf("GetMyTimeline: %v", err)
	}
	if len(timeline.Tweets) != 1 {
		t.Fatalf("timeline tweets = %d, want 1", len(timeline.Tweets))
	}
	if timeline.Tweets[0].ID != tweet.ID || !timeline.Tweets[0].Retweeted {
		t.Errorf("timeline tweet = %+v", timeline.Tweets[0])
	}

	// Unretweet restores the single-original state in both views.
	if _, err := e.engine.Unretweet(context.Background(), "alice", tweet.ID); err != nil {
		t.Fatalf("Unretweet: %v", err)
	}
	page, err = e.reader.GetTweets(context.Background(), "alice", "alice", 25, "")
	if err != nil {
		t.Fatalf("GetTweets after unretweet: %v", err)
	}
	if len(page.Tweets) != 1 || page.Tweets[0].RetweetsCount != 0 || page.Tweets[0].Retweeted {
		t.Errorf("after unretweet: %+v", page.Tweets)
	}
	timeline, err = e.reader.GetMyTimeline(context.Background(), "alice", 25, "")
	if err != nil {
		t.Fatalf("GetMyTimeline after unretweet: %v", err)
	}
	if len(timeline.Tweets) != 1 || timeline.Tweets[0].RetweetsCount != 0 {
		t.Errorf("timeline after unretweet: %+v", timeline.Tweets)
	}
}

func TestRetweetOfAnotherUserInTimeline(t *testing.T) {
	e := newEnv(t)
	e.seedUser(t, "alice")
	e.seedUser(t, "bob")
	tweet := e.mustTweet(t, "bob", "bob's tweet")

	if _, err := e.engine.Retweet(context.Background(), "alice", tweet.ID); err != nil {
		t.Fatalf("Retweet: %v", err)
	}

	// Another user's retweet shows in both the stream and the timeline.
	timeline, err := e.reader.GetMyTimeline(context.Background(), "alice", 25, "")
	if err != nil {
		t.Fatalf("GetMyTimeline: %v", err)
	}
	if len(timeline.Tweets) != 1 {
		t.Fatalf("timeline tweets = %d, want 1", len(timeline.Tweets))
	}
	rt := timeline.Tweets[0]
	if rt.Type != feed.TweetTypeRetweet || rt.RetweetOf == nil {
		t.Fatalf("timeline item = %+v", rt)
	}
	if rt.RetweetOf.ID != tweet.ID || rt.RetweetOf.RetweetsCount != 1 || !rt.RetweetOf.Retweeted {
		t.Errorf("embedded original = %+v", rt.RetweetOf)
	}
	if rt.RetweetOf.Profile == nil || rt.RetweetOf.Profile.ID != "bob" {
		t.Errorf("embedded original profile = %+v", rt.RetweetOf.Profile)
	}

	if _, err := e.engine.Unretweet(context.Background(), "alice", tweet.ID); err != nil {
		t.Fatalf("Unretweet: %v", err)
	}
	timeline, err = e.reader.GetMyTimeline(context.Background(), "alice", 25, "")
	if err != nil {
		t.Fatalf("GetMyTimeline after unretweet: %v", err)
	}
	if len(timeline.Tweets) != 0 {
		t.Errorf("timeline after unretweet = %+v", timeline.Tweets)
	}
}

func TestGetLikes(t *testing.T) {
	e := newEnv(t)
	e.seedUser(t, "alice")
	tweet := e.mustTweet(t, "alice", "abcdefghijklmnop")

	if _, err := e.engine.Like(context.Background(), "alice", tweet.ID); err != nil {
		t.Fatalf("Like: %v", err)
	}

	page, err := e.reader.GetLikes(context.Background(), "alice", "alice", 25, "")
	if err != nil {
		t.Fatalf("GetLikes: %v", err)
	}
	if page.NextToken != "" {
		t.Errorf("nextToken = %q, want empty", page.NextToken)
	}
	if len(page.Tweets) != 1 {
		t.Fatalf("tweets = %d, want 1", len(page.Tweets))
	}
	got := page.Tweets[0]
	if got.ID != tweet.ID || !got.Liked || got.LikesCount != 1 {
		t.Errorf("liked tweet = %+v", got)
	}
	if got.Profile == nil || got.Profile.LikesCount != 1 {
		t.Errorf("profile = %+v", got.Profile)
	}

	if _, err := e.engine.Unlike(context.Background(), "alice", tweet.ID); err != nil {
		t.Fatalf("Unlike: %v", err)
	}
	page, err = e.reader.GetLikes(context.Background(), "alice", "alice", 25, "")
	if err != nil {
		t.Fatalf("GetLikes after unlike: %v", err)
	}
	if len(page.Tweets) != 0 {
		t.Errorf("tweets after unlike = %+v", page.Tweets)
	}
}

func TestGetTweetsPagination(t *testing.T) {
	e := newEnv(t)
	e.seedUser(t, "alice")

	const total = 8
	var posted []string
	for i := 0; i < total; i++ {
		tweet := e.mustTweet(t, "alice", fmt.Sprintf("tweet %d", i))
		posted = append(posted, tweet.ID)
	}

	// Walk the stream in pages of 3 and check completeness, order and
	// no overlap.
	var seen []string
	token := ""
	pages := 0
	for {
		page, err := e.reader.GetTweets(context.Background(), "alice", "alice", 3, token)
		if err != nil {
			t.Fatalf("GetTweets page %d: %v", pages, err)
		}
		for _, tw := range page.Tweets {
			seen = append(seen, tw.ID)
		}
		pages++
		if page.NextToken == "" {
			break
		}
		token = page.NextToken
	}

	if pages != 3 {
		t.Errorf("pages = %d, want 3", pages)
	}
	if len(seen) != total {
		t.Fatalf("saw %d tweets, want %d", len(seen), total)
	}
	for i, id := range seen {
		want := posted[total-1-i] // newest first
		if id != want {
			t.Errorf("position %d: got %s, want %s", i, id, want)
		}
	}
}

func TestGetTweetsExactFitHasNoToken(t *testing.T) {
	e := newEnv(t)
	e.seedUser(t, "alice")
	for i := 0; i < 4; i++ {
		e.mustTweet(t, "alice", fmt.Sprintf("tweet %d", i))
	}

	page, err := e.reader.GetTweets(context.Background(), "alice", "alice", 4, "")
	if err != nil {
		t.Fatalf("GetTweets: %v", err)
	}
	if len(page.Tweets) != 4 {
		t.Fatalf("tweets = %d, want 4", len(page.Tweets))
	}
	if page.NextToken != "" {
		t.Errorf("nextToken = %q, want empty on exact fit", page.NextToken)
	}
}

func TestGetMyTimelinePagination(t *testing.T) {
	e := newEnv(t)
	e.seedUser(t, "alice")

	for i := 0; i < 5; i++ {
		e.mustTweet(t, "alice", fmt.Sprintf("tweet %d", i))
	}

	first, err := e.reader.GetMyTimeline(context.Background(), "alice", 3, "")
	if err != nil {
		t.Fatalf("GetMyTimeline: %v", err)
	}
	if len(first.Tweets) != 3 || first.NextToken == "" {
		t.Fatalf("first page: %d tweets, token %q", len(first.Tweets), first.NextToken)
	}

	second, err := e.reader.GetMyTimeline(context.Background(), "alice", 3, first.NextToken)
	if err != nil {
		t.Fatalf("GetMyTimeline page 2: %v", err)
	}
	if len(second.Tweets) != 2 || second.NextToken != "" {
		t.Fatalf("second page: %d tweets, token %q", len(second.Tweets), second.NextToken)
	}

	ids := make(map[string]bool)
	for _, tw := range append(first.Tweets, second.Tweets...) {
		if ids[tw.ID] {
			t.Errorf("duplicate tweet %s across pages", tw.ID)
		}
		ids[tw.ID] = true
	}
}

func TestGetTweetsBadToken(t *testing.T) {
	e := newEnv(t)
	e.seedUser(t, "alice")

	_, err := e.reader.GetTweets(context.Background(), "alice", "alice", 25, "not a token!")
	if err == nil {
		t.Fatal("expected error for malformed token")
	}
}
