package feed

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/chirpnet/chirp/internal/cursor"
	"github.com/chirpnet/chirp/store"
)

// MaxPageSize is the hard ceiling on feed page sizes. Requests above it
// are rejected before any store call.
const MaxPageSize = 25

// Profile is the author snapshot attached to every returned tweet view.
type Profile struct {
	ID             string `json:"id"`
	Name           string `json:"name,omitempty"`
	ScreenName     string `json:"screenName,omitempty"`
	CreatedAt      string `json:"createdAt,omitempty"`
	TweetsCount    int    `json:"tweetsCount"`
	LikesCount     int    `json:"likesCount"`
	FollowersCount int    `json:"followersCount"`
	FollowingCount int    `json:"followingCount"`
}

// TweetView is a tweet enriched for a specific viewer: liked/retweeted
// flags relative to the viewer, the author's profile snapshot and, for
// retweets, the embedded original.
type TweetView struct {
	ID            string     `json:"id"`
	Type          TweetType  `json:"type"`
	Text          string     `json:"text,omitempty"`
	CreatedAt     string     `json:"createdAt"`
	RepliesCount  int        `json:"repliesCount"`
	LikesCount    int        `json:"likesCount"`
	RetweetsCount int        `json:"retweetsCount"`
	HashTags      []string   `json:"hashTags,omitempty"`
	Liked         bool       `json:"liked"`
	Retweeted     bool       `json:"retweeted"`
	Profile       *Profile   `json:"profile,omitempty"`
	RetweetOf     *TweetView `json:"retweetOf,omitempty"`
}

// TweetPage is one page of feed results. NextToken is an opaque
// continuation cursor, empty when the relation is exhausted.
type TweetPage struct {
	Tweets    []TweetView `json:"tweets"`
	NextToken string      `json:"nextToken,omitempty"`
}

// Reader implements the paginated feed reads. A Reader holds no
// per-request state and is safe for concurrent use.
type Reader struct {
	store *store.Store
}

// NewReader creates a Reader backed by the given store.
func NewReader(s *store.Store) *Reader {
	return &Reader{store: s}
}

// GetTweets returns a page of userID's tweet stream, newest first:
// originals, replies and retweet records, with retweets carrying the
// embedded original. Flags are computed relative to viewerID.
func (r *Reader) GetTweets(ctx context.Context, viewerID, userID string, limit int, nextToken string) (*TweetPage, error) {
	if err := checkLimit(limit); err != nil {
		return nil, err
	}
	cfg := r.store.Config()

	startKey, err := decodeStartKey(nextToken)
	if err != nil {
		return nil, err
	}

	result, err := r.store.Query(ctx, store.QueryInput{
		TableName:              cfg.TweetsTable,
		IndexName:              ByCreatorIndex,
		KeyConditionExpression: "creator = :creator",
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":creator": &types.AttributeValueMemberS{Value: userID},
		},
		Limit:             int32(limit) + 1,
		ScanIndexForward:  aws.Bool(false),
		ExclusiveStartKey: startKey,
	})
	if err != nil {
		return nil, fmt.Errorf("query tweets by creator: %w", err)
	}

	items, token, err := trimPage(result.Items, limit, "creator", "id")
	if err != nil {
		return nil, err
	}

	h := r.newHydrator(viewerID)
	page := &TweetPage{Tweets: []TweetView{}, NextToken: token}
	for _, raw := range items {
		var tweet Tweet
		if err := attributevalue.UnmarshalMap(raw, &tweet); err != nil {
			return nil, fmt.Errorf("unmarshal tweet: %w", err)
		}
		view, err := h.enrich(ctx, &tweet)
		if err != nil {
			return nil, err
		}
		page.Tweets = append(page.Tweets, *view)
	}
	return page, nil
}

// GetMyTimeline returns a page of the caller's timeline relation, newest
// first. By construction the relation excludes the caller's retweets of
// their own tweets; retweets of others appear with the embedded original.
func (r *Reader) GetMyTimeline(ctx context.Context, viewerID string, limit int, nextToken string) (*TweetPage, error) {
	if err := checkLimit(limit); err != nil {
		return nil, err
	}
	cfg := r.store.Config()

	startKey, err := decodeStartKey(nextToken)
	if err != nil {
		return nil, err
	}

	result, err := r.store.Query(ctx, store.QueryInput{
		TableName:              cfg.TimelinesTable,
		KeyConditionExpression: "userId = :userId",
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":userId": &types.AttributeValueMemberS{Value: viewerID},
		},
		Limit:             int32(limit) + 1,
		ScanIndexForward:  aws.Bool(false),
		ExclusiveStartKey: startKey,
	})
	if err != nil {
		return nil, fmt.Errorf("query timeline: %w", err)
	}

	items, token, err := trimPage(result.Items, limit, "userId", "tweetId")
	if err != nil {
		return nil, err
	}

	h := r.newHydrator(viewerID)
	page := &TweetPage{Tweets: []TweetView{}, NextToken: token}
	for _, raw := range items {
		var entry TimelineEntry
		if err := attributevalue.UnmarshalMap(raw, &entry); err != nil {
			return nil, fmt.Errorf("unmarshal timeline entry: %w", err)
		}
		tweet, err := h.loadTweet(ctx, entry.TweetID)
		if err != nil {
			return nil, err
		}
		view, err := h.enrich(ctx, tweet)
		if err != nil {
			return nil, err
		}
		page.Tweets = append(page.Tweets, *view)
	}
	return page, nil
}

// GetLikes returns a page of userID's liked tweets, newest first, each
// carrying the tweet's current counters and decorated liked.
func (r *Reader) GetLikes(ctx context.Context, viewerID, userID string, limit int, nextToken string) (*TweetPage, error) {
	if err := checkLimit(limit); err != nil {
		return nil, err
	}
	cfg := r.store.Config()

	startKey, err := decodeStartKey(nextToken)
	if err != nil {
		return nil, err
	}

	result, err := r.store.Query(ctx, store.QueryInput{
		TableName:              cfg.LikesTable,
		KeyConditionExpression: "userId = :userId",
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":userId": &types.AttributeValueMemberS{Value: userID},
		},
		Limit:             int32(limit) + 1,
		ScanIndexForward:  aws.Bool(false),
		ExclusiveStartKey: startKey,
	})
	if err != nil {
		return nil, fmt.Errorf("query likes: %w", err)
	}

	items, token, err := trimPage(result.Items, limit, "userId", "tweetId")
	if err != nil {
		return nil, err
	}

	h := r.newHydrator(viewerID)
	page := &TweetPage{Tweets: []TweetView{}, NextToken: token}
	for _, raw := range items {
		var like LikeRecord
		if err := attributevalue.UnmarshalMap(raw, &like); err != nil {
			return nil, fmt.Errorf("unmarshal like record: %w", err)
		}
		tweet, err := h.loadTweet(ctx, like.TweetID)
		if err != nil {
			return nil, err
		}
		view, err := h.enrich(ctx, tweet)
		if err != nil {
			return nil, err
		}
		view.Liked = true
		page.Tweets = append(page.Tweets, *view)
	}
	return page, nil
}

func checkLimit(limit int) error {
	if limit <= 0 || limit > MaxPageSize {
		return ErrLimitExceeded
	}
	return nil
}

// decodeStartKey turns a continuation token back into an exclusive start
// key. All feed sort keys are strings.
func decodeStartKey(nextToken string) (map[string]types.AttributeValue, error) {
	key, err := cursor.Decode(nextToken)
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, nil
	}
	start := make(map[string]types.AttributeValue, len(key))
	for k, v := range key {
		start[k] = &types.AttributeValueMemberS{Value: v}
	}
	return start, nil
}

// trimPage applies the fetch-one-extra pagination contract: the query
// asked for limit+1 items, so more than limit results means another page
// exists and the token points at the last returned item's key. A short
// page yields the empty token even when the store reported a
// LastEvaluatedKey.
func trimPage(items []map[string]types.AttributeValue, limit int, keyAttrs ...string) ([]map[string]types.AttributeValue, string, error) {
	if len(items) <= limit {
		return items, "", nil
	}
	items = items[:limit]

	last := items[len(items)-1]
	key := make(map[string]string, len(keyAttrs))
	for _, attr := range keyAttrs {
		s, ok := last[attr].(*types.AttributeValueMemberS)
		if !ok {
			return nil, "", fmt.Errorf("chirp: non-string key attribute %q", attr)
		}
		key[attr] = s.Value
	}
	token, err := cursor.Encode(key)
	if err != nil {
		return nil, "", err
	}
	return items, token, nil
}

// hydrator enriches tweets for one read call, memoizing profile and flag
// lookups within the call. Nothing is cached across calls.
type hydrator struct {
	store    *store.Store
	viewerID string

	profiles  map[string]*Profile
	liked     map[string]bool
	retweeted map[string]bool
}

func (r *Reader) newHydrator(viewerID string) *hydrator {
	return &hydrator{
		store:     r.store,
		viewerID:  viewerID,
		profiles:  make(map[string]*Profile),
		liked:     make(map[string]bool),
		retweeted: make(map[string]bool),
	}
}

// enrich builds the viewer-relative view of a tweet. For RETWEET records
// the embedded original is fetched fresh for authoritative counters and
// enriched in turn.
func (h *hydrator) enrich(ctx context.Context, tweet *Tweet) (*TweetView, error) {
	view := &TweetView{
		ID:            tweet.ID,
		Type:          tweet.Type,
		Text:          tweet.Text,
		CreatedAt:     tweet.CreatedAt,
		RepliesCount:  tweet.RepliesCount,
		LikesCount:    tweet.LikesCount,
		RetweetsCount: tweet.RetweetsCount,
		HashTags:      tweet.HashTags,
	}

	profile, err := h.profile(ctx, tweet.Creator)
	if err != nil {
		return nil, err
	}
	view.Profile = profile

	if tweet.Type == TweetTypeRetweet {
		original, err := h.loadTweet(ctx, tweet.RetweetOf)
		if err != nil {
			return nil, err
		}
		inner, err := h.enrich(ctx, original)
		if err != nil {
			return nil, err
		}
		view.RetweetOf = inner
		return view, nil
	}

	view.Liked, err = h.hasJoinRecord(ctx, h.store.Config().LikesTable, tweet.ID, h.liked)
	if err != nil {
		return nil, err
	}
	view.Retweeted, err = h.hasJoinRecord(ctx, h.store.Config().RetweetsTable, tweet.ID, h.retweeted)
	if err != nil {
		return nil, err
	}
	return view, nil
}

func (h *hydrator) loadTweet(ctx context.Context, tweetID string) (*Tweet, error) {
	raw, err := h.store.Get(ctx, h.store.Config().TweetsTable, tweetKey(tweetID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrTweetNotFound
		}
		return nil, fmt.Errorf("load tweet %s: %w", tweetID, err)
	}
	var tweet Tweet
	if err := attributevalue.UnmarshalMap(raw, &tweet); err != nil {
		return nil, fmt.Errorf("unmarshal tweet %s: %w", tweetID, err)
	}
	return &tweet, nil
}

func (h *hydrator) profile(ctx context.Context, userID string) (*Profile, error) {
	if p, ok := h.profiles[userID]; ok {
		return p, nil
	}
	raw, err := h.store.Get(ctx, h.store.Config().UsersTable, userKey(userID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.profiles[userID] = nil
			return nil, nil
		}
		return nil, fmt.Errorf("load user %s: %w", userID, err)
	}
	var user User
	if err := attributevalue.UnmarshalMap(raw, &user); err != nil {
		return nil, fmt.Errorf("unmarshal user %s: %w", userID, err)
	}
	p := &Profile{
		ID:             user.ID,
		Name:           user.Name,
		ScreenName:     user.ScreenName,
		CreatedAt:      user.CreatedAt,
		TweetsCount:    user.TweetsCount,
		LikesCount:     user.LikesCount,
		FollowersCount: user.FollowersCount,
		FollowingCount: user.FollowingCount,
	}
	h.profiles[userID] = p
	return p, nil
}

// hasJoinRecord reports whether the viewer has a join record for the
// tweet in the given table, memoized per call.
func (h *hydrator) hasJoinRecord(ctx context.Context, table, tweetID string, memo map[string]bool) (bool, error) {
	if v, ok := memo[tweetID]; ok {
		return v, nil
	}
	_, err := h.store.Get(ctx, table, userTweetKey(h.viewerID, tweetID))
	switch {
	case err == nil:
		memo[tweetID] = true
		return true, nil
	case errors.Is(err, store.ErrNotFound):
		memo[tweetID] = false
		return false, nil
	default:
		return false, fmt.Errorf("check join record: %w", err)
	}
}
