package feed_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/chirpnet/chirp/feed"
	"github.com/chirpnet/chirp/internal/dynamotest"
	"github.com/chirpnet/chirp/store"
)

// env wires an engine and reader to an in-memory store with the feed's
// table layout.
type env struct {
	db     *dynamotest.DB
	store  *store.Store
	engine *feed.Engine
	reader *feed.Reader
}

func newEnv(t *testing.T) *env {
	t.Helper()

	db := dynamotest.New()
	cfg := store.DefaultConfig()
	db.CreateTable(cfg.UsersTable, dynamotest.Schema{HashKey: "id"})
	db.CreateTable(cfg.TweetsTable, dynamotest.Schema{HashKey: "id"})
	db.CreateIndex(cfg.TweetsTable, feed.ByCreatorIndex, dynamotest.Index{HashKey: "creator", RangeKey: "id"})
	db.CreateIndex(cfg.TweetsTable, feed.RetweetsByCreatorIndex, dynamotest.Index{HashKey: "creator", RangeKey: "retweetOf"})
	db.CreateTable(cfg.TimelinesTable, dynamotest.Schema{HashKey: "userId", RangeKey: "tweetId"})
	db.CreateTable(cfg.LikesTable, dynamotest.Schema{HashKey: "userId", RangeKey: "tweetId"})
	db.CreateTable(cfg.RetweetsTable, dynamotest.Schema{HashKey: "userId", RangeKey: "tweetId"})

	s := store.New(db, cfg)

	// Sequential ids keep newest-first ordering deterministic.
	seq := 0
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	engine := feed.NewEngine(s,
		feed.WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("01TWEET%012d", seq)
		}),
		feed.WithClock(func() time.Time {
			seq++
			return base.Add(time.Duration(seq) * time.Second)
		}),
	)

	return &env{
		db:     db,
		store:  s,
		engine: engine,
		reader: feed.NewReader(s),
	}
}

func (e *env) seedUser(t *testing.T, id string) {
	t.Helper()
	err := e.db.Seed(store.DefaultConfig().UsersTable, feed.User{
		ID:         id,
		Name:       "user " + id,
		ScreenName: id,
		CreatedAt:  "2024-05-01T00:00:00Z",
	})
	if err != nil {
		t.Fatalf("seed user %s: %v", id, err)
	}
}

func (e *env) getUser(t *testing.T, id string) feed.User {
	t.Helper()
	raw, err := e.store.Get(context.Background(), store.DefaultConfig().UsersTable, store.PK{
		"id": &types.AttributeValueMemberS{Value: id},
	})
	if err != nil {
		t.Fatalf("get user %s: %v", id, err)
	}
	var user feed.User
	if err := attributevalue.UnmarshalMap(raw, &user); err != nil {
		t.Fatalf("unmarshal user %s: %v", id, err)
	}
	return user
}

func (e *env) getTweet(t *testing.T, id string) feed.Tweet {
	t.Helper()
	raw, err := e.store.Get(context.Background(), store.DefaultConfig().TweetsTable, store.PK{
		"id": &types.AttributeValueMemberS{Value: id},
	})
	if err != nil {
		t.Fatalf("get tweet %s: %v", id, err)
	}
	var tweet feed.Tweet
	if err := attributevalue.UnmarshalMap(raw, &tweet); err != nil {
		t.Fatalf("unmarshal tweet %s: %v", id, err)
	}
	return tweet
}

func (e *env) mustTweet(t *testing.T, userID, text string) *feed.Tweet {
	t.Helper()
	tweet, err := e.engine.CreateTweet(context.Background(), userID, text)
	if err != nil {
		t.Fatalf("create tweet for %s: %v", userID, err)
	}
	return tweet
}
