package feed

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/chirpnet/chirp/store"
)

// Engine implements the feed mutations. Each operation submits a single
// atomic transaction; on any condition failure the store applies nothing
// and the failure surfaces as a domain error. The Engine holds no
// per-request state and is safe for concurrent use.
type Engine struct {
	store *store.Store
	newID func() string
	now   func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithIDGenerator overrides tweet id generation. Generated ids must be
// unique and lexicographically time-sortable.
func WithIDGenerator(fn func() string) EngineOption {
	return func(e *Engine) { e.newID = fn }
}

// WithClock overrides the engine's clock.
func WithClock(fn func() time.Time) EngineOption {
	return func(e *Engine) { e.now = fn }
}

// NewEngine creates an Engine backed by the given store.
func NewEngine(s *store.Store, opts ...EngineOption) *Engine {
	e := &Engine{
		store: s,
		newID: func() string { return uuid.Must(uuid.NewV7()).String() },
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateTweet stores a new ORIGINAL tweet, inserts it into the caller's
// timeline and increments the caller's tweetsCount, atomically. Returns
// ErrUserNotFound when the caller has no user record.
func (e *Engine) CreateTweet(ctx context.Context, callerID, text string) (*Tweet, error) {
	cfg := e.store.Config()
	now := e.now().UTC().Format(time.RFC3339)

	tweet := &Tweet{
		ID:        e.newID(),
		Type:      TweetTypeOriginal,
		Creator:   callerID,
		Text:      text,
		CreatedAt: now,
		HashTags:  ExtractHashTags(text),
	}

	tweetItem, err := attributevalue.MarshalMap(tweet)
	if err != nil {
		return nil, fmt.Errorf("marshal tweet: %w", err)
	}
	entryItem, err := attributevalue.MarshalMap(TimelineEntry{
		UserID:    callerID,
		TweetID:   tweet.ID,
		Timestamp: now,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal timeline entry: %w", err)
	}

	items := []types.TransactWriteItem{
		{
			Put: &types.Put{
				TableName:           aws.String(cfg.TweetsTable),
				Item:                tweetItem,
				ConditionExpression: aws.String("attribute_not_exists(id)"),
			},
		},
		{
			Put: &types.Put{
				TableName: aws.String(cfg.TimelinesTable),
				Item:      entryItem,
			},
		},
	}
	userIndex := len(items)
	items = append(items, counterUpdate(cfg.UsersTable, userKey(callerID), "tweetsCount", 1))

	if err := e.store.Transact(ctx, items); err != nil {
		var cond *store.ConditionFailedError
		if errors.As(err, &cond) {
			if cond.Index == userIndex {
				return nil, ErrUserNotFound
			}
			return nil, ErrTransactionConflict
		}
		if errors.Is(err, store.ErrTransactionConflict) {
			return nil, ErrTransactionConflict
		}
		return nil, fmt.Errorf("create tweet: %w", err)
	}
	return tweet, nil
}

// Retweet creates a RETWEET tweet record plus the retweet join record for
// (caller, tweet), bumps both counters, and, when the caller is not the
// tweet's creator, inserts the retweet into the caller's timeline. The
// join record's creation condition is the uniqueness gate: a second
// retweet of the same tweet fails with ErrDuplicateAction.
func (e *Engine) Retweet(ctx context.Context, callerID, tweetID string) (bool, error) {
	cfg := e.store.Config()

	tweet, err := e.loadTweet(ctx, tweetID)
	if err != nil {
		return false, err
	}

	now := e.now().UTC().Format(time.RFC3339)
	retweet := &Tweet{
		ID:        e.newID(),
		Type:      TweetTypeRetweet,
		Creator:   callerID,
		CreatedAt: now,
		RetweetOf: tweetID,
	}

	retweetItem, err := attributevalue.MarshalMap(retweet)
	if err != nil {
		return false, fmt.Errorf("marshal retweet: %w", err)
	}
	joinItem, err := attributevalue.MarshalMap(RetweetRecord{
		UserID:    callerID,
		TweetID:   tweetID,
		RetweetID: retweet.ID,
		CreatedAt: now,
	})
	if err != nil {
		return false, fmt.Errorf("marshal retweet record: %w", err)
	}

	items := []types.TransactWriteItem{
		{
			Put: &types.Put{
				TableName:           aws.String(cfg.TweetsTable),
				Item:                retweetItem,
				ConditionExpression: aws.String("attribute_not_exists(id)"),
			},
		},
	}
	joinIndex := len(items)
	items = append(items,
		types.TransactWriteItem{
			Put: &types.Put{
				TableName:           aws.String(cfg.RetweetsTable),
				Item:                joinItem,
				ConditionExpression: aws.String("attribute_not_exists(tweetId)"),
			},
		},
		counterUpdate(cfg.TweetsTable, tweetKey(tweetID), "retweetsCount", 1),
		counterUpdate(cfg.UsersTable, userKey(callerID), "tweetsCount", 1),
	)

	// A self-retweet never gets a timeline entry: the original already
	// lives in the caller's timeline.
	if tweet.Creator != callerID {
		entryItem, err := attributevalue.MarshalMap(TimelineEntry{
			UserID:    callerID,
			TweetID:   retweet.ID,
			Timestamp: now,
			RetweetOf: tweetID,
		})
		if err != nil {
			return false, fmt.Errorf("marshal timeline entry: %w", err)
		}
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName: aws.String(cfg.TimelinesTable),
				Item:      entryItem,
			},
		})
	}

	if err := e.store.Transact(ctx, items); err != nil {
		var cond *store.ConditionFailedError
		if errors.As(err, &cond) {
			if cond.Index == joinIndex {
				return false, ErrDuplicateAction
			}
			return false, ErrTransactionConflict
		}
		if errors.Is(err, store.ErrTransactionConflict) {
			return false, ErrTransactionConflict
		}
		return false, fmt.Errorf("retweet: %w", err)
	}
	return true, nil
}

// Unretweet removes the caller's retweet of a tweet: the RETWEET tweet
// record, the join record, both counter increments and, for another
// user's tweet, the timeline entry. The join record is looked up outside
// the transaction to learn the retweet's own tweet id; the deletions'
// conditions re-validate existence at commit time, so a racing unretweet
// fails with ErrTransactionConflict instead of double-decrementing.
func (e *Engine) Unretweet(ctx context.Context, callerID, tweetID string) (bool, error) {
	cfg := e.store.Config()

	joinRaw, err := e.store.Get(ctx, cfg.RetweetsTable, userTweetKey(callerID, tweetID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, ErrRetweetNotFound
		}
		return false, fmt.Errorf("load retweet record: %w", err)
	}
	var join RetweetRecord
	if err := attributevalue.UnmarshalMap(joinRaw, &join); err != nil {
		return false, fmt.Errorf("unmarshal retweet record: %w", err)
	}

	tweet, err := e.loadTweet(ctx, tweetID)
	if err != nil {
		return false, err
	}

	items := []types.TransactWriteItem{
		{
			Delete: &types.Delete{
				TableName:           aws.String(cfg.TweetsTable),
				Key:                 tweetKey(join.RetweetID),
				ConditionExpression: aws.String("attribute_exists(id)"),
			},
		},
		{
			Delete: &types.Delete{
				TableName:           aws.String(cfg.RetweetsTable),
				Key:                 userTweetKey(callerID, tweetID),
				ConditionExpression: aws.String("attribute_exists(tweetId)"),
			},
		},
		counterUpdate(cfg.TweetsTable, tweetKey(tweetID), "retweetsCount", -1),
		counterUpdate(cfg.UsersTable, userKey(callerID), "tweetsCount", -1),
	}

	if tweet.Creator != callerID {
		items = append(items, types.TransactWriteItem{
			Delete: &types.Delete{
				TableName: aws.String(cfg.TimelinesTable),
				Key:       userTweetKey(callerID, join.RetweetID),
			},
		})
	}

	if err := e.store.Transact(ctx, items); err != nil {
		var cond *store.ConditionFailedError
		if errors.As(err, &cond) || errors.Is(err, store.ErrTransactionConflict) {
			return false, ErrTransactionConflict
		}
		return false, fmt.Errorf("unretweet: %w", err)
	}
	return true, nil
}

// Like inserts the like join record for (caller, tweet) and bumps the
// tweet's and the caller's likesCount, atomically. There is no pre-read:
// a missing tweet and a duplicate like are both detected by the
// transaction's own conditions.
func (e *Engine) Like(ctx context.Context, callerID, tweetID string) (bool, error) {
	cfg := e.store.Config()
	now := e.now().UTC().Format(time.RFC3339)

	likeItem, err := attributevalue.MarshalMap(LikeRecord{
		UserID:    callerID,
		TweetID:   tweetID,
		CreatedAt: now,
	})
	if err != nil {
		return false, fmt.Errorf("marshal like record: %w", err)
	}

	items := []types.TransactWriteItem{
		{
			Put: &types.Put{
				TableName:           aws.String(cfg.LikesTable),
				Item:                likeItem,
				ConditionExpression: aws.String("attribute_not_exists(tweetId)"),
			},
		},
	}
	tweetIndex := len(items)
	items = append(items,
		counterUpdate(cfg.TweetsTable, tweetKey(tweetID), "likesCount", 1),
		counterUpdate(cfg.UsersTable, userKey(callerID), "likesCount", 1),
	)

	if err := e.store.Transact(ctx, items); err != nil {
		var cond *store.ConditionFailedError
		if errors.As(err, &cond) {
			switch cond.Index {
			case 0:
				return false, ErrDuplicateAction
			case tweetIndex:
				return false, ErrTweetNotFound
			default:
				return false, ErrTransactionConflict
			}
		}
		if errors.Is(err, store.ErrTransactionConflict) {
			return false, ErrTransactionConflict
		}
		return false, fmt.Errorf("like: %w", err)
	}
	return true, nil
}

// Unlike deletes the like join record and reverses both counters. A
// double unlike fails with ErrTransactionConflict: the delete's existence
// condition is the guard, not the pre-read.
func (e *Engine) Unlike(ctx context.Context, callerID, tweetID string) (bool, error) {
	cfg := e.store.Config()

	if _, err := e.store.Get(ctx, cfg.LikesTable, userTweetKey(callerID, tweetID)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, ErrLikeNotFound
		}
		return false, fmt.Errorf("load like record: %w", err)
	}

	items := []types.TransactWriteItem{
		{
			Delete: &types.Delete{
				TableName:           aws.String(cfg.LikesTable),
				Key:                 userTweetKey(callerID, tweetID),
				ConditionExpression: aws.String("attribute_exists(tweetId)"),
			},
		},
		counterUpdate(cfg.TweetsTable, tweetKey(tweetID), "likesCount", -1),
		counterUpdate(cfg.UsersTable, userKey(callerID), "likesCount", -1),
	}

	if err := e.store.Transact(ctx, items); err != nil {
		var cond *store.ConditionFailedError
		if errors.As(err, &cond) || errors.Is(err, store.ErrTransactionConflict) {
			return false, ErrTransactionConflict
		}
		return false, fmt.Errorf("unlike: %w", err)
	}
	return true, nil
}

// loadTweet fetches a tweet record by id.
func (e *Engine) loadTweet(ctx context.Context, tweetID string) (*Tweet, error) {
	raw, err := e.store.Get(ctx, e.store.Config().TweetsTable, tweetKey(tweetID))
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

// counterUpdate builds a conditional increment/decrement of a counter
// attribute, gated on the owning record's existence.
func counterUpdate(table string, key store.PK, attr string, delta int) types.TransactWriteItem {
	return types.TransactWriteItem{
		Update: &types.Update{
			TableName:           aws.String(table),
			Key:                 key,
			UpdateExpression:    aws.String("ADD " + attr + " :delta"),
			ConditionExpression: aws.String("attribute_exists(id)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":delta": &types.AttributeValueMemberN{Value: strconv.Itoa(delta)},
			},
		},
	}
}
