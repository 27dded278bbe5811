// Package appsync exposes the feed operations as AppSync direct-Lambda
// resolvers. The GraphQL schema and gateway wiring live outside this
// repo; this package only maps resolver events onto the feed core and
// translates domain errors into the client-facing messages.
package appsync

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"

	"github.com/chirpnet/chirp/feed"
)

// Handler dispatches resolver events to the feed core. Its methods are
// designed to be used as AWS Lambda handlers.
type Handler struct {
	engine *feed.Engine
	reader *feed.Reader
	logger *slog.Logger
}

// NewHandler creates a new resolver handler.
func NewHandler(engine *feed.Engine, reader *feed.Reader, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		engine: engine,
		reader: reader,
		logger: logger,
	}
}

// TweetEvent is the resolver event for the tweet mutation.
type TweetEvent struct {
	Arguments struct {
		Text string `json:"text"`
	} `json:"arguments"`
	Identity events.AppSyncCognitoIdentity `json:"identity"`
}

// TweetIDEvent is the resolver event for the mutations that target an
// existing tweet (retweet, unretweet, like, unlike).
type TweetIDEvent struct {
	Arguments struct {
		TweetID string `json:"tweetId"`
	} `json:"arguments"`
	Identity events.AppSyncCognitoIdentity `json:"identity"`
}

// GetTweetsEvent is the resolver event for getTweets and getLikes.
type GetTweetsEvent struct {
	Arguments struct {
		UserID    string `json:"userId"`
		Limit     int    `json:"limit"`
		NextToken string `json:"nextToken"`
	} `json:"arguments"`
	Identity events.AppSyncCognitoIdentity `json:"identity"`
}

// GetMyTimelineEvent is the resolver event for getMyTimeline.
type GetMyTimelineEvent struct {
	Arguments struct {
		Limit     int    `json:"limit"`
		NextToken string `json:"nextToken"`
	} `json:"arguments"`
	Identity events.AppSyncCognitoIdentity `json:"identity"`
}

// Tweet handles the tweet mutation.
func (h *Handler) Tweet(ctx context.Context, event TweetEvent) (*feed.Tweet, error) {
	caller := event.Identity.Username
	tweet, err := h.engine.CreateTweet(ctx, caller, event.Arguments.Text)
	if err != nil {
		h.logger.Error("tweet failed", "caller", caller, "error", err)
		return nil, clientError(err)
	}
	h.logger.Info("tweet created", "caller", caller, "tweetId", tweet.ID)
	return tweet, nil
}

// Retweet handles the retweet mutation.
func (h *Handler) Retweet(ctx context.Context, event TweetIDEvent) (bool, error) {
	caller := event.Identity.Username
	ok, err := h.engine.Retweet(ctx, caller, event.Arguments.TweetID)
	if err != nil {
		h.logger.Error("retweet failed", "caller", caller, "tweetId", event.Arguments.TweetID, "error", err)
		return false, clientError(err)
	}
	return ok, nil
}

// Unretweet handles the unretweet mutation.
func (h *Handler) Unretweet(ctx context.Context, event TweetIDEvent) (bool, error) {
	caller := event.Identity.Username
	ok, err := h.engine.Unretweet(ctx, caller, event.Arguments.TweetID)
	if err != nil {
		h.logger.Error("unretweet failed", "caller", caller, "tweetId", event.Arguments.TweetID, "error", err)
		return false, clientError(err)
	}
	return ok, nil
}

// Like handles the like mutation.
func (h *Handler) Like(ctx context.Context, event TweetIDEvent) (bool, error) {
	caller := event.Identity.Username
	ok, err := h.engine.Like(ctx, caller, event.Arguments.TweetID)
	if err != nil {
		h.logger.Error("like failed", "caller", caller, "tweetId", event.Arguments.TweetID, "error", err)
		return false, clientError(err)
	}
	return ok, nil
}

// Unlike handles the unlike mutation.
func (h *Handler) Unlike(ctx context.Context, event TweetIDEvent) (bool, error) {
	caller := event.Identity.Username
	ok, err := h.engine.Unlike(ctx, caller, event.Arguments.TweetID)
	if err != nil {
		h.logger.Error("unlike failed", "caller", caller, "tweetId", event.Arguments.TweetID, "error", err)
		return false, clientError(err)
	}
	return ok, nil
}

// GetTweets handles the getTweets query.
func (h *Handler) GetTweets(ctx context.Context, event GetTweetsEvent) (*feed.TweetPage, error) {
	page, err := h.reader.GetTweets(ctx, event.Identity.Username, event.Arguments.UserID, event.Arguments.Limit, event.Arguments.NextToken)
	if err != nil {
		h.logger.Error("getTweets failed", "viewer", event.Identity.Username, "userId", event.Arguments.UserID, "error", err)
		return nil, clientError(err)
	}
	return page, nil
}

// GetMyTimeline handles the getMyTimeline query.
func (h *Handler) GetMyTimeline(ctx context.Context, event GetMyTimelineEvent) (*feed.TweetPage, error) {
	page, err := h.reader.GetMyTimeline(ctx, event.Identity.Username, event.Arguments.Limit, event.Arguments.NextToken)
	if err != nil {
		h.logger.Error("getMyTimeline failed", "viewer", event.Identity.Username, "error", err)
		return nil, clientError(err)
	}
	return page, nil
}

// GetLikes handles the getLikes query.
func (h *Handler) GetLikes(ctx context.Context, event GetTweetsEvent) (*feed.TweetPage, error) {
	page, err := h.reader.GetLikes(ctx, event.Identity.Username, event.Arguments.UserID, event.Arguments.Limit, event.Arguments.NextToken)
	if err != nil {
		h.logger.Error("getLikes failed", "viewer", event.Identity.Username, "userId", event.Arguments.UserID, "error", err)
		return nil, clientError(err)
	}
	return page, nil
}

// errMaxLimit matches the message contract the GraphQL clients assert on.
var errMaxLimit = errors.New("Max limit is 25")

// clientError maps domain errors onto their client-facing form.
func clientError(err error) error {
	if errors.Is(err, feed.ErrLimitExceeded) {
		return errMaxLimit
	}
	return err
}
