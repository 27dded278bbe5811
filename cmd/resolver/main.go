// Command resolver is the Lambda binary behind the AppSync feed API. One
// deployment per operation, selected by the HANDLER environment variable,
// all sharing the same build.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/chirpnet/chirp/appsync"
	"github.com/chirpnet/chirp/feed"
	"github.com/chirpnet/chirp/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := store.ConfigFromEnv()
	if err != nil {
		logger.Error("load table config", "error", err)
		os.Exit(1)
	}

	// The client is built once per cold start and shared by every
	// invocation; it holds no request-scoped state.
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		logger.Error("load aws config", "error", err)
		os.Exit(1)
	}

	s := store.New(dynamodb.NewFromConfig(awsCfg), cfg)
	h := appsync.NewHandler(feed.NewEngine(s), feed.NewReader(s), logger)

	switch name := os.Getenv("HANDLER"); name {
	case "tweet":
		lambda.Start(h.Tweet)
	case "retweet":
		lambda.Start(h.Retweet)
	case "unretweet":
		lambda.Start(h.Unretweet)
	case "like":
		lambda.Start(h.Like)
	case "unlike":
		lambda.Start(h.Unlike)
	case "getTweets":
		lambda.Start(h.GetTweets)
	case "getMyTimeline":
		lambda.Start(h.GetMyTimeline)
	case "getLikes":
		lambda.Start(h.GetLikes)
	default:
		logger.Error("unknown handler", "name", name)
		os.Exit(1)
	}
}
