package feed

import (
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/chirpnet/chirp/store"
)

// TweetType discriminates the record variants in the tweets table.
type TweetType string

const (
	TweetTypeOriginal TweetType = "ORIGINAL"
	TweetTypeRetweet  TweetType = "RETWEET"
	TweetTypeReply    TweetType = "REPLY"
)

// Secondary indexes on the tweets table.
const (
	// ByCreatorIndex orders a creator's tweet and retweet records by id,
	// backing the tweet stream read.
	ByCreatorIndex = "byCreator"

	// RetweetsByCreatorIndex locates a creator's retweet record of a
	// given original tweet.
	RetweetsByCreatorIndex = "retweetsByCreator"
)

// Tweet is a record in the tweets table. ORIGINAL and REPLY records carry
// text, hashtags and counters; RETWEET records carry retweetOf and leave
// the rest zero.
type Tweet struct {
	ID            string    `dynamodbav:"id" json:"id"`
	Type          TweetType `dynamodbav:"type" json:"type"`
	Creator       string    `dynamodbav:"creator" json:"creator"`
	Text          string    `dynamodbav:"text,omitempty" json:"text,omitempty"`
	CreatedAt     string    `dynamodbav:"createdAt" json:"createdAt"`
	RepliesCount  int       `dynamodbav:"repliesCount" json:"repliesCount"`
	LikesCount    int       `dynamodbav:"likesCount" json:"likesCount"`
	RetweetsCount int       `dynamodbav:"retweetsCount" json:"retweetsCount"`
	HashTags      []string  `dynamodbav:"hashTags,omitempty" json:"hashTags,omitempty"`
	RetweetOf     string    `dynamodbav:"retweetOf,omitempty" json:"retweetOf,omitempty"`
}

// User is a record in the users table. The counters are maintained by the
// mutation engine as increment and decrement deltas, never overwritten.
type User struct {
	ID             string `dynamodbav:"id" json:"id"`
	Name           string `dynamodbav:"name,omitempty" json:"name,omitempty"`
	ScreenName     string `dynamodbav:"screenName,omitempty" json:"screenName,omitempty"`
	CreatedAt      string `dynamodbav:"createdAt,omitempty" json:"createdAt,omitempty"`
	TweetsCount    int    `dynamodbav:"tweetsCount" json:"tweetsCount"`
	LikesCount     int    `dynamodbav:"likesCount" json:"likesCount"`
	FollowersCount int    `dynamodbav:"followersCount" json:"followersCount"`
	FollowingCount int    `dynamodbav:"followingCount" json:"followingCount"`
}

// TimelineEntry marks a tweet as visible in a user's timeline relation.
// DistributedFrom is reserved for the follow fan-out collaborator.
type TimelineEntry struct {
	UserID          string `dynamodbav:"userId"`
	TweetID         string `dynamodbav:"tweetId"`
	Timestamp       string `dynamodbav:"timestamp"`
	RetweetOf       string `dynamodbav:"retweetOf,omitempty"`
	DistributedFrom string `dynamodbav:"distributedFrom,omitempty"`
}

// LikeRecord is the join record enforcing one like per (user, tweet).
type LikeRecord struct {
	UserID    string `dynamodbav:"userId"`
	TweetID   string `dynamodbav:"tweetId"`
	CreatedAt string `dynamodbav:"createdAt"`
}

// RetweetRecord is the join record enforcing one retweet per
// (user, original tweet). RetweetID is the retweet's own tweet id.
type RetweetRecord struct {
	UserID    string `dynamodbav:"userId"`
	TweetID   string `dynamodbav:"tweetId"`
	RetweetID string `dynamodbav:"retweetId"`
	CreatedAt string `dynamodbav:"createdAt"`
}

func tweetKey(id string) store.PK {
	return store.PK{
		"id": &types.AttributeValueMemberS{Value: id},
	}
}

func userKey(id string) store.PK {
	return store.PK{
		"id": &types.AttributeValueMemberS{Value: id},
	}
}

// userTweetKey builds the composite key shared by the timelines, likes
// and retweets tables.
func userTweetKey(userID, tweetID string) store.PK {
	return store.PK{
		"userId":  &types.AttributeValueMemberS{Value: userID},
		"tweetId": &types.AttributeValueMemberS{Value: tweetID},
	}
}
