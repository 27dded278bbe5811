package store

import "github.com/caarlos0/env/v11"

// Config holds the table names the feed core operates on.
type Config struct {
	// UsersTable holds user records with their counter attributes.
	// Default: "users"
	UsersTable string `env:"USERS_TABLE"`

	// TweetsTable holds tweet and retweet records keyed by id.
	// Default: "tweets"
	TweetsTable string `env:"TWEETS_TABLE"`

	// TimelinesTable holds timeline entries keyed by (userId, tweetId).
	// Default: "timelines"
	TimelinesTable string `env:"TIMELINES_TABLE"`

	// LikesTable holds like join records keyed by (userId, tweetId).
	// Default: "likes"
	LikesTable string `env:"LIKES_TABLE"`

	// RetweetsTable holds retweet join records keyed by (userId, tweetId).
	// Default: "retweets"
	RetweetsTable string `env:"RETWEETS_TABLE"`
}

// DefaultConfig returns the default table names.
func DefaultConfig() Config {
	return Config{
		UsersTable:     "users",
		TweetsTable:    "tweets",
		TimelinesTable: "timelines",
		LikesTable:     "likes",
		RetweetsTable:  "retweets",
	}
}

// ConfigFromEnv loads table names from the environment, falling back to
// the defaults for any that are unset.
func ConfigFromEnv() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, err
	}
	c.validate()
	return c, nil
}

// validate fills in defaults for unset table names.
func (c *Config) validate() {
	if c.UsersTable == "" {
		c.UsersTable = "users"
	}
	if c.TweetsTable == "" {
		c.TweetsTable = "tweets"
	}
	if c.TimelinesTable == "" {
		c.TimelinesTable = "timelines"
	}
	if c.LikesTable == "" {
		c.LikesTable = "likes"
	}
	if c.RetweetsTable == "" {
		c.RetweetsTable = "retweets"
	}
}
