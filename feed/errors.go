package feed

import "errors"

var (
	// ErrUserNotFound is returned when the caller has no user record.
	ErrUserNotFound = errors.New("chirp: user not found")

	// ErrTweetNotFound is returned when the referenced tweet doesn't exist.
	ErrTweetNotFound = errors.New("chirp: tweet not found")

	// ErrRetweetNotFound is returned by unretweet when the caller has no
	// retweet of the referenced tweet.
	ErrRetweetNotFound = errors.New("chirp: retweet not found")

	// ErrLikeNotFound is returned by unlike when the caller has no like
	// on the referenced tweet.
	ErrLikeNotFound = errors.New("chirp: like not found")

	// ErrDuplicateAction is returned when a like or retweet already
	// exists for the same (user, tweet) pair.
	ErrDuplicateAction = errors.New("chirp: duplicate action")

	// ErrTransactionConflict is returned when a mutation lost to a
	// concurrent or duplicate action at commit time. No effects were
	// applied.
	ErrTransactionConflict = errors.New("chirp: transaction conflict")

	// ErrLimitExceeded is returned when a read requests a page larger
	// than MaxPageSize. The query is never executed.
	ErrLimitExceeded = errors.New("chirp: max limit is 25")
)
