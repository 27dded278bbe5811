// Package feed implements the write and read path of the social feed.
//
// The mutation engine turns each command (tweet, retweet, unretweet,
// like, unlike) into a single all-or-nothing DynamoDB transaction whose
// items each carry their own condition. Uniqueness of join records and
// existence of counter owners are enforced by those conditions at commit
// time, never by a separate read-then-write sequence; the only reads
// issued before a transaction fetch data the transaction cannot derive
// itself (the target tweet's creator, the retweet record to delete), and
// the transaction's conditions re-validate them at commit.
//
// The reader reconstructs paginated feed views from the denormalized
// records: the author's tweet stream, the caller's home timeline, and a
// user's liked tweets, each capped at 25 items per page with an opaque
// continuation token.
package feed
