// Package store provides the DynamoDB access layer for the feed core.
//
// The store is deliberately thin: a strongly consistent point read, an
// indexed range query with limit and continuation key, and an atomic
// multi-item transactional write. Every consistency rule of the feed
// (uniqueness of join records, existence of counter owners) is expressed
// as a ConditionExpression attached to the write itself, so the store's
// job on failure is to report which item's condition was violated and let
// the caller translate that into a domain error.
//
// # Errors
//
//   - [ErrNotFound] - point read found no item
//   - [ConditionFailedError] - a transaction item's condition failed;
//     carries the index of the offending item
//   - [ErrTransactionConflict] - the transaction lost to a concurrent one
//
// Everything else (throttling, network, auth) propagates verbatim; the
// store never retries.
package store
