// Package tokensource serves short-lived Copilot service tokens, exchanging a
// long-lived GitHub credential on demand.
//
// The Copilot API only accepts service tokens that expire after roughly half
// an hour. A Refresher hides that from callers:
//   - Token returns the cached token while it is fresh and fetches a new one
//     once it is within the grace period (5 minutes) of its expiry
//   - ForceRefresh fetches unconditionally, for callers that know the token
//     was rejected (e.g. a 401 from the completion endpoint)
//   - A failed fetch leaves the previously cached token in place; nothing is
//     retried automatically
//
// # Usage
//
//	fetch := tokensource.NewCopilotFetcher(transport, githubToken)
//	refresher := tokensource.NewRefresher(fetch)
//	token, err := refresher.Token(ctx)
//
// # Concurrency
//
// Refresher is single-owner and performs no locking. Wrap it with NewShared
// when several goroutines (e.g. HTTP handlers) read tokens concurrently:
//
//	shared := tokensource.NewShared(tokensource.NewRefresher(fetch))
package tokensource
