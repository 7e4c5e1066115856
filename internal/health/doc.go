// Package health implements the connection health monitor for the authoritative store.
//
// The monitor runs on a fixed interval for the lifetime of the process. Each tick:
//   - no live handle: reconnect
//   - live handle: probe; on failure drop the handle and reconnect
//
// Failures are logged and retried on the next tick. The loop never returns an
// error to its caller; request handlers learn about an outage only through
// store.ErrStoreUnavailable on their own calls.
package health
