// Package broadcast fans grid updates out to every connected observer.
//
// Each observer owns a FIFO queue drained by its own writer goroutine, so:
//   - Publish never blocks on a slow or stalled observer
//   - one observer sees events in the order they were published
//   - an observer that falls too far behind is disconnected rather than buffered forever
//
// Errors for a single operation are delivered with NotifyError to the
// requesting observer only.
package broadcast
