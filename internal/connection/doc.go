// Package connection implements the observer side of the grid websocket.
//
// A Conn wraps one upgraded browser connection:
//   - Send serializes writes under a deadline and satisfies broadcast.Sink
//   - ReadLoop decodes inbound events and hands them to a callback
//   - a heartbeat pings the peer and the read deadline drops it once pongs stop
package connection
