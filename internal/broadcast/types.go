package broadcast

import "errors"

// Event names on the observer wire.
const (
	EventUpdateCell = "update_cell"
	EventError      = "error"
)

var (
	ErrHubClosed       = errors.New("broadcast hub closed")
	ErrUnknownObserver = errors.New("unknown observer")
	ErrObserverBehind  = errors.New("observer queue full")
)

// Event is the envelope written to observers.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// CellUpdate is the payload of an update_cell event.
type CellUpdate struct {
	Row                int    `json:"row"`
	Col                int    `json:"col"`
	Selected           bool   `json:"cell_selected"`
	UserID             string `json:"user_id"`
	UserSelectedCount  int    `json:"user_selected_count"`
	TotalSelectedCount int    `json:"total_selected_count"`
}

// ErrorPayload is the payload of a private error event.
type ErrorPayload struct {
	Error string `json:"error"`
}

// UpdateCell wraps u in an update_cell event.
func UpdateCell(u CellUpdate) Event {
	return Event{Name: EventUpdateCell, Data: u}
}

// ErrorEvent wraps msg in an error event.
func ErrorEvent(msg string) Event {
	return Event{Name: EventError, Data: ErrorPayload{Error: msg}}
}

// Sink writes encoded events to one observer.
// Send may block; it is only called from the observer's own writer goroutine.
type Sink interface {
	Send(data []byte) error
	Close() error
}

// Config holds hub settings.
type Config struct {
	QueueSize  int // Initial per-observer queue capacity
	MaxPending int // Undelivered events before an observer is dropped, 0 = unbounded
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		QueueSize:  64,
		MaxPending: 1024,
	}
}

// HubStats contains runtime statistics.
type HubStats struct {
	Observers int
	Published int64
	Delivered int64
	Dropped   int64 // Observers disconnected for falling behind
}
