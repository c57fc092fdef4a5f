package session

// ErrorEvent - normalized failure notification. Built at the point of
// failure, pushed to the events channel and never retained.
type ErrorEvent struct {
	Source  string `json:"source"`
	Message string `json:"message"`
}

// Event sources the controller itself originates, additionally to the
// name of the failing operation.
const (
	SourceConnectionLost   = "connection-lost"
	SourceConnectionFailed = "connection-failed"
)
