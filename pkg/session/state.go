package session

// State - lifecycle position of one capture-and-stream session.
// The controller is the only writer.
type State byte

const (
	StateUninitialized State = iota
	StateCreated
	StateConfigured
	StatePreviewing
	StateStreaming
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateCreated:
		return "created"
	case StateConfigured:
		return "configured"
	case StatePreviewing:
		return "previewing"
	case StateStreaming:
		return "streaming"
	case StateReleased:
		return "released"
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
