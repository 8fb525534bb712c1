package journal

import (
	"time"
)

// Kind classifies a journal entry.
type Kind string

const (
	KindOpen    Kind = "open"
	KindClose   Kind = "close"
	KindMessage Kind = "message"
	KindError   Kind = "error"
	KindState   Kind = "state"
)

// Entry is one row of the journal.
type Entry struct {
	SessionID   string // Recorder session (one per process run)
	ConnID      string // Connection attempt, empty before the first connect
	Seq         int64  // Monotonic within a session
	Kind        Kind
	MessageType string // "text" or "binary" for messages
	Payload     []byte
	CloseCode   int
	CloseText   string
	Remote      bool
	Error       string
	State       string // New state for state entries
	At          time.Time
}
