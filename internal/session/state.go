// Package session runs scans one at a time per logical scanner. A new
// capture supersedes the scan in flight; only the latest session may commit
// stage progress or deliver a result.
package session

import (
	"time"

	"github.com/MeKo-Tech/idscan/internal/document"
	"github.com/MeKo-Tech/idscan/internal/pipeline"
)

// State is a step of the session lifecycle.
type State string

const (
	StateIdle        State = "Idle"
	StateCapturing   State = "Capturing"
	StateNormalizing State = State(pipeline.StageNormalizing)
	StateRecognizing State = State(pipeline.StageRecognizing)
	StateExtracting  State = State(pipeline.StageExtracting)
	StateValidating  State = State(pipeline.StageValidating)
	StateDone        State = "Done"
	StateSuperseded  State = "Superseded"
)

// Terminal reports whether no further stage can follow s.
func (s State) Terminal() bool { return s == StateDone || s == StateSuperseded }

// Active reports whether a session in s is still running.
func (s State) Active() bool { return s != StateIdle && !s.Terminal() }

// Reasons attached to Superseded transitions.
const (
	ReasonSuperseded = "superseded"
	ReasonCancelled  = "cancelled"
	ReasonClosed     = "closed"
)

// Handle identifies a submitted capture.
type Handle struct {
	SessionID  string `json:"session_id"`
	Generation uint64 `json:"generation"`
}

// Transition is one state change of a session. Transitions to Idle belong
// to the scanner rather than a session and carry no SessionID.
type Transition struct {
	SessionID  string          `json:"session_id,omitempty"`
	Generation uint64          `json:"generation"`
	From       State           `json:"from"`
	To         State           `json:"to"`
	Status     document.Status `json:"status,omitempty"` // set when To is Done
	Reason     string          `json:"reason,omitempty"` // set when To is Superseded
	At         time.Time       `json:"at"`
}

func (s State) String() string { return string(s) }
