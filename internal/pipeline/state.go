package pipeline

import (
	"time"
)

// State is a stage of a migration run.
type State string

// Run states. A run moves forward only; DONE and ABORTED are terminal.
const (
	StateInit      State = "INIT"
	StateStreaming State = "STREAMING"
	StateDraining  State = "DRAINING"
	StateFlushing  State = "FLUSHING"
	StateDone      State = "DONE"
	StateAborted   State = "ABORTED"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateAborted
}

var transitions = map[State][]State{
	StateInit:      {StateStreaming},
	StateStreaming: {StateDraining, StateAborted},
	StateDraining:  {StateFlushing, StateAborted},
	StateFlushing:  {StateDone},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Summary is the live and final accounting of one run.
type Summary struct {
	RunID     string    `json:"run_id"`
	State     State     `json:"state"`
	Pages     int       `json:"pages"`
	Fetched   int       `json:"fetched"`
	Processed int       `json:"processed"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	ReportURI string    `json:"report_uri,omitempty"`
	Error     string    `json:"error,omitempty"`
	Started   time.Time `json:"started_at"`
	Finished  time.Time `json:"finished_at"`
}

// Pending is the number of fetched records without an outcome yet.
func (s Summary) Pending() int {
	return s.Fetched - s.Processed
}
