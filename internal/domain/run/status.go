package run

// Status represents the current state of a run.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusRunning  Status = "RUNNING"
	StatusSuccess  Status = "SUCCESS"
	StatusFailure  Status = "FAILURE"
	StatusStopped  Status = "STOPPED"
	StatusPausing  Status = "PAUSING"
	StatusPaused   Status = "PAUSED"
	StatusResuming Status = "RESUMING"
)

// transitions lists the allowed next states for each state.
var transitions = map[Status][]Status{
	StatusPending:  {StatusRunning, StatusFailure, StatusStopped},
	StatusRunning:  {StatusSuccess, StatusFailure, StatusStopped, StatusPausing},
	StatusPausing:  {StatusPaused, StatusRunning, StatusFailure},
	StatusPaused:   {StatusResuming, StatusStopped, StatusFailure},
	StatusResuming: {StatusRunning, StatusPaused, StatusFailure},
}

// IsFinal reports whether no further transition is possible.
func (s Status) IsFinal() bool {
	return s == StatusSuccess || s == StatusFailure || s == StatusStopped
}

// IsActive reports whether the run still holds compute.
func (s Status) IsActive() bool {
	return s != "" && !s.IsFinal()
}

// CanTransition reports whether a run may move from one state to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
