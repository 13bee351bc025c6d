// Package match drives the daily-match flow: Prepare, Submitting, Matching
// and Completed. Transition is a pure function; Machine owns the timers,
// the poll loop and the backend calls.
package match

import (
	"github.com/charlhhhh/Openhouse/internal/profile"
)

// State of the matching flow as shown to the user.
type State int

const (
	Prepare State = iota
	Submitting
	Matching
	Completed
)

func (s State) String() string {
	switch s {
	case Prepare:
		return "prepare"
	case Submitting:
		return "submitting"
	case Matching:
		return "matching"
	case Completed:
		return "completed"
	default:
		return "unknown"
	}
}

// EventKind enumerates the inputs of Transition.
type EventKind int

const (
	// Restored carries the server status read on load (and the partner when matched).
	Restored EventKind = iota
	Submitted
	SubmitDelayElapsed
	TriggerSucceeded
	TriggerFailed
	PollEmpty
	PollFailed
	MatchFound
	Unmounted
)

// Event is an input of Transition.
type Event struct {
	Kind    EventKind
	Status  profile.MatchStatus
	Partner *profile.MatchedPartner
	Err     error
}

// Effect is a side effect the machine has to perform after a transition.
type Effect int

const (
	StartSubmitTimer Effect = iota
	StopSubmitTimer
	Trigger
	StartPolling
	StopPolling
	StorePartner
	NotifyError
	WarnStatus
)

// Transition computes the next state and the effects to run. Events that do
// not apply to the current state leave it unchanged with no effects.
func Transition(s State, e Event) (State, []Effect) {
	switch e.Kind {
	case Restored:
		switch e.Status {
		case profile.StatusAvailable:
			return Prepare, []Effect{StopPolling}
		case profile.StatusMatching:
			return Matching, []Effect{StartPolling}
		case profile.StatusMatched:
			if e.Partner.Found() {
				return Completed, []Effect{StopPolling, StorePartner}
			}
			// Matched on the server but not revealed yet.
			return Matching, []Effect{StartPolling}
		default:
			return Prepare, []Effect{StopPolling, WarnStatus}
		}

	case Unmounted:
		return s, []Effect{StopSubmitTimer, StopPolling}
	}

	switch s {
	case Prepare:
		if e.Kind == Submitted {
			return Submitting, []Effect{StartSubmitTimer}
		}

	case Submitting:
		switch e.Kind {
		case SubmitDelayElapsed:
			return Submitting, []Effect{Trigger}
		case TriggerSucceeded:
			return Matching, []Effect{StartPolling}
		case TriggerFailed:
			return Prepare, []Effect{NotifyError}
		}

	case Matching:
		switch e.Kind {
		case MatchFound:
			if e.Partner.Found() {
				return Completed, []Effect{StopPolling, StorePartner}
			}
		case PollEmpty, PollFailed:
			return Matching, nil
		}

	case Completed:
		// Terminal until the next load; stray poll results are ignored.
	}
	return s, nil
}
