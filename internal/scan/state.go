package scan

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady is returned when a scan is requested outside the Ready phase
	ErrNotReady = errors.New("scanner is not ready")
	// ErrInvalidTransition is returned when an event does not apply to the current phase
	ErrInvalidTransition = errors.New("invalid state transition")
)

const (
	messageLoading      = "Loading..."
	messageUnsupported  = "This environment is not supported!"
	messageLoadFailed   = "Failed to load SDK!"
	noticeNoInformation = "Could not extract information!"
	noticeScanFailed    = "Scan failed, please try again."
)

// Phase is the session state that decides which screen is visible
type Phase int

const (
	PhaseLoading Phase = iota
	PhaseUnsupported
	PhaseReady
	PhaseScanning
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseUnsupported:
		return "unsupported"
	case PhaseReady:
		return "ready"
	case PhaseScanning:
		return "scanning"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(text []byte) error {
	for candidate := PhaseLoading; candidate <= PhaseDone; candidate++ {
		if candidate.String() == string(text) {
			*p = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", text)
}

// State is the whole UI state shared by every client. It only changes
// through Reduce and never holds personal data.
type State struct {
	Phase      Phase  `json:"phase"`
	Progress   int    `json:"progress"`
	Message    string `json:"message"`
	LoadFailed bool   `json:"load_failed"`
	Notice     string `json:"notice,omitempty"`
	AttemptID  string `json:"attempt_id,omitempty"`
}

// InitialState is the state before the engine is probed
func InitialState() State {
	return State{Phase: PhaseLoading, Message: messageLoading}
}

// EventKind identifies what happened
type EventKind int

const (
	EventUnsupported EventKind = iota
	EventProgress
	EventLoaded
	EventLoadFailed
	EventScanStarted
	EventRecognized
	EventReleased
)

func (k EventKind) String() string {
	switch k {
	case EventUnsupported:
		return "unsupported"
	case EventProgress:
		return "progress"
	case EventLoaded:
		return "loaded"
	case EventLoadFailed:
		return "load_failed"
	case EventScanStarted:
		return "scan_started"
	case EventRecognized:
		return "recognized"
	case EventReleased:
		return "released"
	default:
		return "unknown"
	}
}

// Event drives a state transition
type Event struct {
	Kind      EventKind
	Progress  int
	AttemptID string
	Notice    string
	Err       error
}

// Reduce applies e to s. Progress events are clamped to [0,100] and never
// move progress backwards.
func Reduce(s State, e Event) (State, error) {
	switch e.Kind {
	case EventUnsupported:
		if s.Phase != PhaseLoading || s.LoadFailed {
			return s, invalid(s, e)
		}
		s.Phase = PhaseUnsupported
		s.Message = messageUnsupported

	case EventProgress:
		if s.Phase != PhaseLoading || s.LoadFailed {
			return s, invalid(s, e)
		}
		p := min(max(e.Progress, 0), 100)
		if p > s.Progress {
			s.Progress = p
		}

	case EventLoaded:
		if s.Phase != PhaseLoading || s.LoadFailed {
			return s, invalid(s, e)
		}
		s.Phase = PhaseReady
		s.Progress = 100
		s.Message = ""

	case EventLoadFailed:
		if s.Phase != PhaseLoading || s.LoadFailed {
			return s, invalid(s, e)
		}
		s.LoadFailed = true
		s.Message = messageLoadFailed

	case EventScanStarted:
		if s.Phase != PhaseReady {
			return s, ErrNotReady
		}
		s.Phase = PhaseScanning
		s.Notice = ""
		s.AttemptID = e.AttemptID

	case EventRecognized:
		if s.Phase != PhaseScanning {
			return s, invalid(s, e)
		}
		s.Phase = PhaseDone
		s.Notice = e.Notice

	case EventReleased:
		if s.Phase != PhaseScanning && s.Phase != PhaseDone {
			return s, invalid(s, e)
		}
		s.Phase = PhaseReady
		if e.Err != nil {
			s.Notice = noticeScanFailed
		}

	default:
		return s, invalid(s, e)
	}
	return s, nil
}

func invalid(s State, e Event) error {
	return fmt.Errorf("%w: %s in phase %s", ErrInvalidTransition, e.Kind, s.Phase)
}

// Screen names one of the three mutually exclusive screens
type Screen string

const (
	ScreenInitial  Screen = "initial"
	ScreenStart    Screen = "start"
	ScreenScanning Screen = "scanning"
)

// View is what the page shows for a State
type View struct {
	Screen     Screen `json:"screen"`
	Phase      Phase  `json:"phase"`
	Message    string `json:"message,omitempty"`
	Progress   int    `json:"progress"`
	LoadFailed bool   `json:"load_failed"`
	Notice     string `json:"notice,omitempty"`
	CanStart   bool   `json:"can_start"`
}

// Project maps a State to its View
func Project(s State) View {
	v := View{
		Phase:      s.Phase,
		Message:    s.Message,
		Progress:   s.Progress,
		LoadFailed: s.LoadFailed,
		Notice:     s.Notice,
	}
	switch s.Phase {
	case PhaseReady:
		v.Screen = ScreenStart
		v.CanStart = true
	case PhaseScanning, PhaseDone:
		v.Screen = ScreenScanning
	default:
		v.Screen = ScreenInitial
	}
	return v
}

// Visible reports whether screen is the one shown by v
func (v View) Visible(screen Screen) bool {
	return v.Screen == screen
}
