package engine

import (
	"errors"
	"fmt"
)

// State is the lifecycle stage of one composition run.
type State int

const (
	Idle State = iota
	LoadingAssets
	Recording
	Finalizing
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case LoadingAssets:
		return "loading-assets"
	case Recording:
		return "recording"
	case Finalizing:
		return "finalizing"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) Terminal() bool {
	return s == Ready || s == Failed
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var (
	ErrAssetLoadTimeout = errors.New("asset loading timed out")
	ErrComposition      = errors.New("composition failed")
	ErrAlreadyStarted   = errors.New("driver already started")
	ErrNoSink           = errors.New("no frame sink configured")
)

// RunError is the terminal failure of a run: the state it failed in and
// the cause.
type RunError struct {
	State State
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s: %v", e.State, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// Event is one progress notification. Percent is only meaningful while
// recording and once Ready.
type Event struct {
	Stage   State  `json:"stage"`
	Message string `json:"message"`
	Percent int    `json:"percent"`
}

type ProgressFunc func(Event)

// progressStep is the minimum percentage advance reported while recording.
const progressStep = 4
