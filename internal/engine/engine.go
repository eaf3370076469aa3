package engine

import (
	"context"
	"errors"
)

var (
	// ErrReleased is returned when a handle is used or deleted after release
	ErrReleased = errors.New("handle already released")
	// ErrLicense is returned by Load when the license credential is rejected
	ErrLicense = errors.New("invalid license credential")
)

// ResultState is the terminal state reported by a recognizer or runner
type ResultState int

const (
	Empty ResultState = iota
	Uncertain
	Valid
	StageValid
)

func (s ResultState) String() string {
	switch s {
	case Empty:
		return "empty"
	case Uncertain:
		return "uncertain"
	case Valid:
		return "valid"
	case StageValid:
		return "stage_valid"
	default:
		return "unknown"
	}
}

// CameraPreference selects which camera a frame source should open
type CameraPreference int

const (
	FrontFacingCamera CameraPreference = iota
	BackFacingCamera
)

func (c CameraPreference) String() string {
	if c == BackFacingCamera {
		return "back"
	}
	return "front"
}

// ParseCameraPreference maps "front"/"back" to a preference, defaulting to front
func ParseCameraPreference(s string) CameraPreference {
	if s == "back" {
		return BackFacingCamera
	}
	return FrontFacingCamera
}

// LoadSettings configures Engine.Load
type LoadSettings struct {
	License        string
	EngineLocation string
	WorkerLocation string
	// Progress receives load progress in percent. May be nil.
	Progress func(percent int)
}

func (s LoadSettings) report(percent int) {
	if s.Progress != nil {
		s.Progress(percent)
	}
}

// Engine is a recognition runtime that must be probed and loaded before use
type Engine interface {
	// Supported reports whether the engine can run in this environment
	Supported(ctx context.Context) bool
	// Load initializes the engine and returns a handle to it
	Load(ctx context.Context, settings LoadSettings) (SDK, error)
}

// SDK is a loaded engine. It hands out recognition handles that must be released.
type SDK interface {
	NewMultiSideRecognizer(ctx context.Context) (Recognizer, error)
	NewRunner(ctx context.Context, recognizers []Recognizer, stopEarly bool) (Runner, error)
	NewVideoRecognizer(ctx context.Context, source FrameSource, runner Runner, camera CameraPreference) (VideoRecognizer, error)
	// Stats returns the number of live handles
	Stats() Stats
	Close() error
}

// Recognizer performs one recognition task over the frames it is fed
type Recognizer interface {
	Result(ctx context.Context) (*IDResult, error)
	Delete() error
}

// Runner drives one or more recognizers over a stream of frames
type Runner interface {
	Delete() error
}

// VideoRecognizer binds a runner to a frame source
type VideoRecognizer interface {
	// Recognize blocks until the runner reaches a terminal state or the source is exhausted
	Recognize(ctx context.Context) (ResultState, error)
	// ReleaseVideoFeed closes the frame source binding
	ReleaseVideoFeed() error
}

// Stats counts live engine-side handles
type Stats struct {
	Recognizers int `json:"recognizers"`
	Runners     int `json:"runners"`
	VideoFeeds  int `json:"video_feeds"`
}
