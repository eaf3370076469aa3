package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// FrameReader extracts document data from a single frame
type FrameReader interface {
	ReadFrame(ctx context.Context, frame Frame) (*FrameData, error)
	// Close closes the reader and releases resources
	Close() error
}

// Backend is a recognition backend that can be probed and opened into a FrameReader
type Backend interface {
	Supported(ctx context.Context) bool
	Open(ctx context.Context, settings LoadSettings) (FrameReader, error)
}

// Vision is an Engine that runs recognizers on top of a per-frame Backend
type Vision struct {
	backend Backend
}

// NewVision creates a new Vision engine for backend
func NewVision(backend Backend) *Vision {
	return &Vision{backend: backend}
}

// Supported reports whether the backend can run here
func (v *Vision) Supported(ctx context.Context) bool {
	return v.backend.Supported(ctx)
}

// Load opens the backend and returns the SDK handle
func (v *Vision) Load(ctx context.Context, settings LoadSettings) (SDK, error) {
	settings.report(0)
	reader, err := v.backend.Open(ctx, settings)
	if err != nil {
		return nil, fmt.Errorf("opening backend: %w", err)
	}
	settings.report(100)
	slog.Info("Engine loaded", "engine_location", settings.EngineLocation, "worker_location", settings.WorkerLocation)
	return &visionSDK{reader: reader}, nil
}

// visionSDK tracks every handle it hands out so leaks are observable through Stats
type visionSDK struct {
	reader FrameReader

	mu     sync.Mutex
	stats  Stats
	closed bool
}

func (s *visionSDK) acquire(counter *int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("sdk closed")
	}
	*counter++
	return nil
}

func (s *visionSDK) release(counter *int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	*counter--
}

func (s *visionSDK) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *visionSDK) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.reader.Close()
}

func (s *visionSDK) NewMultiSideRecognizer(ctx context.Context) (Recognizer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.acquire(&s.stats.Recognizers); err != nil {
		return nil, err
	}
	return &multiSideRecognizer{sdk: s, sides: make(map[string]bool)}, nil
}

func (s *visionSDK) NewRunner(ctx context.Context, recognizers []Recognizer, stopEarly bool) (Runner, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(recognizers) == 0 {
		return nil, errors.New("at least one recognizer is required")
	}
	owned := make([]*multiSideRecognizer, 0, len(recognizers))
	for _, r := range recognizers {
		m, ok := r.(*multiSideRecognizer)
		if !ok || m.sdk != s {
			return nil, errors.New("recognizer was not created by this sdk")
		}
		if m.isReleased() {
			return nil, ErrReleased
		}
		owned = append(owned, m)
	}
	if err := s.acquire(&s.stats.Runners); err != nil {
		return nil, err
	}
	return &runner{sdk: s, recognizers: owned, stopEarly: stopEarly}, nil
}

func (s *visionSDK) NewVideoRecognizer(ctx context.Context, source FrameSource, r Runner, camera CameraPreference) (VideoRecognizer, error) {
	run, ok := r.(*runner)
	if !ok || run.sdk != s {
		return nil, errors.New("runner was not created by this sdk")
	}
	if run.isReleased() {
		return nil, ErrReleased
	}
	if err := source.Open(ctx, camera); err != nil {
		return nil, fmt.Errorf("opening frame source: %w", err)
	}
	if err := s.acquire(&s.stats.VideoFeeds); err != nil {
		source.Close()
		return nil, err
	}
	return &videoRecognizer{sdk: s, source: source, runner: run, camera: camera}, nil
}

// multiSideRecognizer collects the front and back of an identity document
type multiSideRecognizer struct {
	sdk *visionSDK

	mu       sync.Mutex
	result   IDResult
	sides    map[string]bool
	complete bool
	released bool
}

func (r *multiSideRecognizer) isReleased() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.released
}

// process feeds one frame's data and returns the resulting state
func (r *multiSideRecognizer) process(data *FrameData) ResultState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if data.IsEmpty() {
		return r.stateLocked()
	}

	side := data.Side
	if side == "" {
		side = "front"
		if len(r.sides) > 0 {
			side = "back"
		}
	}
	r.sides[side] = true
	r.result.merge(data)

	// A passport data page carries the visual zone and the MRZ on one side
	visual := !data.FirstName.IsEmpty() || !data.LastName.IsEmpty() || !data.FullName.IsEmpty()
	if visual && !data.MRZ.IsEmpty() {
		r.complete = true
	}
	return r.stateLocked()
}

func (r *multiSideRecognizer) state() ResultState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stateLocked()
}

func (r *multiSideRecognizer) stateLocked() ResultState {
	switch {
	case r.complete || len(r.sides) >= 2:
		return Valid
	case len(r.sides) == 1:
		return StageValid
	default:
		return Empty
	}
}

func (r *multiSideRecognizer) Result(ctx context.Context) (*IDResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return nil, ErrReleased
	}
	res := r.result
	res.State = r.stateLocked()
	return &res, nil
}

func (r *multiSideRecognizer) Delete() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return ErrReleased
	}
	r.released = true
	r.sdk.release(&r.sdk.stats.Recognizers)
	return nil
}

type runner struct {
	sdk         *visionSDK
	recognizers []*multiSideRecognizer
	stopEarly   bool

	mu       sync.Mutex
	released bool
}

func (r *runner) isReleased() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.released
}

// processFrame reads the frame once and feeds every recognizer. It reports
// whether recognition has reached a terminal state.
func (r *runner) processFrame(ctx context.Context, frame Frame) (bool, error) {
	if r.isReleased() {
		return false, ErrReleased
	}
	data, err := r.sdk.reader.ReadFrame(ctx, frame)
	if err != nil {
		return false, fmt.Errorf("reading frame: %w", err)
	}

	allValid, anyValid := true, false
	for _, rec := range r.recognizers {
		state := rec.process(data)
		if state == Valid {
			anyValid = true
		} else {
			allValid = false
		}
	}
	if r.stopEarly {
		return anyValid, nil
	}
	return allValid, nil
}

// state combines the recognizer states. Without stop-early the least
// complete recognizer wins.
func (r *runner) state() ResultState {
	best, worst := Empty, Valid
	for _, rec := range r.recognizers {
		s := rec.state()
		if rank(s) > rank(best) {
			best = s
		}
		if rank(s) < rank(worst) {
			worst = s
		}
	}
	if r.stopEarly {
		return best
	}
	if worst == Empty && best != Empty {
		return Uncertain
	}
	return worst
}

func rank(s ResultState) int {
	switch s {
	case Uncertain:
		return 1
	case StageValid:
		return 2
	case Valid:
		return 3
	default:
		return 0
	}
}

func (r *runner) Delete() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return ErrReleased
	}
	r.released = true
	r.sdk.release(&r.sdk.stats.Runners)
	return nil
}

type videoRecognizer struct {
	sdk    *visionSDK
	source FrameSource
	runner *runner
	camera CameraPreference

	mu       sync.Mutex
	released bool
}

// Recognize pulls frames until the runner is done or the source runs dry
func (v *videoRecognizer) Recognize(ctx context.Context) (ResultState, error) {
	v.mu.Lock()
	released := v.released
	v.mu.Unlock()
	if released {
		return Empty, ErrReleased
	}

	frames := 0
	for {
		frame, err := v.source.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Empty, fmt.Errorf("reading camera frame: %w", err)
		}
		frames++
		done, err := v.runner.processFrame(ctx, frame)
		if err != nil {
			return Empty, err
		}
		if done {
			break
		}
	}

	state := v.runner.state()
	slog.Debug("Recognition finished", "frames", frames, "state", state.String(), "camera", v.camera.String())
	return state, nil
}

func (v *videoRecognizer) ReleaseVideoFeed() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.released {
		return ErrReleased
	}
	v.released = true
	v.sdk.release(&v.sdk.stats.VideoFeeds)
	if err := v.source.Close(); err != nil {
		return fmt.Errorf("closing frame source: %w", err)
	}
	return nil
}
