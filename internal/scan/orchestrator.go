package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/id-scanner/internal/engine"
)

var (
	// ErrUnsupported is returned by Initialize when the engine cannot run here
	ErrUnsupported = errors.New("engine is not supported in this environment")
	// ErrAlreadyInitialized is returned by a second call to Initialize
	ErrAlreadyInitialized = errors.New("engine was already initialized")
)

// IDGenerator generates unique IDs for scan attempts
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Settings configures the orchestrator
type Settings struct {
	License        string
	EngineLocation string
	WorkerLocation string
	// ScanTimeout bounds a single scan. Zero leaves it to the caller's context.
	ScanTimeout time.Duration
}

// Outcome is the result of one scan attempt as shown to the user
type Outcome struct {
	AttemptID   string    `json:"attempt_id"`
	ResultState string    `json:"result_state"`
	Identity    *Identity `json:"identity,omitempty"`
	Greeting    string    `json:"greeting,omitempty"`
	Notice      string    `json:"notice,omitempty"`
}

// Orchestrator drives the engine through load and scan and owns the UI state
type Orchestrator struct {
	engine      engine.Engine
	db          DB
	settings    Settings
	idGenerator IDGenerator
	timeSource  TimeSource

	mu           sync.Mutex
	state        State
	sdk          engine.SDK
	onTransition func(State)
	initialized  bool
}

// NewOrchestrator creates a new Orchestrator with default ID generator and time source
func NewOrchestrator(eng engine.Engine, db DB, settings Settings) *Orchestrator {
	return NewOrchestratorWithDeps(eng, db, settings, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewOrchestratorWithDeps creates a new Orchestrator with custom dependencies for testing
func NewOrchestratorWithDeps(eng engine.Engine, db DB, settings Settings, idGen IDGenerator, timeSrc TimeSource) *Orchestrator {
	return &Orchestrator{
		engine:      eng,
		db:          db,
		settings:    settings,
		idGenerator: idGen,
		timeSource:  timeSrc,
		state:       InitialState(),
	}
}

// OnTransition registers fn to be called with every new state
func (o *Orchestrator) OnTransition(fn func(State)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onTransition = fn
}

// State returns the current state
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// View returns the projection of the current state
func (o *Orchestrator) View() View {
	return Project(o.State())
}

func (o *Orchestrator) dispatch(e Event) (State, error) {
	o.mu.Lock()
	next, err := Reduce(o.state, e)
	if err != nil {
		o.mu.Unlock()
		return next, err
	}
	changed := next != o.state
	o.state = next
	fn := o.onTransition
	o.mu.Unlock()

	if changed {
		if e.Kind != EventProgress {
			slog.Info("State changed", "event", e.Kind.String(), "phase", next.Phase.String())
		}
		if fn != nil {
			fn(next)
		}
	}
	return next, nil
}

// Initialize probes and loads the engine. It runs at most once per
// orchestrator; a failure is terminal for the session.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	o.mu.Lock()
	if o.initialized || o.state.Phase != PhaseLoading || o.state.LoadFailed {
		o.mu.Unlock()
		return ErrAlreadyInitialized
	}
	o.initialized = true
	o.mu.Unlock()

	if !o.engine.Supported(ctx) {
		if _, err := o.dispatch(Event{Kind: EventUnsupported}); err != nil {
			return err
		}
		slog.Error("Engine is not supported in this environment")
		return ErrUnsupported
	}

	sdk, err := o.engine.Load(ctx, engine.LoadSettings{
		License:        o.settings.License,
		EngineLocation: o.settings.EngineLocation,
		WorkerLocation: o.settings.WorkerLocation,
		Progress: func(percent int) {
			// Late or out-of-phase progress is harmless; Reduce rejects it
			o.dispatch(Event{Kind: EventProgress, Progress: percent})
		},
	})
	if err != nil {
		slog.Error("Failed to load SDK", "error", err)
		o.dispatch(Event{Kind: EventLoadFailed, Err: err})
		return fmt.Errorf("loading engine: %w", err)
	}

	o.mu.Lock()
	o.sdk = sdk
	o.mu.Unlock()

	if _, err := o.dispatch(Event{Kind: EventLoaded}); err != nil {
		return err
	}
	return nil
}

// StartScan runs one scan over source. Every handle acquired here is
// released before it returns, on every path, and the state is back to Ready.
func (o *Orchestrator) StartScan(ctx context.Context, source engine.FrameSource, camera engine.CameraPreference) (outcome *Outcome, err error) {
	id := o.idGenerator.Generate()
	if _, err := o.dispatch(Event{Kind: EventScanStarted, AttemptID: id}); err != nil {
		return nil, err
	}

	attempt := &Attempt{ID: id, Camera: camera.String(), StartedAt: o.timeSource.Now()}
	counted := &countingSource{FrameSource: source}

	defer func() {
		if _, dispatchErr := o.dispatch(Event{Kind: EventReleased, Err: err}); dispatchErr != nil {
			slog.Error("Failed to return to ready", "error", dispatchErr)
		}
		attempt.Frames = counted.frames
		o.recordAttempt(attempt, outcome, err)
	}()

	if o.settings.ScanTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.settings.ScanTimeout)
		defer cancel()
	}

	o.mu.Lock()
	sdk := o.sdk
	o.mu.Unlock()
	if sdk == nil {
		return nil, errors.New("engine is closed")
	}

	recognizer, err := sdk.NewMultiSideRecognizer(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating recognizer: %w", err)
	}
	defer release("recognizer", recognizer.Delete)

	runner, err := sdk.NewRunner(ctx, []engine.Recognizer{recognizer}, false)
	if err != nil {
		return nil, fmt.Errorf("creating runner: %w", err)
	}
	defer release("runner", runner.Delete)

	video, err := sdk.NewVideoRecognizer(ctx, counted, runner, camera)
	if err != nil {
		return nil, fmt.Errorf("attaching to camera: %w", err)
	}
	defer release("video feed", video.ReleaseVideoFeed)

	state, err := video.Recognize(ctx)
	if err != nil {
		return nil, fmt.Errorf("recognizing: %w", err)
	}

	outcome, err = o.mapResult(ctx, id, state, recognizer)
	if err != nil {
		return nil, err
	}

	// The greeting carries personal data; only the caller gets it
	if _, err := o.dispatch(Event{Kind: EventRecognized, Notice: outcome.Notice}); err != nil {
		return nil, err
	}
	return outcome, nil
}

func (o *Orchestrator) mapResult(ctx context.Context, id string, state engine.ResultState, recognizer engine.Recognizer) (*Outcome, error) {
	outcome := &Outcome{AttemptID: id, ResultState: state.String()}
	if state == engine.Empty {
		outcome.Notice = noticeNoInformation
		return outcome, nil
	}

	result, err := recognizer.Result(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting recognizer result: %w", err)
	}
	outcome.ResultState = result.State.String()
	if result.State == engine.Empty {
		outcome.Notice = noticeNoInformation
		return outcome, nil
	}

	identity := ExtractIdentity(result)
	outcome.Identity = &identity
	outcome.Greeting = Greeting(identity)
	return outcome, nil
}

// release runs a deferred engine release and logs failures
func release(what string, fn func() error) {
	if err := fn(); err != nil {
		slog.Warn("Failed to release engine resource", "resource", what, "error", err)
	}
}

func (o *Orchestrator) recordAttempt(attempt *Attempt, outcome *Outcome, err error) {
	attempt.FinishedAt = o.timeSource.Now()
	switch {
	case err != nil:
		attempt.Outcome = OutcomeFailed
		attempt.Error = err.Error()
	case outcome.Identity != nil:
		attempt.Outcome = OutcomeIdentified
		attempt.ResultState = outcome.ResultState
	default:
		attempt.Outcome = OutcomeEmpty
		attempt.ResultState = outcome.ResultState
	}

	if o.db == nil {
		return
	}
	if err := o.db.SaveAttempt(attempt); err != nil {
		slog.Warn("Failed to save scan attempt", "id", attempt.ID, "error", err)
	}
}

// GetAttempt retrieves a recorded attempt by ID
func (o *Orchestrator) GetAttempt(id string) (*Attempt, error) {
	attempt, err := o.db.GetAttempt(id)
	if err != nil {
		return nil, fmt.Errorf("getting attempt: %w", err)
	}
	return attempt, nil
}

// ListAttempts returns all recorded attempts
func (o *Orchestrator) ListAttempts() ([]*Attempt, error) {
	attempts, err := o.db.ListAttempts()
	if err != nil {
		return nil, fmt.Errorf("listing attempts: %w", err)
	}
	return attempts, nil
}

// Close releases the loaded engine
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	sdk := o.sdk
	o.sdk = nil
	o.mu.Unlock()
	if sdk == nil {
		return nil
	}
	return sdk.Close()
}

// countingSource counts the frames handed to the engine
type countingSource struct {
	engine.FrameSource
	frames int
}

func (c *countingSource) Next(ctx context.Context) (engine.Frame, error) {
	f, err := c.FrameSource.Next(ctx)
	if err == nil {
		c.frames++
	}
	return f, err
}
