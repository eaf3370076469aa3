package engine

import (
	"context"
	"errors"
	"io"
	"sync"
)

// Frame is one captured image
type Frame struct {
	Data        []byte
	ContentType string
}

// FrameSource yields captured frames. Next returns io.EOF once the source is exhausted.
type FrameSource interface {
	Open(ctx context.Context, camera CameraPreference) error
	Next(ctx context.Context) (Frame, error)
	Close() error
}

var errSourceClosed = errors.New("frame source closed")

// StaticFrames is a FrameSource over frames captured up front, e.g. an upload
type StaticFrames struct {
	mu     sync.Mutex
	frames []Frame
	pos    int
	open   bool
	closed bool
	camera CameraPreference
}

// NewStaticFrames creates a source that replays frames in order
func NewStaticFrames(frames ...Frame) *StaticFrames {
	return &StaticFrames{frames: frames}
}

func (s *StaticFrames) Open(ctx context.Context, camera CameraPreference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSourceClosed
	}
	s.open = true
	s.camera = camera
	return nil
}

func (s *StaticFrames) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.open {
		return Frame{}, errSourceClosed
	}
	if s.pos >= len(s.frames) {
		return Frame{}, io.EOF
	}
	f := s.frames[s.pos]
	s.pos++
	return f, nil
}

func (s *StaticFrames) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.open = false
	return nil
}

// Camera returns the preference the source was opened with
func (s *StaticFrames) Camera() CameraPreference {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.camera
}

// Closed reports whether Close has been called
func (s *StaticFrames) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
