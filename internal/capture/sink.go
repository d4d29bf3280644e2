package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// FrameSink renders an attached stream by serving its frames to readers
// such as the MJPEG endpoint.
type FrameSink struct {
	mu      sync.Mutex
	stream  Stream
	playing bool
}

var _ Sink = (*FrameSink)(nil)

// NewFrameSink creates an empty FrameSink.
func NewFrameSink() *FrameSink {
	return &FrameSink{}
}

// Attach binds stream to the sink. Playback starts with Play.
func (s *FrameSink) Attach(stream Stream) error {
	if stream == nil {
		return errors.New("nil stream")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stream = stream
	s.playing = false
	return nil
}

// Play starts playback by reading a first frame from the attached stream.
func (s *FrameSink) Play(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream == nil {
		return errors.New("no stream attached")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	frame, err := s.stream.ReadFrame()
	if err != nil {
		return fmt.Errorf("starting playback: %w", err)
	}
	frame.Close()

	s.playing = true
	return nil
}

// Detach unbinds the current stream.
func (s *FrameSink) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stream = nil
	s.playing = false
}

// Playing reports whether a stream is attached and playing.
func (s *FrameSink) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// ReadFrame returns the next frame of the playing stream.
// The caller is responsible for closing the returned Mat.
func (s *FrameSink) ReadFrame() (*gocv.Mat, error) {
	s.mu.Lock()
	stream, playing := s.stream, s.playing
	s.mu.Unlock()

	if !playing || stream == nil {
		return nil, ErrCameraNotOpen
	}
	return stream.ReadFrame()
}
