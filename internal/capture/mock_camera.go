package capture

import (
	"context"
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// MockDevice plays back pre-recorded frames for testing. It tracks every
// track it hands out so tests can verify that devices are released.
type MockDevice struct {
	frames []*gocv.Mat
	loop   bool
	err    error

	stopErr error

	mu     sync.Mutex
	opens  int
	tracks []*mockTrack
	last   Config
}

var _ Device = (*MockDevice)(nil)

func NewMockDevice(frames []*gocv.Mat, loop bool) *MockDevice {
	return &MockDevice{
		frames: frames,
		loop:   loop,
	}
}

// SetError makes Open fail with err, e.g. ErrPermissionDenied. nil clears it.
func (d *MockDevice) SetError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

// SetStopError makes Stop on tracks opened afterwards fail with err.
// The tracks still stop.
func (d *MockDevice) SetStopError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopErr = err
}

// SetFrames replaces the frame sequence used by future streams.
func (d *MockDevice) SetFrames(frames []*gocv.Mat) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frames = frames
}

func (d *MockDevice) Open(ctx context.Context, cfg Config) (Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.opens++
	d.last = cfg
	if d.err != nil {
		return nil, d.err
	}

	t := &mockTrack{id: fmt.Sprintf("mock-%d", d.opens), live: true, stopErr: d.stopErr}
	d.tracks = append(d.tracks, t)
	return &mockStream{track: t, frames: d.frames, loop: d.loop}, nil
}

// Opens returns how many times Open was called.
func (d *MockDevice) Opens() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

// LastConfig returns the configuration of the most recent Open call.
func (d *MockDevice) LastConfig() Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// LiveTracks returns how many tracks handed out are still live.
func (d *MockDevice) LiveTracks() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, t := range d.tracks {
		if t.Live() {
			n++
		}
	}
	return n
}

type mockTrack struct {
	id      string
	mu      sync.Mutex
	live    bool
	stopErr error
}

func (t *mockTrack) ID() string { return t.id }

func (t *mockTrack) Live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}

func (t *mockTrack) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.live = false
	return t.stopErr
}

type mockStream struct {
	track  *mockTrack
	mu     sync.Mutex
	frames []*gocv.Mat
	index  int
	loop   bool
}

func (s *mockStream) Tracks() []Track { return []Track{s.track} }

func (s *mockStream) ReadFrame() (*gocv.Mat, error) {
	if !s.track.Live() {
		return nil, ErrCameraNotOpen
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.frames) == 0 {
		return nil, fmt.Errorf("no frames available")
	}

	if s.index >= len(s.frames) {
		if s.loop {
			s.index = 0
		} else {
			return nil, fmt.Errorf("no more frames")
		}
	}

	// Clone the frame so the original isn't modified
	frame := s.frames[s.index].Clone()
	s.index++

	return &frame, nil
}
