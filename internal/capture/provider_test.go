package capture

import (
	"context"
	"errors"
	"strings"
	"testing"

	"gocv.io/x/gocv"
	"k8s.io/klog/v2/ktesting"
)

func newTestFrames(t *testing.T, n int) []*gocv.Mat {
	t.Helper()

	frames := make([]*gocv.Mat, n)
	for i := range frames {
		m := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
		frames[i] = &m
	}
	t.Cleanup(func() {
		for _, f := range frames {
			f.Close()
		}
	})
	return frames
}

func TestProvider_Acquire_Granted(t *testing.T) {
	device := NewMockDevice(newTestFrames(t, 2), true)
	sink := NewFrameSink()
	p := NewProvider(device, sink)

	h, err := p.Acquire(context.Background(), Config{Width: 640, Height: 480})
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	if !h.Ready() {
		t.Error("handle should be ready after a granted acquisition")
	}
	if h.Err() != "" {
		t.Errorf("Err() = %q, want empty", h.Err())
	}
	if got := h.Config().FacingMode; got != FacingUser {
		t.Errorf("FacingMode = %q, want %q", got, FacingUser)
	}
	if !sink.Playing() {
		t.Error("sink should be playing")
	}
	if p.ActiveTracks() != 1 {
		t.Errorf("ActiveTracks() = %d, want 1", p.ActiveTracks())
	}

	frame, err := sink.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	frame.Close()
}

func TestProvider_Release_StopsAllTracks(t *testing.T) {
	configs := []Config{
		{},
		{Width: 320, Height: 240},
		{Width: 1280, Height: 720, FacingMode: FacingEnvironment},
	}

	for _, cfg := range configs {
		device := NewMockDevice(newTestFrames(t, 1), true)
		sink := NewFrameSink()
		p := NewProvider(device, sink)

		h, err := p.Acquire(context.Background(), cfg)
		if err != nil {
			t.Fatalf("Acquire(%+v) error = %v", cfg, err)
		}
		if err := h.Release(); err != nil {
			t.Fatalf("Release() error = %v", err)
		}

		if device.LiveTracks() != 0 {
			t.Errorf("config %+v: %d live tracks after release", cfg, device.LiveTracks())
		}
		if p.ActiveTracks() != 0 {
			t.Errorf("config %+v: ActiveTracks() = %d after release", cfg, p.ActiveTracks())
		}
		if h.Ready() {
			t.Error("released handle should not be ready")
		}
		if sink.Playing() {
			t.Error("sink should stop playing after release")
		}

		// Releasing twice is harmless.
		if err := h.Release(); err != nil {
			t.Errorf("second Release() error = %v", err)
		}
	}
}

func TestProvider_Acquire_PermissionDenied(t *testing.T) {
	device := NewMockDevice(newTestFrames(t, 1), true)
	device.SetError(ErrPermissionDenied)
	p := NewProvider(device, NewFrameSink())

	h, err := p.Acquire(context.Background(), Config{Width: 640, Height: 480})
	if err == nil {
		t.Fatal("expected acquisition error")
	}

	var acqErr *AcquisitionError
	if !errors.As(err, &acqErr) {
		t.Fatalf("expected *AcquisitionError, got %T", err)
	}
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("expected ErrPermissionDenied in chain, got %v", err)
	}
	if h == nil {
		t.Fatal("handle should be returned on failure")
	}
	if h.Ready() {
		t.Error("handle should not be ready")
	}
	if h.Err() == "" {
		t.Error("handle should carry an error message")
	}
	if device.LiveTracks() != 0 {
		t.Errorf("LiveTracks() = %d, want 0", device.LiveTracks())
	}
}

func TestProvider_Acquire_PlaybackFailure(t *testing.T) {
	device := NewMockDevice(nil, false)
	p := NewProvider(device, NewFrameSink())

	h, err := p.Acquire(context.Background(), Config{})
	if err == nil {
		t.Fatal("expected playback failure")
	}

	var acqErr *AcquisitionError
	if !errors.As(err, &acqErr) || acqErr.Op != "play" {
		t.Errorf("expected play AcquisitionError, got %v", err)
	}
	if h.Ready() {
		t.Error("handle should not be ready")
	}
	if device.LiveTracks() != 0 {
		t.Errorf("tracks must be stopped after playback failure, %d live", device.LiveTracks())
	}
}

func TestProvider_Acquire_InvalidConfig(t *testing.T) {
	device := NewMockDevice(newTestFrames(t, 1), true)
	p := NewProvider(device, NewFrameSink())

	h, err := p.Acquire(context.Background(), Config{FacingMode: "sideways"})
	if err == nil {
		t.Fatal("expected configuration error")
	}
	if device.Opens() != 0 {
		t.Error("device should not be opened for an invalid configuration")
	}
	if h.Err() == "" {
		t.Error("handle should carry an error message")
	}
}

func TestProvider_Acquire_Cancelled(t *testing.T) {
	device := NewMockDevice(newTestFrames(t, 1), true)
	p := NewProvider(device, NewFrameSink())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h, err := p.Acquire(ctx, Config{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if h.Ready() {
		t.Error("abandoned handle should not be ready")
	}
	if device.LiveTracks() != 0 {
		t.Errorf("abandoned acquisition left %d live tracks", device.LiveTracks())
	}
}

func TestProvider_Reacquire_ReleasesPrevious(t *testing.T) {
	device := NewMockDevice(newTestFrames(t, 1), true)
	p := NewProvider(device, NewFrameSink())

	first, err := p.Acquire(context.Background(), Config{Width: 640, Height: 480})
	if err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}

	second, err := p.Acquire(context.Background(), Config{Width: 320, Height: 240, FacingMode: FacingEnvironment})
	if err != nil {
		t.Fatalf("second Acquire() error = %v", err)
	}

	if !first.Released() || first.Ready() {
		t.Error("first handle should be released on reconfiguration")
	}
	if !second.Ready() {
		t.Error("second handle should be ready")
	}
	if device.LiveTracks() != 1 {
		t.Errorf("LiveTracks() = %d, want exactly 1", device.LiveTracks())
	}
	if got := device.LastConfig(); got.FacingMode != FacingEnvironment || got.Width != 320 {
		t.Errorf("device opened with %+v", got)
	}
	if p.Current() != second {
		t.Error("Current() should return the latest handle")
	}

	// Releasing the stale handle must not touch the live one.
	first.Release()
	if !second.Ready() {
		t.Error("releasing a stale handle released the current one")
	}

	if err := p.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if device.LiveTracks() != 0 {
		t.Errorf("LiveTracks() = %d after release, want 0", device.LiveTracks())
	}
}

func TestFrameSink_ReadFrame_NotPlaying(t *testing.T) {
	sink := NewFrameSink()

	if _, err := sink.ReadFrame(); !errors.Is(err, ErrCameraNotOpen) {
		t.Errorf("ReadFrame() error = %v, want ErrCameraNotOpen", err)
	}
	if err := sink.Attach(nil); err == nil {
		t.Error("Attach(nil) should fail")
	}
	if err := sink.Play(context.Background()); err == nil {
		t.Error("Play() without a stream should fail")
	}
}

func TestVideoDevice_Open_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	p := NewProvider(NewVideoDevice(0, 1), NewFrameSink())

	h, err := p.Acquire(context.Background(), DefaultConfig())
	if err != nil {
		t.Skipf("skipping test - camera not available: %v", err)
	}

	if !h.Ready() {
		t.Error("Ready() should return true after Acquire()")
	}
	if p.ActiveTracks() != 1 {
		t.Errorf("ActiveTracks() = %d, want 1", p.ActiveTracks())
	}

	if err := h.Release(); err != nil {
		t.Errorf("Release() failed: %v", err)
	}
	if p.ActiveTracks() != 0 {
		t.Errorf("ActiveTracks() = %d after release, want 0", p.ActiveTracks())
	}
}

func TestProvider_Acquire_LogsFailedRelease(t *testing.T) {
	logger, ctx := ktesting.NewTestContext(t)

	device := NewMockDevice(nil, false)
	device.SetStopError(errors.New("device busy"))
	p := NewProvider(device, NewFrameSink())

	_, err := p.Acquire(ctx, Config{})
	var acqErr *AcquisitionError
	if !errors.As(err, &acqErr) || acqErr.Op != "play" {
		t.Fatalf("expected play AcquisitionError, got %v", err)
	}
	if device.LiveTracks() != 0 {
		t.Errorf("tracks must be stopped even when Stop reports an error, %d live", device.LiveTracks())
	}

	logs := logger.GetSink().(ktesting.Underlier).GetBuffer().String()
	if !strings.Contains(logs, "releasing abandoned camera handle") || !strings.Contains(logs, "device busy") {
		t.Errorf("release failure not logged:\n%s", logs)
	}
}

func TestNewProvider_NilSink(t *testing.T) {
	device := NewMockDevice(newTestFrames(t, 1), true)
	p := NewProvider(device, nil)

	sink, ok := p.Sink().(*FrameSink)
	if !ok {
		t.Fatalf("Sink() = %T, want *FrameSink", p.Sink())
	}

	h, err := p.Acquire(context.Background(), Config{})
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if !h.Ready() {
		t.Error("handle should be ready")
	}
	if !sink.Playing() {
		t.Error("a ready handle must be playing on the sink")
	}

	if err := p.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if sink.Playing() {
		t.Error("sink should be detached after release")
	}
}
