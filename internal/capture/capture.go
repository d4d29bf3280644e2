// Package capture acquires live video streams from camera devices using
// GoCV (OpenCV) and owns their tracks until released.
package capture

import (
	"context"
	"errors"
	"fmt"

	"gocv.io/x/gocv"
)

// Default capture settings.
const (
	DefaultWidth  = 640
	DefaultHeight = 480
	DefaultFPS    = 15
)

// FacingMode selects which camera a stream is acquired from.
type FacingMode string

const (
	// FacingUser is the camera facing the user.
	FacingUser FacingMode = "user"
	// FacingEnvironment is the camera facing away from the user.
	FacingEnvironment FacingMode = "environment"
)

// Config holds the requested stream settings. Zero values take defaults.
type Config struct {
	Width      int        `json:"width"`
	Height     int        `json:"height"`
	FacingMode FacingMode `json:"facingMode"`
}

// DefaultConfig returns a Config with 640x480 from the user-facing camera.
func DefaultConfig() Config {
	return Config{
		Width:      DefaultWidth,
		Height:     DefaultHeight,
		FacingMode: FacingUser,
	}
}

// WithDefaults fills unset fields with their defaults.
func (c Config) WithDefaults() Config {
	if c.Width == 0 {
		c.Width = DefaultWidth
	}
	if c.Height == 0 {
		c.Height = DefaultHeight
	}
	if c.FacingMode == "" {
		c.FacingMode = FacingUser
	}
	return c
}

// Validate checks that the configuration can be requested from a device.
func (c Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("invalid resolution %dx%d", c.Width, c.Height)
	}
	switch c.FacingMode {
	case FacingUser, FacingEnvironment:
		return nil
	default:
		return fmt.Errorf("unknown facing mode %q", c.FacingMode)
	}
}

// Track is one device track held by a stream.
type Track interface {
	ID() string
	// Stop returns the device to the system. Stopping twice is a no-op.
	Stop() error
	Live() bool
}

// Stream is a live video-only stream from a device.
type Stream interface {
	Tracks() []Track
	// ReadFrame reads the next frame. The caller must close the returned Mat.
	ReadFrame() (*gocv.Mat, error)
}

// Device opens streams matching a configuration.
type Device interface {
	Open(ctx context.Context, cfg Config) (Stream, error)
}

// Sink is a rendering surface a stream is attached to and played on.
type Sink interface {
	Attach(stream Stream) error
	Play(ctx context.Context) error
	Detach()
}

var (
	// ErrCameraNotOpen is returned when reading from a stream that is not open.
	ErrCameraNotOpen = errors.New("camera is not open")

	// ErrNoDevice is returned when no camera matches the requested facing mode.
	ErrNoDevice = errors.New("no camera device found")

	// ErrPermissionDenied is returned when access to the camera is refused.
	ErrPermissionDenied = errors.New("camera permission denied")
)

// AcquisitionError reports a failed acquisition step.
type AcquisitionError struct {
	Op  string
	Err error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("camera %s failed: %v", e.Op, e.Err)
}

func (e *AcquisitionError) Unwrap() error {
	return e.Err
}

func stopTracks(stream Stream) error {
	if stream == nil {
		return nil
	}
	var errs []error
	for _, t := range stream.Tracks() {
		if err := t.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stopping track %s: %w", t.ID(), err))
		}
	}
	return errors.Join(errs...)
}

func liveTracks(stream Stream) int {
	if stream == nil {
		return 0
	}
	n := 0
	for _, t := range stream.Tracks() {
		if t.Live() {
			n++
		}
	}
	return n
}
