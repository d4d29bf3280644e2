package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"gocv.io/x/gocv"
	"k8s.io/klog/v2"
)

// VideoDevice opens camera streams through gocv.VideoCapture. Facing modes
// map to device indices.
type VideoDevice struct {
	UserDeviceID        int
	EnvironmentDeviceID int
	FPS                 int
}

var _ Device = (*VideoDevice)(nil)

// NewVideoDevice creates a VideoDevice with the given device indices.
func NewVideoDevice(userID, environmentID int) *VideoDevice {
	return &VideoDevice{
		UserDeviceID:        userID,
		EnvironmentDeviceID: environmentID,
		FPS:                 DefaultFPS,
	}
}

func (d *VideoDevice) deviceFor(mode FacingMode) int {
	if mode == FacingEnvironment {
		return d.EnvironmentDeviceID
	}
	return d.UserDeviceID
}

// Open opens the camera for the configured facing mode and requests the
// configured resolution. Devices may deliver a different resolution.
func (d *VideoDevice) Open(ctx context.Context, cfg Config) (Stream, error) {
	log := klog.FromContext(ctx)

	deviceID := d.deviceFor(cfg.FacingMode)
	capture, err := gocv.OpenVideoCapture(deviceID)
	if err != nil {
		return nil, fmt.Errorf("opening device %d: %w: %v", deviceID, ErrNoDevice, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("opening device %d: %w", deviceID, ErrNoDevice)
	}

	capture.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	if d.FPS > 0 {
		capture.Set(gocv.VideoCaptureFPS, float64(d.FPS))
	}

	track := &videoTrack{id: uuid.NewString(), capture: capture, live: true}
	log.Info("camera opened", "device", deviceID, "track", track.id,
		"width", capture.Get(gocv.VideoCaptureFrameWidth), "height", capture.Get(gocv.VideoCaptureFrameHeight))

	return &videoStream{track: track}, nil
}

// videoTrack owns one gocv.VideoCapture.
type videoTrack struct {
	id      string
	mu      sync.Mutex
	capture *gocv.VideoCapture
	live    bool
}

func (t *videoTrack) ID() string { return t.id }

func (t *videoTrack) Live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}

func (t *videoTrack) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.live || t.capture == nil {
		t.live = false
		return nil
	}

	err := t.capture.Close()
	t.capture = nil
	t.live = false
	return err
}

// ReadFrame reads a single frame from the camera.
// The caller is responsible for closing the returned Mat.
func (t *videoTrack) ReadFrame() (*gocv.Mat, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.live || t.capture == nil {
		return nil, ErrCameraNotOpen
	}

	mat := gocv.NewMat()
	if ok := t.capture.Read(&mat); !ok {
		mat.Close()
		return nil, errors.New("failed to read frame from camera")
	}

	if mat.Empty() {
		mat.Close()
		return nil, errors.New("captured frame is empty")
	}

	return &mat, nil
}

type videoStream struct {
	track *videoTrack
}

func (s *videoStream) Tracks() []Track { return []Track{s.track} }

func (s *videoStream) ReadFrame() (*gocv.Mat, error) { return s.track.ReadFrame() }
