package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/ayusman/libra/internal/capture"
	"github.com/ayusman/libra/internal/inference"
)

type testEnv struct {
	app     *App
	device  *capture.MockDevice
	runtime *inference.MockRuntime
}

func newTestEnv(t *testing.T, accelerated bool) *testEnv {
	t.Helper()

	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { frame.Close() })

	device := capture.NewMockDevice([]*gocv.Mat{&frame}, true)
	rt := inference.NewMockRuntime()
	rt.SetOutputShape(1, 26)

	a := New(Config{
		Provider: capture.NewProvider(device, capture.NewFrameSink()),
		Manager: inference.NewManager(inference.Options{
			Runtime: rt,
			Probe:   inference.ProbeFunc(func() bool { return accelerated }),
			Fetcher: inference.FetcherFunc(func(ctx context.Context, location string) ([]byte, error) {
				return []byte(location), nil
			}),
		}),
		Camera:        capture.Config{Width: 640, Height: 480},
		ModelLocation: "models/gesture.onnx",
	})
	t.Cleanup(func() { a.Close() })

	return &testEnv{app: a, device: device, runtime: rt}
}

func TestApp_StartCamera(t *testing.T) {
	env := newTestEnv(t, false)

	h, err := env.app.StartCamera(context.Background())
	require.NoError(t, err)
	assert.True(t, h.Ready())
	assert.Empty(t, h.Err())

	st := env.app.Status()
	assert.True(t, st.Camera.Ready)
	assert.Equal(t, 640, st.Camera.Width)
	assert.Equal(t, capture.FacingUser, st.Camera.FacingMode)

	require.NoError(t, env.app.StopCamera())
	assert.Equal(t, 0, env.device.LiveTracks())
	assert.False(t, env.app.Status().Camera.Ready)
}

func TestApp_StartCamera_PermissionRevoked(t *testing.T) {
	env := newTestEnv(t, false)
	env.device.SetError(capture.ErrPermissionDenied)

	h, err := env.app.StartCamera(context.Background())
	require.Error(t, err)
	assert.False(t, h.Ready())
	assert.NotEmpty(t, h.Err())

	st := env.app.Status()
	assert.False(t, st.Camera.Ready)
	assert.NotEmpty(t, st.Camera.Error)
}

func TestApp_RunDummy_BeforeLoad(t *testing.T) {
	env := newTestEnv(t, false)

	_, err := env.app.RunDummy(context.Background())
	assert.ErrorIs(t, err, inference.ErrSessionNotReady)
	assert.Equal(t, "Load the model first.", env.app.Status().Message)
}

func TestApp_LoadModelAndRun(t *testing.T) {
	env := newTestEnv(t, true)

	s, err := env.app.LoadModel(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, inference.BackendAccelerated, s.Backend())
	assert.Equal(t, "models/gesture.onnx", s.Location())
	assert.Equal(t, "Model loaded with HARDWARE-ACCELERATED.", env.app.Status().Message)

	result, err := env.app.RunDummy(context.Background())
	require.NoError(t, err)

	assert.Equal(t, inference.BackendAccelerated, result.Backend)
	assert.Equal(t, 26, result.Length)
	assert.Len(t, result.Head, HeadSize)
	assert.Equal(t, "Inference OK. Output[0..4]= 0.0000, 0.1000, 0.2000, 0.3000, 0.4000", result.Message)

	_, feed := env.runtime.LastFeed()
	assert.Equal(t, []int64{1, 30, 150}, feed.Shape)
	assert.Len(t, feed.Data, 4500)

	st := env.app.Status()
	assert.Equal(t, inference.StateLoaded, st.Model.State)
	assert.Equal(t, s.ID(), st.Model.SessionID)
	assert.True(t, st.Accelerated)
}

func TestApp_LoadModel_ReplacesSession(t *testing.T) {
	env := newTestEnv(t, false)

	first, err := env.app.LoadModel(context.Background(), "a.onnx")
	require.NoError(t, err)
	second, err := env.app.LoadModel(context.Background(), "b.onnx")
	require.NoError(t, err)

	assert.False(t, first.Loaded(), "previous session should be closed")
	assert.True(t, second.Loaded())
	assert.Equal(t, second, env.app.Session())
}

func TestApp_LoadModel_Failure(t *testing.T) {
	env := newTestEnv(t, true)
	env.runtime.SetFailure(inference.BackendAccelerated, errors.New("no CUDA"))
	env.runtime.SetFailure(inference.BackendPortable, errors.New("bad graph"))

	_, err := env.app.LoadModel(context.Background(), "")
	var creationErr *inference.SessionCreationError
	require.True(t, errors.As(err, &creationErr))

	st := env.app.Status()
	assert.Equal(t, inference.StateLoadFailed, st.Model.State)
	assert.Contains(t, st.Message, "bad graph")
	assert.Nil(t, env.app.Session())
}

func TestApp_Run_ShapeMismatch(t *testing.T) {
	env := newTestEnv(t, false)
	_, err := env.app.LoadModel(context.Background(), "")
	require.NoError(t, err)

	_, err = env.app.Run(context.Background(), make([]float32, 10), []int64{1, 30, 150})
	assert.ErrorIs(t, err, inference.ErrShapeMismatch)
}

func TestApp_Subscribe(t *testing.T) {
	env := newTestEnv(t, false)

	var mu sync.Mutex
	var events []Event
	env.app.Subscribe(func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	})

	_, err := env.app.LoadModel(context.Background(), "")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 2)
	assert.Equal(t, EventModel, events[0].Type)
	assert.Equal(t, "Loading model...", events[0].Message)
	assert.Equal(t, inference.StateLoaded, events[1].Status.Model.State)
}

func TestFormatHead(t *testing.T) {
	tests := []struct {
		name   string
		values []float32
		want   string
	}{
		{name: "five values", values: []float32{0, 0.5, -1, 2.25, 3}, want: "Output[0..4]= 0.0000, 0.5000, -1.0000, 2.2500, 3.0000"},
		{name: "short output", values: []float32{1.23456}, want: "Output[0..0]= 1.2346"},
		{name: "empty", values: nil, want: "Output[0..0]= "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatHead(tt.values))
		})
	}
}
