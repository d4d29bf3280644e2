package api

import (
	"context"
	"testing"

	"gocv.io/x/gocv"

	"github.com/ayusman/libra/internal/app"
	"github.com/ayusman/libra/internal/capture"
	"github.com/ayusman/libra/internal/inference"
)

type testApp struct {
	app     *app.App
	device  *capture.MockDevice
	runtime *inference.MockRuntime
}

// newTestApp creates an App backed by a mock camera and a mock runtime.
func newTestApp(t *testing.T) *testApp {
	t.Helper()

	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { frame.Close() })

	device := capture.NewMockDevice([]*gocv.Mat{&frame}, true)
	rt := inference.NewMockRuntime()

	a := app.New(app.Config{
		Provider: capture.NewProvider(device, capture.NewFrameSink()),
		Manager: inference.NewManager(inference.Options{
			Runtime: rt,
			Probe:   inference.ProbeFunc(func() bool { return false }),
			Fetcher: inference.FetcherFunc(func(ctx context.Context, location string) ([]byte, error) {
				return []byte("graph"), nil
			}),
		}),
		ModelLocation: "models/gesture.onnx",
	})
	t.Cleanup(func() { a.Close() })

	return &testApp{app: a, device: device, runtime: rt}
}
