package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"k8s.io/klog/v2"

	"github.com/ayusman/libra/internal/app"
	"github.com/ayusman/libra/internal/capture"
	"github.com/ayusman/libra/internal/config"
	"github.com/ayusman/libra/internal/inference"
	"github.com/ayusman/libra/internal/server"
	"github.com/ayusman/libra/internal/tray"
)

func main() {
	klog.InitFlags(nil)

	cfg := config.Load()
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address")
	flag.StringVar(&cfg.ModelLocation, "model", cfg.ModelLocation, "model location (path, file://, http(s):// or gs://)")
	flag.StringVar(&cfg.Runtime, "runtime", cfg.Runtime, "inference runtime: onnxruntime or opencv")
	flag.BoolVar(&cfg.Tray, "tray", cfg.Tray, "show the system tray menu")
	flag.Parse()
	defer klog.Flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := klog.FromContext(ctx)
	log.Info("Libra - camera capture and inference")

	runtime, err := newRuntime(cfg)
	if err != nil {
		log.Error(err, "unsupported runtime")
		os.Exit(1)
	}

	manager := inference.NewManager(inference.Options{
		Runtime: runtime,
		Probe:   inference.HostProbe{Disabled: cfg.DisableAccel},
		Strict:  cfg.StrictNames,
	})
	log.Info("inference manager ready", "runtime", runtime.Name(), "accelerated", manager.Accelerated())

	sink := capture.NewFrameSink()
	provider := capture.NewProvider(capture.NewVideoDevice(cfg.CameraUser, cfg.CameraEnvironment), sink)

	a := app.New(app.Config{
		Provider: provider,
		Manager:  manager,
		Camera: capture.Config{
			Width:      cfg.CameraWidth,
			Height:     cfg.CameraHeight,
			FacingMode: capture.FacingMode(cfg.CameraFacing),
		},
		ModelLocation:  cfg.ModelLocation,
		SequenceLength: cfg.SequenceLength,
		FeatureDim:     cfg.FeatureDim,
	})
	defer func() {
		if err := a.Close(); err != nil {
			log.Error(err, "shutting down")
		}
	}()

	if _, err := a.StartCamera(ctx); err != nil {
		log.Error(err, "camera unavailable; retry from the web interface")
	}

	webDir := cfg.StaticDir
	if webDir == "" {
		webDir = findWebDir()
	}
	if webDir != "" {
		log.Info("serving static files", "dir", webDir)
	}

	srv := server.New(server.Config{
		StaticDir: webDir,
		App:       a,
		Frames:    sink,
	})

	errc := make(chan error, 1)
	go func() {
		log.Info("starting server", "addr", cfg.Addr)
		errc <- srv.ListenAndServe(cfg.Addr)
	}()

	if cfg.Tray {
		go func() {
			select {
			case <-ctx.Done():
			case err := <-errc:
				log.Error(err, "server failed")
			}
			stop()
		}()
		runTray(ctx, a, stop)
		return
	}

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errc:
		log.Error(err, "server failed")
	}
}

func newRuntime(cfg *config.Config) (inference.Runtime, error) {
	switch cfg.Runtime {
	case "", "onnxruntime":
		return &inference.ONNXRuntime{
			LibraryPath: cfg.ORTLibrary,
			Threads:     cfg.ORTThreads,
			CUDADevice:  cfg.CUDADevice,
		}, nil
	case "opencv":
		return inference.OpenCVRuntime{}, nil
	default:
		return nil, fmt.Errorf("unknown runtime %q (want onnxruntime or opencv)", cfg.Runtime)
	}
}

// runTray blocks on the tray menu. The menu mirrors the web interface's
// load and run actions and shows the last status message.
func runTray(ctx context.Context, a *app.App, stop context.CancelFunc) {
	log := klog.FromContext(ctx)

	t := tray.New()
	a.Subscribe(func(ev app.Event) { t.SetStatus(ev.Message) })

	t.OnLoadModel(func() {
		go func() {
			if _, err := a.LoadModel(ctx, ""); err != nil {
				log.Error(err, "loading model from tray")
			}
		}()
	})
	t.OnRunInference(func() {
		go func() {
			if _, err := a.RunDummy(ctx); err != nil {
				log.Error(err, "running inference from tray")
			}
		}()
	})
	t.OnQuit(stop)

	go func() {
		<-ctx.Done()
		t.Quit()
	}()
	t.Run()
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.libra/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	homeWebDir := filepath.Join(homeDir, ".libra", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}
