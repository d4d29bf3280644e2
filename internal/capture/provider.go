package capture

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"k8s.io/klog/v2"
)

// Handle is one acquired camera stream and its readiness.
// Ready is true only after the device grant succeeded and the stream is
// attached to the provider's sink and playing.
type Handle struct {
	id     string
	config Config

	mu       sync.Mutex
	stream   Stream
	ready    bool
	errMsg   string
	released bool
	provider *Provider
}

// ID returns the unique handle identifier.
func (h *Handle) ID() string { return h.id }

// Config returns the configuration the handle was acquired with.
func (h *Handle) Config() Config { return h.config }

// Ready reports whether the stream is live and playing.
func (h *Handle) Ready() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ready
}

// Err returns the acquisition error message, or "" when none occurred.
func (h *Handle) Err() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.errMsg
}

// Released reports whether the handle's tracks have been stopped.
func (h *Handle) Released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}

// Release stops every track and detaches the stream from the sink.
func (h *Handle) Release() error {
	return h.provider.release(h)
}

func (h *Handle) fail(op string, err error) error {
	acqErr := &AcquisitionError{Op: op, Err: err}
	h.mu.Lock()
	h.ready = false
	h.errMsg = acqErr.Error()
	h.mu.Unlock()
	return acqErr
}

// Provider acquires camera streams from a device and attaches them to a
// sink. At most one handle is live per provider.
type Provider struct {
	device Device
	sink   Sink

	mu      sync.Mutex
	current *Handle
}

// NewProvider creates a Provider. A nil sink is replaced by a FrameSink so
// every ready handle is attached to a live sink.
func NewProvider(device Device, sink Sink) *Provider {
	if sink == nil {
		sink = NewFrameSink()
	}
	return &Provider{device: device, sink: sink}
}

// Sink returns the sink streams are attached to.
func (p *Provider) Sink() Sink { return p.sink }

// Acquire releases the current handle, then opens a new stream matching cfg,
// attaches it to the sink and starts playback. On failure the returned
// handle carries the error message, is not ready, and holds no tracks.
func (p *Provider) Acquire(ctx context.Context, cfg Config) (*Handle, error) {
	log := klog.FromContext(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.releaseLocked(ctx, p.current); err != nil {
		log.Error(err, "releasing previous camera handle")
	}

	cfg = cfg.WithDefaults()
	h := &Handle{id: uuid.NewString(), config: cfg, provider: p}
	p.current = h

	if err := cfg.Validate(); err != nil {
		return h, h.fail("configure", err)
	}

	stream, err := p.device.Open(ctx, cfg)
	if err != nil {
		log.Info("camera acquisition failed", "err", err.Error())
		return h, h.fail("open", err)
	}

	h.mu.Lock()
	h.stream = stream
	h.mu.Unlock()

	// Abandoned while the device was being opened.
	if err := ctx.Err(); err != nil {
		p.abandonLocked(ctx, h)
		return h, h.fail("open", err)
	}

	if err := p.sink.Attach(stream); err != nil {
		p.abandonLocked(ctx, h)
		return h, h.fail("attach", err)
	}
	if err := p.sink.Play(ctx); err != nil {
		p.abandonLocked(ctx, h)
		return h, h.fail("play", err)
	}

	h.mu.Lock()
	h.ready = true
	h.mu.Unlock()

	log.Info("camera ready", "handle", h.id, "width", cfg.Width, "height", cfg.Height, "facingMode", cfg.FacingMode)
	return h, nil
}

// Current returns the most recently acquired handle, or nil.
func (p *Provider) Current() *Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Release releases the current handle, if any.
func (p *Provider) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.releaseLocked(context.Background(), p.current)
}

// ActiveTracks returns the number of live tracks held by the provider.
func (p *Provider) ActiveTracks() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil {
		return 0
	}
	p.current.mu.Lock()
	defer p.current.mu.Unlock()
	return liveTracks(p.current.stream)
}

func (p *Provider) release(h *Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.releaseLocked(context.Background(), h)
}

// abandonLocked releases a handle whose acquisition failed part way.
func (p *Provider) abandonLocked(ctx context.Context, h *Handle) {
	if err := p.releaseLocked(ctx, h); err != nil {
		klog.FromContext(ctx).Error(err, "releasing abandoned camera handle", "handle", h.id)
	}
}

func (p *Provider) releaseLocked(ctx context.Context, h *Handle) error {
	if h == nil {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return nil
	}
	h.released = true
	h.ready = false

	if h.stream != nil && p.current == h {
		p.sink.Detach()
	}

	err := stopTracks(h.stream)
	if h.stream != nil {
		klog.FromContext(ctx).Info("camera released", "handle", h.id)
	}
	return err
}
