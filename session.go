package dmatex

import (
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/exp/maps"

	"github.com/spaghettifunk/dmatex/backend"
	"github.com/spaghettifunk/dmatex/core"
)

// SessionState tracks one buffer's import lifecycle. There is no way back
// from Ready: a session imports exactly one buffer once.
type SessionState int

const (
	StatePending SessionState = iota
	StateNegotiating
	StateImporting
	StateReady
	StateFailed
	StateDestroyed
)

func (s SessionState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateNegotiating:
		return "negotiating"
	case StateImporting:
		return "importing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateDestroyed:
		return "destroyed"
	}
	return "unknown"
}

// Session owns one imported buffer for its registered lifetime. The
// importer that created it is the sole authority over destruction order.
type Session struct {
	id      uuid.UUID
	state   SessionState
	err     error
	usage   Usage
	texture *Texture
	im      *Importer
}

func (s *Session) ID() uuid.UUID       { return s.id }
func (s *Session) State() SessionState { return s.state }

// Err reports why a Failed session failed.
func (s *Session) Err() error { return s.err }

// notReadyErr tells a torn-down session apart from one that never got
// to Ready.
func (s *Session) notReadyErr() error {
	if s.state == StateDestroyed {
		return fmt.Errorf("%w: session %s", core.ErrSessionDestroyed, s.id)
	}
	return fmt.Errorf("%w: session is %s", core.ErrSessionNotReady, s.state)
}

// Texture returns the sampled-texture handle of a Ready session imported
// with UsageSampled.
func (s *Session) Texture() (*Texture, error) {
	if s.state != StateReady {
		return nil, s.notReadyErr()
	}
	if s.usage&UsageSampled == 0 {
		return nil, fmt.Errorf("session %s was not imported for sampling", s.id)
	}
	return s.texture, nil
}

// RenderTargetView returns the render-target view of a Ready session
// imported with UsageRenderTarget. Downstream render passes can treat it
// like any natively created attachment.
func (s *Session) RenderTargetView() (backend.View, error) {
	if s.state != StateReady {
		return nil, s.notReadyErr()
	}
	if s.usage&UsageRenderTarget == 0 {
		return nil, fmt.Errorf("session %s was not imported as a render target", s.id)
	}
	return s.texture.View(), nil
}

// Image exposes the raw backend image of a Ready session, for queue
// ownership barriers around use.
func (s *Session) Image() (backend.Image, error) {
	if s.state != StateReady {
		return nil, s.notReadyErr()
	}
	return s.texture.Image(), nil
}

// Destroy releases the session's backend resources and removes it from
// the importer's registry. Idempotent.
func (s *Session) Destroy() {
	if s.state != StateReady {
		return
	}
	s.state = StateDestroyed
	s.texture.Release()
	s.im.unregister(s.id)
}

func (s *Session) fail(err error) {
	s.state = StateFailed
	s.err = err
}

// capabilityKey identifies one negotiation outcome; results are stable for
// the device's lifetime, so they are cached per importer. The plane count
// is part of the key because negotiation validates it against the
// modifier's layout.
type capabilityKey struct {
	format   uint32
	srgb     bool
	modifier uint64
	usage    Usage
	planes   int
}

// Importer drives import sessions against one device. It is not safe for
// concurrent use: all calls must happen on the goroutine owning the
// device, matching the graphics API's threading discipline.
type Importer struct {
	dev      backend.Device
	opts     NegotiateOptions
	allowed  func(*BufferDescriptor) error
	caps     map[capabilityKey]backend.Capability
	sessions map[uuid.UUID]*Session
	lost     bool
}

// ImporterOption configures an Importer.
type ImporterOption func(*Importer)

// WithLinearFallback permits linear-tiling imports for descriptors that
// do not fix a layout modifier.
func WithLinearFallback() ImporterOption {
	return func(im *Importer) { im.opts.AllowLinearFallback = true }
}

// WithPolicy installs a descriptor admission check, typically
// (*config.Config).Admit. A nil policy admits everything.
func WithPolicy(admit func(format string) error) ImporterOption {
	return func(im *Importer) {
		if admit == nil {
			return
		}
		im.allowed = func(d *BufferDescriptor) error {
			return admit(d.Format().String())
		}
	}
}

// NewImporter wraps an explicit device context. There is deliberately no
// package-level current device: every call names the device it works on.
func NewImporter(dev backend.Device, opts ...ImporterOption) *Importer {
	im := &Importer{
		dev:      dev,
		caps:     make(map[capabilityKey]backend.Capability),
		sessions: make(map[uuid.UUID]*Session),
	}
	for _, o := range opts {
		o(im)
	}
	return im
}

// Import runs the full pipeline for one buffer. The returned session is
// Ready on success. On failure it is Failed (and unregistered) and the
// error is one of: core.ErrInvalidDescriptor wraps, core.ErrNotSupported,
// *core.ImportError, or core.ErrDeviceLost.
func (im *Importer) Import(desc *BufferDescriptor) (*Session, error) {
	if im.lost {
		closePlanes(desc)
		return nil, fmt.Errorf("importer unusable: %w", core.ErrDeviceLost)
	}

	s := &Session{
		id:    uuid.New(),
		state: StatePending,
		usage: desc.Usage(),
		im:    im,
	}

	if im.allowed != nil {
		if err := im.allowed(desc); err != nil {
			err = fmt.Errorf("%w: %v", core.ErrNotSupported, err)
			closePlanes(desc)
			s.fail(err)
			return s, err
		}
	}

	s.state = StateNegotiating
	capability, err := im.negotiate(desc)
	if err != nil {
		closePlanes(desc)
		s.fail(err)
		im.noteDeviceLost(err)
		return s, err
	}

	s.state = StateImporting
	res, err := importBuffer(im.dev, capability, desc)
	if err != nil {
		s.fail(err)
		im.noteDeviceLost(err)
		return s, err
	}
	tex, err := wrapTexture(im.dev, res, capability, desc)
	if err != nil {
		s.fail(err)
		im.noteDeviceLost(err)
		return s, err
	}

	s.texture = tex
	s.state = StateReady
	im.sessions[s.id] = s
	core.LogInfo("imported %s as session %s", desc, s.id)
	return s, nil
}

func (im *Importer) negotiate(desc *BufferDescriptor) (backend.Capability, error) {
	key := capabilityKey{
		format:   uint32(desc.Format()),
		srgb:     desc.SRGB(),
		modifier: uint64(desc.Modifier()),
		usage:    desc.Usage(),
		planes:   desc.PlaneCount(),
	}
	if capability, ok := im.caps[key]; ok {
		return capability, nil
	}
	capability, err := Negotiate(im.dev, desc, im.opts)
	if err != nil {
		return capability, err
	}
	im.caps[key] = capability
	return capability, nil
}

// Sessions snapshots the Ready sessions currently registered.
func (im *Importer) Sessions() []*Session {
	return maps.Values(im.sessions)
}

// HandleDeviceLost destroys every session and clears cached capabilities.
// The importer refuses further imports afterwards; the host must re-create
// the device and a fresh importer.
func (im *Importer) HandleDeviceLost() {
	im.lost = true
	for _, s := range maps.Values(im.sessions) {
		// The device is gone; drop host state without driver calls.
		s.state = StateDestroyed
		s.texture.markLost()
	}
	maps.Clear(im.sessions)
	maps.Clear(im.caps)
	core.LogError("device lost: all import sessions destroyed")
}

func (im *Importer) noteDeviceLost(err error) {
	if err != nil && isDeviceLost(err) {
		im.HandleDeviceLost()
	}
}

func (im *Importer) unregister(id uuid.UUID) {
	delete(im.sessions, id)
}
