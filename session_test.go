package dmatex_test

import (
	"errors"
	"fmt"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/spaghettifunk/dmatex"
	"github.com/spaghettifunk/dmatex/core"
	"github.com/spaghettifunk/dmatex/fourcc"
)

// openFD returns a real fd so the pipeline's close-on-failure paths
// operate on something the kernel knows about.
func openFD(t *testing.T) int {
	t.Helper()
	fd, err := unix.Open("/dev/null", unix.O_RDONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	return fd
}

func fdClosed(fd int) bool {
	_, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
	return err != nil
}

func fdDescriptor(t *testing.T, fd int, usage dmatex.Usage, modifier fourcc.Modifier) *dmatex.BufferDescriptor {
	t.Helper()
	planes := []dmatex.Plane{{FD: fd, Offset: 0, Stride: 1024}}
	d, err := dmatex.NewBufferDescriptor(planes, 256, 256, fourcc.ARGB8888, modifier, false, usage)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestImportReady(t *testing.T) {
	dev := newFakeDevice()
	im := dmatex.NewImporter(dev)
	fd := openFD(t)

	s, err := im.Import(fdDescriptor(t, fd, dmatex.UsageSampled, fourcc.ModifierLinear))
	if err != nil {
		t.Fatal(err)
	}
	if s.State() != dmatex.StateReady {
		t.Fatalf("state = %v, want Ready", s.State())
	}
	if !fdClosed(fd) {
		t.Error("plane fd not consumed on success")
	}

	tex, err := s.Texture()
	if err != nil {
		t.Fatal(err)
	}
	if tex.Format() != fourcc.ARGB8888 || tex.Width() != 256 || tex.Height() != 256 {
		t.Errorf("texture metadata = %s %dx%d", tex.Format(), tex.Width(), tex.Height())
	}
	if tex.Image() == nil || tex.View() == nil {
		t.Error("live texture returned nil backend objects")
	}
	if _, err := s.RenderTargetView(); err == nil {
		t.Error("sampled-only session handed out a render-target view")
	}
	if got := len(im.Sessions()); got != 1 {
		t.Errorf("Sessions() = %d entries, want 1", got)
	}

	s.Destroy()
	s.Destroy() // idempotent
	if s.State() != dmatex.StateDestroyed {
		t.Errorf("state after Destroy = %v", s.State())
	}
	if tex.Image() != nil || tex.View() != nil {
		t.Error("released texture still exposes backend objects")
	}
	if len(im.Sessions()) != 0 {
		t.Error("destroyed session still registered")
	}
	if dev.leaked() {
		t.Errorf("backend objects leaked: images=%d mems=%d views=%d", dev.liveImages, dev.liveMems, dev.liveViews)
	}
}

func TestImportRenderTarget(t *testing.T) {
	dev := newFakeDevice()
	im := dmatex.NewImporter(dev)

	s, err := im.Import(fdDescriptor(t, openFD(t), dmatex.UsageRenderTarget, fourcc.ModifierLinear))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.RenderTargetView(); err != nil {
		t.Errorf("RenderTargetView: %v", err)
	}
	if _, err := s.Texture(); err == nil {
		t.Error("render-target session handed out a sampled texture")
	}
	s.Destroy()
}

func TestImportImageCreationFailure(t *testing.T) {
	dev := newFakeDevice()
	dev.createErr = errors.New("VK_ERROR_OUT_OF_DEVICE_MEMORY")
	im := dmatex.NewImporter(dev)
	fd := openFD(t)

	s, err := im.Import(fdDescriptor(t, fd, dmatex.UsageSampled, fourcc.ModifierLinear))
	var ie *core.ImportError
	if !errors.As(err, &ie) || ie.Step != core.StepImageCreation {
		t.Fatalf("err = %v, want ImportError{StepImageCreation}", err)
	}
	if s.State() != dmatex.StateFailed {
		t.Errorf("state = %v, want Failed", s.State())
	}
	if !fdClosed(fd) {
		t.Error("plane fd leaked on image-creation failure")
	}
	if dev.leaked() {
		t.Error("backend objects leaked")
	}
	if len(im.Sessions()) != 0 {
		t.Error("failed session registered")
	}
}

func TestImportHandleRejected(t *testing.T) {
	dev := newFakeDevice()
	dev.importErr = errors.New("VK_ERROR_INVALID_EXTERNAL_HANDLE")
	im := dmatex.NewImporter(dev)
	fd := openFD(t)

	_, err := im.Import(fdDescriptor(t, fd, dmatex.UsageSampled, fourcc.ModifierLinear))
	if !core.IsHandleRejected(err) {
		t.Fatalf("err = %v, want handle rejection", err)
	}
	if !fdClosed(fd) {
		t.Error("plane fd leaked on import failure")
	}
	if dev.leaked() {
		t.Error("backend objects leaked")
	}
}

func TestImportBindFailure(t *testing.T) {
	dev := newFakeDevice()
	dev.bindErr = errors.New("bind refused")
	im := dmatex.NewImporter(dev)
	fd := openFD(t)

	_, err := im.Import(fdDescriptor(t, fd, dmatex.UsageSampled, fourcc.ModifierLinear))
	var ie *core.ImportError
	if !errors.As(err, &ie) || ie.Step != core.StepBind {
		t.Fatalf("err = %v, want ImportError{StepBind}", err)
	}
	if dev.leaked() {
		t.Error("backend objects leaked")
	}
}

func TestImportViewFailure(t *testing.T) {
	dev := newFakeDevice()
	dev.viewErr = errors.New("view refused")
	im := dmatex.NewImporter(dev)

	s, err := im.Import(fdDescriptor(t, openFD(t), dmatex.UsageSampled, fourcc.ModifierLinear))
	var ie *core.ImportError
	if !errors.As(err, &ie) || ie.Step != core.StepViewCreation {
		t.Fatalf("err = %v, want ImportError{StepViewCreation}", err)
	}
	if core.IsHandleRejected(err) {
		t.Error("view failure misreported as handle rejection")
	}
	if s.State() != dmatex.StateFailed {
		t.Errorf("state = %v, want Failed", s.State())
	}
	if dev.leaked() {
		t.Error("backend objects leaked")
	}
}

func TestCapabilityCache(t *testing.T) {
	dev := newFakeDevice()
	im := dmatex.NewImporter(dev)

	for i := 0; i < 2; i++ {
		s, err := im.Import(fdDescriptor(t, openFD(t), dmatex.UsageSampled, fourcc.ModifierLinear))
		if err != nil {
			t.Fatal(err)
		}
		defer s.Destroy()
	}
	// The second identical import must hit the cache: one modifier
	// enumeration, one probe.
	if dev.calls["Modifiers"] != 1 || dev.calls["ImageSupported"] != 1 {
		t.Errorf("negotiation not cached: %v", dev.calls)
	}
	if dev.calls["CreateImage"] != 2 {
		t.Errorf("CreateImage = %d, want 2", dev.calls["CreateImage"])
	}
}

func TestCachedCapabilityStillValidatesPlanes(t *testing.T) {
	dev := newFakeDevice()
	im := dmatex.NewImporter(dev)

	warm, err := im.Import(fdDescriptor(t, openFD(t), dmatex.UsageSampled, fourcc.ModifierLinear))
	if err != nil {
		t.Fatal(err)
	}
	defer warm.Destroy()

	// Same format, modifier and usage, but one plane too many for the
	// modifier's layout. The cached capability must not shortcut the
	// plane check.
	fd0, fd1 := openFD(t), openFD(t)
	planes := []dmatex.Plane{
		{FD: fd0, Stride: 1024},
		{FD: fd1, Offset: 1 << 18, Stride: 1024},
	}
	desc, err := dmatex.NewBufferDescriptor(planes, 256, 256, fourcc.ARGB8888, fourcc.ModifierLinear, false, dmatex.UsageSampled)
	if err != nil {
		t.Fatal(err)
	}
	s, err := im.Import(desc)
	if !errors.Is(err, core.ErrInvalidDescriptor) {
		t.Fatalf("err = %v, want ErrInvalidDescriptor", err)
	}
	if s.State() != dmatex.StateFailed {
		t.Errorf("state = %v, want Failed", s.State())
	}
	if !fdClosed(fd0) || !fdClosed(fd1) {
		t.Error("plane fds leaked on plane-count rejection")
	}
	if dev.calls["CreateImage"] != 1 {
		t.Errorf("CreateImage = %d, want only the warm import", dev.calls["CreateImage"])
	}
}

func TestImportPolicy(t *testing.T) {
	dev := newFakeDevice()
	im := dmatex.NewImporter(dev, dmatex.WithPolicy(func(format string) error {
		return fmt.Errorf("format %s not allowed", format)
	}))
	fd := openFD(t)

	s, err := im.Import(fdDescriptor(t, fd, dmatex.UsageSampled, fourcc.ModifierLinear))
	if !errors.Is(err, core.ErrNotSupported) {
		t.Fatalf("err = %v, want ErrNotSupported", err)
	}
	if s.State() != dmatex.StateFailed {
		t.Errorf("state = %v, want Failed", s.State())
	}
	if !fdClosed(fd) {
		t.Error("plane fd leaked on policy rejection")
	}
	// Policy rejection precedes every device query.
	if len(dev.calls) != 0 {
		t.Errorf("policy rejection queried the device: %v", dev.calls)
	}
}

func TestUnsupportedImportClosesFds(t *testing.T) {
	dev := newFakeDevice()
	dev.noHandles = true
	im := dmatex.NewImporter(dev)
	fd := openFD(t)

	_, err := im.Import(fdDescriptor(t, fd, dmatex.UsageSampled, fourcc.ModifierLinear))
	if !errors.Is(err, core.ErrNotSupported) {
		t.Fatalf("err = %v, want ErrNotSupported", err)
	}
	if !fdClosed(fd) {
		t.Error("plane fd leaked on negotiation failure")
	}
}

func TestImportLinearFallbackOption(t *testing.T) {
	dev := newFakeDevice()
	dev.modifiers = nil
	im := dmatex.NewImporter(dev, dmatex.WithLinearFallback())

	s, err := im.Import(fdDescriptor(t, openFD(t), dmatex.UsageSampled, fourcc.ModifierInvalid))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Destroy()
	if s.State() != dmatex.StateReady {
		t.Errorf("state = %v, want Ready", s.State())
	}
}

func TestSessionStateErrors(t *testing.T) {
	dev := newFakeDevice()
	dev.probeFail = true
	im := dmatex.NewImporter(dev)

	failed, err := im.Import(fdDescriptor(t, openFD(t), dmatex.UsageSampled, fourcc.ModifierLinear))
	if err == nil {
		t.Fatal("want negotiation failure")
	}
	if _, err := failed.Texture(); !errors.Is(err, core.ErrSessionNotReady) {
		t.Errorf("failed session Texture err = %v, want ErrSessionNotReady", err)
	}
	if _, err := failed.Texture(); errors.Is(err, core.ErrSessionDestroyed) {
		t.Error("failed session reported as destroyed")
	}

	okDev := newFakeDevice()
	im = dmatex.NewImporter(okDev)
	s, err := im.Import(fdDescriptor(t, openFD(t), dmatex.UsageSampled, fourcc.ModifierLinear))
	if err != nil {
		t.Fatal(err)
	}
	s.Destroy()
	if _, err := s.Texture(); !errors.Is(err, core.ErrSessionDestroyed) {
		t.Errorf("destroyed session Texture err = %v, want ErrSessionDestroyed", err)
	}
	if _, err := s.Image(); !errors.Is(err, core.ErrSessionDestroyed) {
		t.Errorf("destroyed session Image err = %v, want ErrSessionDestroyed", err)
	}
}

func TestDeviceLost(t *testing.T) {
	dev := newFakeDevice()
	im := dmatex.NewImporter(dev)

	ready, err := im.Import(fdDescriptor(t, openFD(t), dmatex.UsageSampled, fourcc.ModifierLinear))
	if err != nil {
		t.Fatal(err)
	}
	tex, err := ready.Texture()
	if err != nil {
		t.Fatal(err)
	}

	dev.importErr = fmt.Errorf("vkAllocateMemory: %w", core.ErrDeviceLost)
	_, err = im.Import(fdDescriptor(t, openFD(t), dmatex.UsageSampled, fourcc.ModifierLinear))
	if !errors.Is(err, core.ErrDeviceLost) {
		t.Fatalf("err = %v, want ErrDeviceLost", err)
	}

	// Loss is fatal for every session on the device.
	if ready.State() != dmatex.StateDestroyed {
		t.Errorf("prior session state = %v, want Destroyed", ready.State())
	}
	if !tex.Released() {
		t.Error("prior texture still live after device loss")
	}
	if len(im.Sessions()) != 0 {
		t.Error("sessions survive device loss")
	}

	// The importer refuses further work until the host rebuilds the device.
	_, err = im.Import(fdDescriptor(t, openFD(t), dmatex.UsageSampled, fourcc.ModifierLinear))
	if !errors.Is(err, core.ErrDeviceLost) {
		t.Fatalf("post-loss import err = %v, want ErrDeviceLost", err)
	}
}
