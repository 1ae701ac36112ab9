package dmatex_test

import (
	"errors"
	"testing"

	"github.com/spaghettifunk/dmatex"
	"github.com/spaghettifunk/dmatex/core"
	"github.com/spaghettifunk/dmatex/fourcc"
)

func onePlane() []dmatex.Plane {
	return []dmatex.Plane{{FD: 0, Offset: 0, Stride: 4096}}
}

func TestNewBufferDescriptorRejects(t *testing.T) {
	cases := []struct {
		name   string
		planes []dmatex.Plane
		w, h   uint32
		format fourcc.Code
		usage  dmatex.Usage
	}{
		{"zero width", onePlane(), 0, 64, fourcc.ARGB8888, dmatex.UsageSampled},
		{"zero height", onePlane(), 64, 0, fourcc.ARGB8888, dmatex.UsageSampled},
		{"no planes", nil, 64, 64, fourcc.ARGB8888, dmatex.UsageSampled},
		{"too many planes", make([]dmatex.Plane, 5), 64, 64, fourcc.ARGB8888, dmatex.UsageSampled},
		{"unknown format", onePlane(), 64, 64, fourcc.Code(0xdeadbeef), dmatex.UsageSampled},
		{"zero usage", onePlane(), 64, 64, fourcc.ARGB8888, 0},
		{"bad usage bits", onePlane(), 64, 64, fourcc.ARGB8888, dmatex.Usage(1 << 7)},
		{"negative fd", []dmatex.Plane{{FD: -1, Stride: 4096}}, 64, 64, fourcc.ARGB8888, dmatex.UsageSampled},
		{"negative stride", []dmatex.Plane{{FD: 0, Stride: -1}}, 64, 64, fourcc.ARGB8888, dmatex.UsageSampled},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, err := dmatex.NewBufferDescriptor(tc.planes, tc.w, tc.h, tc.format, fourcc.ModifierLinear, false, tc.usage)
			if !errors.Is(err, core.ErrInvalidDescriptor) {
				t.Fatalf("err = %v, want ErrInvalidDescriptor", err)
			}
			if d != nil {
				t.Fatal("invalid input produced a descriptor")
			}
		})
	}
}

func TestNewBufferDescriptorValid(t *testing.T) {
	d, err := dmatex.NewBufferDescriptor(onePlane(), 640, 480, fourcc.XRGB8888, fourcc.ModifierLinear, true, dmatex.UsageSampled|dmatex.UsageRenderTarget)
	if err != nil {
		t.Fatal(err)
	}
	if d.Width() != 640 || d.Height() != 480 {
		t.Errorf("extent = %dx%d", d.Width(), d.Height())
	}
	if d.Format() != fourcc.XRGB8888 || !d.SRGB() {
		t.Errorf("format/srgb = %s/%v", d.Format(), d.SRGB())
	}
	if d.PlaneCount() != 1 {
		t.Errorf("PlaneCount = %d", d.PlaneCount())
	}
}

func TestDescriptorImmutable(t *testing.T) {
	in := onePlane()
	d, err := dmatex.NewBufferDescriptor(in, 64, 64, fourcc.R8, fourcc.ModifierLinear, false, dmatex.UsageSampled)
	if err != nil {
		t.Fatal(err)
	}

	// Neither the input slice nor the accessor result may alias internals.
	in[0].Stride = -7
	out := d.Planes()
	out[0].FD = 99
	if got := d.Planes()[0]; got.Stride != 4096 || got.FD != 0 {
		t.Errorf("descriptor mutated through aliases: %+v", got)
	}
}

func TestDescriptorValidationTouchesNoBackend(t *testing.T) {
	dev := newFakeDevice()
	dmatex.NewImporter(dev)

	if _, err := dmatex.NewBufferDescriptor(nil, 0, 0, fourcc.Invalid, fourcc.ModifierLinear, false, 0); err == nil {
		t.Fatal("want validation error")
	}
	if len(dev.calls) != 0 {
		t.Errorf("validation made backend calls: %v", dev.calls)
	}
}
