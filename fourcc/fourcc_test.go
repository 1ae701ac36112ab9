package fourcc_test

import (
	"testing"

	"github.com/spaghettifunk/dmatex/fourcc"
)

func TestParseRoundTrip(t *testing.T) {
	for _, name := range fourcc.Names() {
		code, err := fourcc.Parse(name)
		if err != nil {
			t.Fatalf("Parse(%q): %v", name, err)
		}
		if code.String() != name {
			t.Errorf("Parse(%q).String() = %q", name, code.String())
		}
		if !fourcc.Known(code) {
			t.Errorf("Parse(%q) produced unknown code", name)
		}
	}
}

func TestParseUnknown(t *testing.T) {
	for _, name := range []string{"", "YUYV", "argb8888", "ARGB888"} {
		if _, err := fourcc.Parse(name); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", name)
		}
	}
}

func TestUnknownCode(t *testing.T) {
	c := fourcc.Code(0x12345678)
	if fourcc.Known(c) {
		t.Fatal("arbitrary code reported known")
	}
	if fourcc.PlaneCount(c) != 0 || fourcc.BytesPerPixel(c) != 0 {
		t.Error("unknown code has nonzero metadata")
	}
	if fourcc.HasAlpha(c) {
		t.Error("unknown code has alpha")
	}
}

func TestAlphaOpaquePairs(t *testing.T) {
	pairs := map[fourcc.Code]fourcc.Code{
		fourcc.ARGB8888:    fourcc.XRGB8888,
		fourcc.ABGR8888:    fourcc.XBGR8888,
		fourcc.ARGB2101010: fourcc.XRGB2101010,
		fourcc.ABGR2101010: fourcc.XBGR2101010,
	}
	for alpha, opaque := range pairs {
		got, ok := fourcc.OpaqueSibling(alpha)
		if !ok || got != opaque {
			t.Errorf("OpaqueSibling(%s) = %s, %v; want %s", alpha, got, ok, opaque)
		}
		if !fourcc.HasAlpha(alpha) {
			t.Errorf("%s should carry alpha", alpha)
		}
		if fourcc.HasAlpha(opaque) {
			t.Errorf("%s should not carry alpha", opaque)
		}
		// Sibling pairs share a memory layout.
		if fourcc.BytesPerPixel(alpha) != fourcc.BytesPerPixel(opaque) {
			t.Errorf("%s and %s disagree on bytes per pixel", alpha, opaque)
		}
	}
	if _, ok := fourcc.OpaqueSibling(fourcc.XRGB8888); ok {
		t.Error("opaque format reported an opaque sibling")
	}
}

func TestPlaneCounts(t *testing.T) {
	if got := fourcc.PlaneCount(fourcc.NV12); got != 2 {
		t.Errorf("PlaneCount(NV12) = %d, want 2", got)
	}
	if got := fourcc.PlaneCount(fourcc.ARGB8888); got != 1 {
		t.Errorf("PlaneCount(ARGB8888) = %d, want 1", got)
	}
}

func TestModifierString(t *testing.T) {
	if got := fourcc.ModifierLinear.String(); got != "LINEAR" {
		t.Errorf("ModifierLinear = %q", got)
	}
	if got := fourcc.ModifierInvalid.String(); got != "INVALID" {
		t.Errorf("ModifierInvalid = %q", got)
	}
	m := fourcc.Modifier(0x0100000000000001)
	if got := m.String(); got != "0x0100000000000001" {
		t.Errorf("vendor modifier = %q", got)
	}
	if m.Vendor() != 1 {
		t.Errorf("Vendor() = %d, want 1", m.Vendor())
	}
}
