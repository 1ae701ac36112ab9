package dmatex_test

import (
	"golang.org/x/sys/unix"

	"github.com/spaghettifunk/dmatex/backend"
	"github.com/spaghettifunk/dmatex/fourcc"
)

// fakeDevice implements backend.Device in memory, counting every call so
// tests can assert which driver operations a pipeline path performs and
// that no backend object leaks.
type fakeDevice struct {
	noHandles  bool
	srgbFormat backend.Format
	modifiers  []backend.ModifierProperties
	probeFail  bool
	noMemType  bool

	createErr error
	importErr error
	bindErr   error
	viewErr   error

	calls map[string]int

	liveImages int
	liveMems   int
	liveViews  int
}

type (
	fakeImage  struct{ disjoint bool }
	fakeMemory struct{ plane int }
	fakeView   struct{}
)

const fakeUnormFormat = backend.Format(37) // arbitrary nonzero

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		modifiers: []backend.ModifierProperties{
			{Modifier: uint64(fourcc.ModifierLinear), PlaneCount: 1},
		},
		calls: make(map[string]int),
	}
}

func (d *fakeDevice) leaked() bool {
	return d.liveImages != 0 || d.liveMems != 0 || d.liveViews != 0
}

func (d *fakeDevice) HandleTypes() []backend.HandleType {
	d.calls["HandleTypes"]++
	if d.noHandles {
		return nil
	}
	return []backend.HandleType{backend.HandleDmaBuf}
}

func (d *fakeDevice) NativeFormat(code fourcc.Code, srgb bool) (backend.Format, bool) {
	d.calls["NativeFormat"]++
	if !fourcc.Known(code) {
		return backend.FormatUndefined, false
	}
	if srgb {
		if d.srgbFormat == backend.FormatUndefined {
			return backend.FormatUndefined, false
		}
		return d.srgbFormat, true
	}
	return fakeUnormFormat, true
}

func (d *fakeDevice) Modifiers(f backend.Format) []backend.ModifierProperties {
	d.calls["Modifiers"]++
	return d.modifiers
}

func (d *fakeDevice) ImageSupported(f backend.Format, tiling backend.Tiling, modifier uint64, usage backend.Usage) bool {
	d.calls["ImageSupported"]++
	return !d.probeFail
}

func (d *fakeDevice) ImportMemoryTypeIndex() (uint32, bool) {
	d.calls["ImportMemoryTypeIndex"]++
	if d.noMemType {
		return 0, false
	}
	return 1, true
}

func (d *fakeDevice) CreateImage(info backend.ImageInfo) (backend.Image, error) {
	d.calls["CreateImage"]++
	if d.createErr != nil {
		return nil, d.createErr
	}
	d.liveImages++
	return &fakeImage{disjoint: info.Disjoint}, nil
}

// ImportMemory consumes the fd on success the way a driver does.
func (d *fakeDevice) ImportMemory(img backend.Image, imp backend.MemoryImport) (backend.Memory, error) {
	d.calls["ImportMemory"]++
	if d.importErr != nil {
		return nil, d.importErr
	}
	unix.Close(imp.FD)
	d.liveMems++
	return &fakeMemory{plane: imp.Plane}, nil
}

func (d *fakeDevice) BindImage(img backend.Image, binds []backend.Binding) error {
	d.calls["BindImage"]++
	return d.bindErr
}

func (d *fakeDevice) CreateView(img backend.Image, f backend.Format) (backend.View, error) {
	d.calls["CreateView"]++
	if d.viewErr != nil {
		return nil, d.viewErr
	}
	d.liveViews++
	return &fakeView{}, nil
}

func (d *fakeDevice) DestroyView(v backend.View) {
	d.calls["DestroyView"]++
	d.liveViews--
}

func (d *fakeDevice) DestroyImage(img backend.Image) {
	d.calls["DestroyImage"]++
	d.liveImages--
}

func (d *fakeDevice) FreeMemory(m backend.Memory) {
	d.calls["FreeMemory"]++
	d.liveMems--
}
