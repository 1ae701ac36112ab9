package fourcc

import "fmt"

// Modifier is a vendor-specific memory layout descriptor (drm_fourcc.h
// format modifier). Producer and importer must agree on it; ModifierInvalid
// means the producer left the layout to the allocator's discretion.
type Modifier uint64

const (
	ModifierLinear  Modifier = 0
	ModifierInvalid Modifier = 0x00ffffffffffffff
)

func (m Modifier) String() string {
	switch m {
	case ModifierLinear:
		return "LINEAR"
	case ModifierInvalid:
		return "INVALID"
	}
	return fmt.Sprintf("0x%016x", uint64(m))
}

// Vendor extracts the vendor id from the top byte of the modifier.
func (m Modifier) Vendor() uint8 {
	return uint8(m >> 56)
}
