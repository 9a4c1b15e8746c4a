package chunks

import "fmt"

// Flags is the packed 16-bit flag word of a chunk record.
//
//	bits 0-7   opaque flag byte
//	bit  8     payload aligned to 16 bytes
//	bit  9     always set by the game's tools
//	bit  10    texture data
//	bits 12-14 data stream the payload lives in
//	bit  15    chunk holds children instead of a payload
type Flags uint16

const (
	flagAlignBytes  Flags = 1 << 8
	flagAlwaysOne   Flags = 1 << 9
	flagTextureData Flags = 1 << 10
	flagHasChildren Flags = 1 << 15

	blockIndexShift = 12
	blockIndexMask  Flags = 0x7 << blockIndexShift
)

// Flag words the game's tools start new chunks with: the low byte set to 1,
// the always-one bit and stream 1. DefaultAlignedFlags adds 16-byte alignment.
const (
	DefaultFlags        Flags = 0x1201
	DefaultAlignedFlags Flags = 0x1301
)

func (f Flags) Unknown() uint8 {
	return uint8(f)
}

func (f Flags) WithUnknown(v uint8) Flags {
	return f&^0xFF | Flags(v)
}

// AlignBytes reports whether the payload is 16-byte aligned on save.
// Mesh buffers, texture data and model matrices require it.
func (f Flags) AlignBytes() bool {
	return f&flagAlignBytes != 0
}

func (f Flags) WithAlignBytes(on bool) Flags {
	return f.with(flagAlignBytes, on)
}

func (f Flags) AlwaysOne() bool {
	return f&flagAlwaysOne != 0
}

func (f Flags) WithAlwaysOne(on bool) Flags {
	return f.with(flagAlwaysOne, on)
}

func (f Flags) TextureData() bool {
	return f&flagTextureData != 0
}

func (f Flags) WithTextureData(on bool) Flags {
	return f.with(flagTextureData, on)
}

// BlockIndex selects the decompressed data stream, 0-7.
func (f Flags) BlockIndex() uint8 {
	return uint8((f & blockIndexMask) >> blockIndexShift)
}

// WithBlockIndex sets the stream index. Only the low three bits of i are used.
func (f Flags) WithBlockIndex(i uint8) Flags {
	return f&^blockIndexMask | Flags(i&0x7)<<blockIndexShift
}

// HasChildren reports whether size/offset address child slots rather than bytes.
func (f Flags) HasChildren() bool {
	return f&flagHasChildren != 0
}

func (f Flags) WithHasChildren(on bool) Flags {
	return f.with(flagHasChildren, on)
}

func (f Flags) with(bit Flags, on bool) Flags {
	if on {
		return f | bit
	}
	return f &^ bit
}

// String renders the flag bits, most significant first.
func (f Flags) String() string {
	return fmt.Sprintf("%016b", uint16(f))
}
