// Package blocks handles the compressed regions of an NLG .data file.
//
// A Block is one region described by the dictionary. The Store turns
// stored block bytes into decompressed streams and back, applying the
// archive-wide compression setting.
package blocks

import "fmt"

// SourceType is derived from the low and high bytes of a block's flags.
type SourceType uint8

const (
	SourceNone SourceType = iota
	SourceTable
	SourceData
)

func (t SourceType) String() string {
	switch t {
	case SourceNone:
		return "none"
	case SourceTable:
		return "table"
	case SourceData:
		return "data"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// flag byte marking a file table when the high byte is 1
const tableResourceFlag = 0x08

// Block is a single offset-addressed region of the data file.
type Block struct {
	Index            int
	Offset           uint32
	DecompressedSize uint32
	CompressedSize   uint32
	Flags            uint32

	SourceType  SourceType
	SourceIndex uint8 // index into the dictionary string list
	// FileExtension names the external file the block lives in, ".data" for the main archive.
	FileExtension string

	// Data holds the stored (possibly compressed) bytes staged for the next save.
	Data []byte
}

// ParseFlags splits a block flags word into its source type and source index.
func ParseFlags(flags uint32) (SourceType, uint8) {
	resourceFlag := flags & 0xFF
	tableMarker := flags >> 24 & 0xFF
	sourceIndex := uint8(flags >> 16 & 0xFF)

	switch {
	case resourceFlag == tableResourceFlag && tableMarker == 1:
		return SourceTable, sourceIndex
	case resourceFlag != 0:
		return SourceData, sourceIndex
	default:
		return SourceNone, sourceIndex
	}
}

// SetFlags stores flags and re-derives SourceType and SourceIndex.
func (b *Block) SetFlags(flags uint32) {
	b.Flags = flags
	b.SourceType, b.SourceIndex = ParseFlags(flags)
}

// InMainArchive reports whether the block is stored in the paired .data file.
func (b *Block) InMainArchive() bool {
	return b.SourceIndex == 0
}

func (b *Block) String() string {
	return fmt.Sprintf("block %d (%s, offset %#x, %d/%d bytes)", b.Index, b.SourceType, b.Offset, b.CompressedSize, b.DecompressedSize)
}
