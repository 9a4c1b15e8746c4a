// Package dictionary reads and writes NLG .dict files, the index that
// describes every block of the paired .data file.
package dictionary

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goopsie/nlgFileTools/blocks"
)

// Magic identifies a .dict file.
const Magic uint32 = 0xA9F32458

// BlockIndexCount is the number of block slots in a file table reference.
const BlockIndexCount = 8

var (
	ErrBadMagic  = errors.New("invalid dictionary magic")
	ErrTruncated = errors.New("dictionary truncated")
)

// FileTableReference names the blocks used by one chunk table. Slot 0
// holds the header stream (0 meaning the table block itself), slots 1-7
// hold the data groups leaf chunks select with their block index.
type FileTableReference struct {
	Hash         uint32 // standard or debug table
	BlockIndices [BlockIndexCount]byte
}

// Dictionary is the archive-level block index.
type Dictionary struct {
	HeaderFlags         uint16
	Compressed          bool
	FileTableReferences []FileTableReference
	Blocks              []*blocks.Block
	Strings             []string // external file extensions, ".data" first

	unknowns []byte // one opaque byte per block, written back unchanged
}

// Load reads the dictionary at path.
func Load(path string) (*Dictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	d, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// Read parses a dictionary from r. Truncated or malformed headers are errors.
func Read(r io.Reader) (*Dictionary, error) {
	var m rawDictionary
	if err := m.unmarshal(r); err != nil {
		return nil, err
	}

	d := &Dictionary{
		HeaderFlags:         m.Header.HeaderFlags,
		Compressed:          m.Header.IsCompressed == 1,
		FileTableReferences: make([]FileTableReference, len(m.References)),
		Blocks:              make([]*blocks.Block, len(m.Blocks)),
		Strings:             m.Strings,
		unknowns:            m.Unknowns,
	}
	for k, v := range m.References {
		d.FileTableReferences[k] = FileTableReference{Hash: v.Hash, BlockIndices: v.BlockIndices}
	}
	for k, v := range m.Blocks {
		b := &blocks.Block{
			Index:            k,
			Offset:           v.Offset,
			DecompressedSize: v.DecompressedSize,
			CompressedSize:   v.CompressedSize,
		}
		b.SetFlags(v.Flags)
		if int(b.SourceIndex) < len(d.Strings) {
			b.FileExtension = d.Strings[b.SourceIndex]
		}
		d.Blocks[k] = b
	}
	return d, nil
}

// MaxCompressedSize is the largest stored block size, or 0 for raw archives.
func (d *Dictionary) MaxCompressedSize() uint32 {
	if !d.Compressed {
		return 0
	}
	var largest uint32
	for _, b := range d.Blocks {
		largest = max(largest, b.CompressedSize)
	}
	return largest
}

// Write serializes the dictionary field for field in load order.
func (d *Dictionary) Write(w io.Writer) error {
	if len(d.FileTableReferences) > 0xFF {
		return fmt.Errorf("too many file table references: %d", len(d.FileTableReferences))
	}
	if len(d.Strings) > 0xFF {
		return fmt.Errorf("too many strings: %d", len(d.Strings))
	}

	m := rawDictionary{
		Header: rawHeader{
			Magic:             Magic,
			HeaderFlags:       d.HeaderFlags,
			BlockCount:        uint32(len(d.Blocks)),
			MaxCompressedSize: d.MaxCompressedSize(),
			FileTableCount:    1,
			ReferenceCount:    uint8(len(d.FileTableReferences)),
			StringCount:       uint8(len(d.Strings)),
		},
		References: make([]rawReference, len(d.FileTableReferences)),
		Unknowns:   make([]byte, len(d.Blocks)),
		Blocks:     make([]rawBlock, len(d.Blocks)),
		Strings:    d.Strings,
	}
	if d.Compressed {
		m.Header.IsCompressed = 1
	}
	copy(m.Unknowns, d.unknowns)
	for k, v := range d.FileTableReferences {
		m.References[k] = rawReference{Hash: v.Hash, BlockIndices: v.BlockIndices}
	}
	for k, b := range d.Blocks {
		m.Blocks[k] = rawBlock{
			Offset:           b.Offset,
			DecompressedSize: b.DecompressedSize,
			Flags:            b.Flags,
		}
		if d.Compressed {
			m.Blocks[k].CompressedSize = b.CompressedSize
		}
	}
	return m.marshal(w)
}

// BlockStore returns a block store matching the dictionary's compression flag.
func (d *Dictionary) BlockStore(opts blocks.Options) (*blocks.Store, error) {
	opts.Compressed = d.Compressed
	return blocks.NewStore(opts)
}

// DataPath returns the .data path paired with a .dict path.
func DataPath(dictPath string) string {
	return strings.TrimSuffix(dictPath, ".dict") + ".data"
}

// DictPath returns the .dict path paired with a .data path.
func DictPath(dataPath string) string {
	return strings.TrimSuffix(dataPath, ".data") + ".dict"
}
