// Package chunks implements the NLG chunk table: a flat, index-addressed
// list of records that encodes a forest of typed chunks.
//
// A chunk is either a container, whose size and offset fields name a run of
// child slots in the table, or a leaf, whose size and offset fields name a
// byte range in one of the decompressed data streams. The HasChildren flag
// bit selects the meaning. File entries are chunks with an extra header
// (magic and name hash) and occupy two slots in the table's index space.
package chunks

import (
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
)

var (
	ErrNotContainer    = errors.New("chunk is not a container")
	ErrContainerData   = errors.New("container chunk cannot hold a payload")
	ErrHasParent       = errors.New("chunk already has a parent")
	ErrNestedFile      = errors.New("file entry cannot be a child chunk")
	ErrCycle           = errors.New("chunk would become its own ancestor")
	ErrNotChild        = errors.New("chunk is not a child of this container")
	ErrBadChildRange   = errors.New("child range outside chunk table")
	ErrTruncatedRecord = errors.New("truncated file entry record")
)

// FileHeader carries the identity of a file entry. The header bytes live in
// data stream 0 and normally start with the magic and name hash.
type FileHeader struct {
	Type  FileType
	Magic uint32
	Hash  uint32
	// FileFlags is the word following the file entry marker.
	FileFlags uint16

	HeaderOffset uint32
	HeaderSize   uint32
	header       []byte
}

// defaultFileFlags is written after the marker for newly authored files.
const defaultFileFlags = 0x0200

// Header returns the raw header bytes bound at load time.
func (h *FileHeader) Header() []byte {
	return h.header
}

// SetHeader replaces the header bytes, decoding magic and hash when at
// least 8 bytes are present.
func (h *FileHeader) SetHeader(b []byte) {
	h.header = b
	if len(b) >= 8 {
		h.Magic = binary.LittleEndian.Uint32(b[0:4])
		h.Hash = binary.LittleEndian.Uint32(b[4:8])
	}
}

// headerBytes returns the header to write, keeping its first 8 bytes in
// sync with Magic and Hash.
func (h *FileHeader) headerBytes() []byte {
	if h.header == nil {
		b := make([]byte, 8)
		binary.LittleEndian.PutUint32(b[0:4], h.Magic)
		binary.LittleEndian.PutUint32(b[4:8], h.Hash)
		return b
	}
	if len(h.header) < 8 {
		return h.header
	}
	b := slices.Clone(h.header)
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	binary.LittleEndian.PutUint32(b[4:8], h.Hash)
	return b
}

// Entry is one node of the chunk tree.
type Entry struct {
	// Type is unused for file entries, which are typed by File.Type.
	Type DataType
	// File is set for file entries.
	File *FileHeader

	flags Flags
	// size and offset as last read or written: child count and first child
	// slot for containers, byte length and offset for leaves
	size   uint32
	offset uint32

	data     []byte
	children []*Entry
	parent   *Entry // not owning
}

func defaultFlags(t DataType) Flags {
	if t.needsAlignment() {
		return DefaultAlignedFlags
	}
	return DefaultFlags
}

// NewLeaf returns a payload chunk using the default flags for its type.
func NewLeaf(t DataType, data []byte) *Entry {
	return &Entry{Type: t, flags: defaultFlags(t), data: data}
}

// NewContainer returns an empty container chunk.
func NewContainer(t DataType) *Entry {
	return &Entry{Type: t, flags: defaultFlags(t).WithHasChildren(true)}
}

// NewFile returns a file entry. Containers start without children; leaves
// start with an empty payload.
func NewFile(t FileType, magic, hash uint32, container bool) *Entry {
	return &Entry{
		File: &FileHeader{
			Type:      t,
			Magic:     magic,
			Hash:      hash,
			FileFlags: defaultFileFlags,
		},
		flags: DefaultFlags.WithHasChildren(container),
	}
}

func (e *Entry) IsFile() bool {
	return e.File != nil
}

// Slots is the number of table index slots the entry occupies.
func (e *Entry) Slots() int {
	if e.IsFile() {
		return 2
	}
	return 1
}

func (e *Entry) Flags() Flags {
	return e.flags
}

// SetFlags replaces the flag word. The HasChildren bit is kept, since it is
// fixed by how the chunk was created.
func (e *Entry) SetFlags(f Flags) {
	e.flags = f.WithHasChildren(e.flags.HasChildren())
}

func (e *Entry) HasChildren() bool {
	return e.flags.HasChildren()
}

func (e *Entry) BlockIndex() uint8 {
	return e.flags.BlockIndex()
}

// ChunkSize is the child count of a container or payload length of a leaf,
// as last parsed or written.
func (e *Entry) ChunkSize() uint32 {
	return e.size
}

// ChunkOffset is the first child slot of a container or payload offset of a
// leaf, as last parsed or written.
func (e *Entry) ChunkOffset() uint32 {
	return e.offset
}

// Data returns the payload of a leaf. Containers have none.
func (e *Entry) Data() []byte {
	return e.data
}

// SetData replaces the payload of a leaf.
func (e *Entry) SetData(b []byte) error {
	if e.HasChildren() {
		return ErrContainerData
	}
	e.data = b
	return nil
}

// Parent returns the owning container, or nil for roots.
func (e *Entry) Parent() *Entry {
	return e.parent
}

// Children returns the ordered children. The slice must not be modified.
func (e *Entry) Children() []*Entry {
	return e.children
}

// AddChild appends child to a container.
func (e *Entry) AddChild(child *Entry) error {
	if !e.HasChildren() {
		return ErrNotContainer
	}
	if child.IsFile() {
		return ErrNestedFile
	}
	if child.parent != nil {
		return ErrHasParent
	}
	if child.isAncestorOf(e) {
		return ErrCycle
	}
	child.parent = e
	e.children = append(e.children, child)
	return nil
}

// NewChild creates a chunk of type t and appends it.
func (e *Entry) NewChild(t DataType, container bool) (*Entry, error) {
	child := NewLeaf(t, nil)
	if container {
		child = NewContainer(t)
	}
	if err := e.AddChild(child); err != nil {
		return nil, err
	}
	return child, nil
}

// RemoveChild detaches child from the container.
func (e *Entry) RemoveChild(child *Entry) error {
	i := slices.Index(e.children, child)
	if i < 0 {
		return ErrNotChild
	}
	e.children = slices.Delete(e.children, i, i+1)
	child.parent = nil
	return nil
}

// Child returns the first child of type t, or nil.
func (e *Entry) Child(t DataType) *Entry {
	for _, c := range e.children {
		if c.Type == t {
			return c
		}
	}
	return nil
}

// ChildrenOfType returns every child of type t.
func (e *Entry) ChildrenOfType(t DataType) []*Entry {
	var out []*Entry
	for _, c := range e.children {
		if c.Type == t {
			out = append(out, c)
		}
	}
	return out
}

// Walk visits e and its descendants depth first, parents before children.
func (e *Entry) Walk(fn func(*Entry) error) error {
	if err := fn(e); err != nil {
		return err
	}
	for _, c := range e.children {
		if err := c.Walk(fn); err != nil {
			return err
		}
	}
	return nil
}

// isAncestorOf reports whether e is n or one of n's ancestors.
func (e *Entry) isAncestorOf(n *Entry) bool {
	for p := n; p != nil; p = p.parent {
		if p == e {
			return true
		}
	}
	return false
}

func (e *Entry) String() string {
	if e.IsFile() {
		return fmt.Sprintf("file %s %08X (flags %s)", e.File.Type, e.File.Hash, e.flags)
	}
	return fmt.Sprintf("chunk %s (flags %s)", e.Type, e.flags)
}
