package chunks

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"slices"
)

const (
	// fileMarker starts every file entry record. Plain records never use it as a type.
	fileMarker = 0x1301

	recordSize     = 12 // one index slot
	fileRecordSize = 24 // two index slots

	// payloadAlign is the alignment of payloads flagged AlignBytes.
	payloadAlign = 16

	// StreamCount is the number of data streams a table can address.
	StreamCount = 8
)

// Table is a parsed or authored chunk forest.
type Table struct {
	// Files, DataEntries and Chunks list every record in table order as of
	// the last parse or encode. Chunks holds both kinds.
	Files       []*Entry
	DataEntries []*Entry
	Chunks      []*Entry

	roots []*Entry
}

// Roots returns the top-level chunks in table order.
func (t *Table) Roots() []*Entry {
	return t.roots
}

// AddRoot appends e to the top level of the forest.
func (t *Table) AddRoot(e *Entry) error {
	if e.parent != nil {
		return ErrHasParent
	}
	if slices.Contains(t.roots, e) {
		return fmt.Errorf("%s is already a root", e)
	}
	t.roots = append(t.roots, e)
	return nil
}

// RemoveRoot drops e from the top level. It is no longer written on encode.
func (t *Table) RemoveRoot(e *Entry) error {
	i := slices.Index(t.roots, e)
	if i < 0 {
		return fmt.Errorf("%s is not a root", e)
	}
	t.roots = slices.Delete(t.roots, i, i+1)
	return nil
}

// File returns the root file entry with the given type and name hash.
func (t *Table) File(ft FileType, hash uint32) *Entry {
	for _, e := range t.roots {
		if e.IsFile() && e.File.Type == ft && e.File.Hash == hash {
			return e
		}
	}
	return nil
}

// Walk visits every chunk reachable from the roots, depth first.
func (t *Table) Walk(fn func(*Entry) error) error {
	for _, r := range t.roots {
		if err := r.Walk(fn); err != nil {
			return err
		}
	}
	return nil
}

// Parse decodes a chunk table stream.
func Parse(stream []byte) (*Table, error) {
	return parse(stream, false)
}

// ParseShared decodes a chunk table stream that also holds stream-0
// payloads and file headers after its records. Parsing stops before the
// first byte any record claims as payload.
func ParseShared(stream []byte) (*Table, error) {
	return parse(stream, true)
}

var zeroRecord [recordSize]byte

func parse(stream []byte, shared bool) (*Table, error) {
	t := &Table{}
	if len(stream) <= 4 {
		return t, nil
	}

	le := binary.LittleEndian
	var (
		slots         []*Entry // the global index: one element per 12-byte slot
		recordOffsets []int
	)
	limit := len(stream)
	pos := 0

	for pos+recordSize <= limit {
		// In a shared stream, zeros closer to the first payload than one
		// alignment step are padding. Encode never writes an all-zero
		// record there: stream-0 offsets start past the records.
		if shared && limit-pos < payloadAlign && bytes.Equal(stream[pos:pos+recordSize], zeroRecord[:]) {
			break
		}
		at := pos
		var e *Entry

		if le.Uint16(stream[pos:]) == fileMarker {
			if pos+fileRecordSize > limit {
				return nil, fmt.Errorf("%w at offset %#x", ErrTruncatedRecord, pos)
			}
			r := stream[pos : pos+fileRecordSize]
			e = &Entry{
				File: &FileHeader{
					FileFlags:    le.Uint16(r[2:]),
					HeaderSize:   le.Uint32(r[4:]),
					HeaderOffset: le.Uint32(r[8:]),
					Type:         FileType(le.Uint16(r[12:])),
				},
				flags:  Flags(le.Uint16(r[14:])),
				size:   le.Uint32(r[16:]), // child count or payload size
				offset: le.Uint32(r[20:]), // first child slot or payload offset
			}
			t.Files = append(t.Files, e)
			slots = append(slots, e, e)
			pos += fileRecordSize
		} else {
			r := stream[pos : pos+recordSize]
			e = &Entry{
				Type:   DataType(le.Uint16(r[0:])),
				flags:  Flags(le.Uint16(r[2:])),
				size:   le.Uint32(r[4:]),
				offset: le.Uint32(r[8:]),
			}
			t.DataEntries = append(t.DataEntries, e)
			slots = append(slots, e)
			pos += recordSize
		}

		t.Chunks = append(t.Chunks, e)
		recordOffsets = append(recordOffsets, at)
		if shared {
			limit = sharedLimit(limit, pos, e)
		}
	}

	for i, e := range t.Chunks {
		if !e.HasChildren() {
			continue
		}
		start, count := uint64(e.offset), uint64(e.size)
		if start+count > uint64(len(slots)) {
			return nil, fmt.Errorf("%w: record at offset %#x claims slots %d-%d of %d",
				ErrBadChildRange, recordOffsets[i], start, start+count, len(slots))
		}
		e.children = make([]*Entry, 0, count)
		for s := start; s < start+count; s++ {
			child := slots[s]
			var err error
			switch {
			case child.IsFile():
				err = ErrNestedFile
			case child.parent != nil:
				err = ErrHasParent
			case child.isAncestorOf(e):
				err = ErrCycle
			}
			if err != nil {
				return nil, fmt.Errorf("%w: record at offset %#x, child slot %d", err, recordOffsets[i], s)
			}
			child.parent = e
			e.children = append(e.children, child)
		}
	}

	for _, e := range t.Chunks {
		if e.parent == nil {
			t.roots = append(t.roots, e)
		}
	}
	return t, nil
}

// sharedLimit shrinks the parse limit so records never run into stream-0
// bytes that a record already claimed.
func sharedLimit(limit, pos int, e *Entry) int {
	claim := func(offset, size uint32) {
		if size > 0 && uint64(offset) >= uint64(pos) && uint64(offset) < uint64(limit) {
			limit = int(offset)
		}
	}
	if e.IsFile() {
		claim(e.File.HeaderOffset, e.File.HeaderSize)
	}
	if !e.HasChildren() && e.BlockIndex() == 0 {
		claim(e.offset, e.size)
	}
	return limit
}
