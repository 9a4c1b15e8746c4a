package chunks

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Encoded holds the output of Table.Encode.
type Encoded struct {
	// Table is the chunk table stream. In shared mode it also carries the
	// stream-0 payloads and Streams[0] is nil.
	Table   []byte
	Streams [StreamCount][]byte
}

// Encode serializes the forest. Payloads are laid out per stream and every
// leaf's offset and size are rewritten; then the global index is rebuilt
// from the tree and every container's first slot and child count are
// rewritten. Nothing from the previous parse is reused.
//
// With shared set, stream-0 payloads are placed after the table records in
// the same buffer.
func (t *Table) Encode(shared bool) (*Encoded, error) {
	roots := make([]*Entry, 0, len(t.roots))
	for _, r := range t.roots {
		// a root adopted by a container is written under it
		if r.parent == nil {
			roots = append(roots, r)
		}
	}

	flat, err := layout(roots)
	if err != nil {
		return nil, err
	}
	tableSize := 0
	for _, e := range flat {
		tableSize += e.Slots() * recordSize
	}

	out := &Encoded{}
	for id := 0; id < StreamCount; id++ {
		var buf []byte
		if shared && id == 0 {
			buf = make([]byte, tableSize)
		}
		buf = writePayloads(roots, uint8(id), buf)
		if len(buf) > math.MaxUint32 {
			return nil, fmt.Errorf("stream %d is %d bytes, larger than the format allows", id, len(buf))
		}
		out.Streams[id] = buf
	}

	records := encodeRecords(flat, tableSize)
	if shared {
		copy(out.Streams[0], records)
		out.Table, out.Streams[0] = out.Streams[0], nil
	} else {
		out.Table = records
	}

	t.roots = roots
	t.Chunks = flat
	t.Files, t.DataEntries = nil, nil
	for _, e := range flat {
		if e.IsFile() {
			t.Files = append(t.Files, e)
		} else {
			t.DataEntries = append(t.DataEntries, e)
		}
	}
	return out, nil
}

// layout assigns the global index. Roots come first, two slots per file
// entry and one per chunk, then each container's children are given the
// next free run of slots, depth first.
func layout(roots []*Entry) ([]*Entry, error) {
	flat := make([]*Entry, 0, len(roots))
	next := 0
	for _, r := range roots {
		if !r.IsFile() && r.Type == fileMarker {
			return nil, fmt.Errorf("chunk type %#x is reserved for file entries", uint16(r.Type))
		}
		flat = append(flat, r)
		next += r.Slots()
	}

	var setup func(e *Entry) error
	setup = func(e *Entry) error {
		e.offset = uint32(next)
		e.size = uint32(len(e.children))
		for _, c := range e.children {
			if c.IsFile() {
				return fmt.Errorf("%w: %s under %s", ErrNestedFile, c, e)
			}
			if c.Type == fileMarker {
				return fmt.Errorf("chunk type %#x is reserved for file entries", uint16(c.Type))
			}
			flat = append(flat, c)
		}
		next += len(e.children)
		for _, c := range e.children {
			if c.HasChildren() {
				if err := setup(c); err != nil {
					return err
				}
			}
		}
		return nil
	}
	for _, r := range roots {
		if r.HasChildren() {
			if err := setup(r); err != nil {
				return nil, err
			}
		}
	}
	return flat, nil
}

// writePayloads appends every leaf payload that belongs to stream id, and
// for stream 0 the file headers, recording where each one landed.
func writePayloads(roots []*Entry, id uint8, buf []byte) []byte {
	var visit func(e *Entry)
	visit = func(e *Entry) {
		if e.HasChildren() {
			for _, c := range e.children {
				visit(c)
			}
			return
		}
		if e.BlockIndex() != id {
			return
		}
		if e.flags.AlignBytes() {
			buf = pad(buf, payloadAlign)
		} else {
			buf = pad(buf, 4)
		}
		e.offset = uint32(len(buf))
		e.size = uint32(len(e.data))
		buf = append(buf, e.data...)
	}

	for _, r := range roots {
		if id == 0 && r.IsFile() {
			buf = pad(buf, 4)
			header := r.File.headerBytes()
			r.File.HeaderOffset = uint32(len(buf))
			r.File.HeaderSize = uint32(len(header))
			r.File.header = header
			buf = append(buf, header...)
		}
		visit(r)
	}
	return buf
}

func encodeRecords(flat []*Entry, size int) []byte {
	le := binary.LittleEndian
	out := make([]byte, 0, size)
	for _, e := range flat {
		if e.IsFile() {
			out = le.AppendUint16(out, fileMarker)
			out = le.AppendUint16(out, e.File.FileFlags)
			out = le.AppendUint32(out, e.File.HeaderSize)
			out = le.AppendUint32(out, e.File.HeaderOffset)
			out = le.AppendUint16(out, uint16(e.File.Type))
		} else {
			out = le.AppendUint16(out, uint16(e.Type))
		}
		out = le.AppendUint16(out, uint16(e.flags))
		out = le.AppendUint32(out, e.size)
		out = le.AppendUint32(out, e.offset)
	}
	return out
}

func pad(buf []byte, align int) []byte {
	for len(buf)%align != 0 {
		buf = append(buf, 0)
	}
	return buf
}
