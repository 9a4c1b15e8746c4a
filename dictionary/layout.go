package dictionary

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// on-disk layout of a .dict file, all little endian
type rawHeader struct {
	Magic             uint32
	HeaderFlags       uint16
	IsCompressed      uint8
	_                 uint8 // padding
	BlockCount        uint32
	MaxCompressedSize uint32 // 0 when blocks are stored raw
	FileTableCount    uint8  // always 1 on write
	_                 uint8  // padding
	ReferenceCount    uint8
	StringCount       uint8
}

type rawReference struct {
	Hash         uint32
	BlockIndices [8]byte
}

type rawBlock struct { // 16 bytes
	Offset           uint32
	DecompressedSize uint32
	CompressedSize   uint32
	Flags            uint32
}

// countingReader tracks the byte offset so read failures can name it.
type countingReader struct {
	r   *bufio.Reader
	off int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.off += int64(n)
	return n, err
}

func (c *countingReader) readString() (string, error) {
	s, err := c.r.ReadString(0)
	c.off += int64(len(s))
	if err != nil {
		return "", err
	}
	return s[:len(s)-1], nil
}

func (c *countingReader) read(what string, v any) error {
	at := c.off
	if err := binary.Read(c, binary.LittleEndian, v); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: %s at offset %#x", ErrTruncated, what, at)
		}
		return fmt.Errorf("read %s at offset %#x: %w", what, at, err)
	}
	return nil
}

type rawDictionary struct {
	Header     rawHeader
	References []rawReference
	Unknowns   []byte
	Blocks     []rawBlock
	Strings    []string
}

func (m *rawDictionary) unmarshal(r io.Reader) error {
	cr := &countingReader{r: bufio.NewReader(r)}

	if err := cr.read("header", &m.Header); err != nil {
		return err
	}
	if m.Header.Magic != Magic {
		return fmt.Errorf("%w: expected %08X, got %08X", ErrBadMagic, Magic, m.Header.Magic)
	}

	m.References = make([]rawReference, m.Header.ReferenceCount)
	if err := cr.read("file table references", m.References); err != nil {
		return err
	}
	m.Unknowns = make([]byte, m.Header.BlockCount)
	if err := cr.read("block unknowns", m.Unknowns); err != nil {
		return err
	}
	m.Blocks = make([]rawBlock, m.Header.BlockCount)
	if err := cr.read("block records", m.Blocks); err != nil {
		return err
	}

	m.Strings = make([]string, 0, m.Header.StringCount)
	for i := 0; i < int(m.Header.StringCount); i++ {
		at := cr.off
		s, err := cr.readString()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("%w: string %d at offset %#x", ErrTruncated, i, at)
			}
			return fmt.Errorf("read string %d at offset %#x: %w", i, at, err)
		}
		m.Strings = append(m.Strings, s)
	}
	return nil
}

func (m *rawDictionary) marshal(w io.Writer) error {
	bw := bufio.NewWriter(w)

	var data = []any{
		m.Header,
		m.References,
		m.Unknowns,
		m.Blocks,
	}
	for _, v := range data {
		if err := binary.Write(bw, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("write dictionary: %w", err)
		}
	}
	for _, s := range m.Strings {
		if _, err := bw.WriteString(s); err != nil {
			return fmt.Errorf("write dictionary: %w", err)
		}
		if err := bw.WriteByte(0); err != nil {
			return fmt.Errorf("write dictionary: %w", err)
		}
	}
	return bw.Flush()
}
