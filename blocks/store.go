package blocks

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/DataDog/zstd"
	"github.com/klauspost/compress/zlib"
)

// Status reports how a decompression request was satisfied.
// Anything other than StatusOK comes with an empty byte range.
type Status uint8

const (
	StatusOK Status = iota
	// StatusEmpty means the block has a decompressed size of zero.
	StatusEmpty
	// StatusOutOfRange means the block does not fit inside the archive.
	StatusOutOfRange
	// StatusUnknownCompression means the block is marked compressed but
	// its stored bytes do not start with a recognised magic.
	StatusUnknownCompression
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusEmpty:
		return "empty"
	case StatusOutOfRange:
		return "out of range"
	case StatusUnknownCompression:
		return "unknown compression"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

var (
	zlibDefaultMagic = []byte{0x78, 0x9C}
	zlibBestMagic    = []byte{0x78, 0xDA}
	zstdMagic        = []byte{0x28, 0xB5, 0x2F, 0xFD}
)

// ErrLevel is returned for zlib levels whose stream header would not pass
// the decompression magic check.
var ErrLevel = errors.New("unsupported compression level")

// Options configures a Store.
type Options struct {
	// Compressed mirrors the dictionary's compression flag.
	Compressed bool
	// Level is the zlib level used when compressing. Zero selects
	// zlib.DefaultCompression. Only levels that emit a 78 9C or 78 DA
	// header are accepted.
	Level int
	// DecodeZstd lets compressed blocks carrying a zstd frame magic be
	// decoded instead of skipped.
	DecodeZstd bool
	Logger     *slog.Logger
}

// Store compresses and decompresses block payloads.
type Store struct {
	compressed bool
	level      int
	decodeZstd bool
	logger     *slog.Logger
}

func NewStore(opts Options) (*Store, error) {
	level := opts.Level
	if level == 0 {
		level = zlib.DefaultCompression
	}
	switch level {
	case zlib.DefaultCompression, 6, 7, 8, zlib.BestCompression:
	default:
		return nil, fmt.Errorf("%w: %d", ErrLevel, level)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{
		compressed: opts.Compressed,
		level:      level,
		decodeZstd: opts.DecodeZstd,
		logger:     logger,
	}, nil
}

func (s *Store) Compressed() bool {
	return s.compressed
}

// IsZlib reports whether stored starts with one of the two zlib headers
// the format uses.
func IsZlib(stored []byte) bool {
	return bytes.HasPrefix(stored, zlibDefaultMagic) || bytes.HasPrefix(stored, zlibBestMagic)
}

// IsZstd reports whether stored starts with a zstd frame magic.
func IsZstd(stored []byte) bool {
	return bytes.HasPrefix(stored, zstdMagic)
}

// Compress returns the bytes to store for raw along with the compressed
// and decompressed sizes. Uncompressed archives store raw unchanged.
func (s *Store) Compress(raw []byte) ([]byte, uint32, uint32, error) {
	if !s.compressed {
		return raw, uint32(len(raw)), uint32(len(raw)), nil
	}

	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, s.level)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("zlib writer: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return nil, 0, 0, fmt.Errorf("zlib compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, 0, 0, fmt.Errorf("zlib compress: %w", err)
	}
	return buf.Bytes(), uint32(buf.Len()), uint32(len(raw)), nil
}

// Stage compresses raw into b.Data and updates the block sizes.
func (s *Store) Stage(b *Block, raw []byte) error {
	stored, compressedSize, decompressedSize, err := s.Compress(raw)
	if err != nil {
		return fmt.Errorf("block %d: %w", b.Index, err)
	}
	b.Data = stored
	b.CompressedSize = compressedSize
	b.DecompressedSize = decompressedSize
	return nil
}

// Decompress returns the decompressed bytes of b from archive. Blocks that
// cannot be located or whose compression is not recognised yield an empty
// range and a non-OK status rather than an error. For uncompressed archives
// the result aliases archive.
func (s *Store) Decompress(archive []byte, b *Block) ([]byte, Status, error) {
	archiveSize := uint64(len(archive))
	if uint64(b.Offset) > archiveSize {
		s.logger.Debug("block offset past end of archive", "block", b.Index, "offset", b.Offset, "archive_size", archiveSize)
		return nil, StatusOutOfRange, nil
	}
	if b.DecompressedSize == 0 {
		s.logger.Debug("empty block", "block", b.Index, "offset", b.Offset)
		return nil, StatusEmpty, nil
	}

	if !s.compressed {
		end := uint64(b.Offset) + uint64(b.DecompressedSize)
		if end > archiveSize {
			s.logger.Debug("block extends past end of archive", "block", b.Index, "offset", b.Offset, "size", b.DecompressedSize, "archive_size", archiveSize)
			return nil, StatusOutOfRange, nil
		}
		return archive[b.Offset:end:end], StatusOK, nil
	}

	stored := archive[b.Offset:]
	if uint64(b.CompressedSize) < uint64(len(stored)) {
		stored = stored[:b.CompressedSize]
	}

	switch {
	case IsZlib(stored):
		out, err := inflate(stored, b.DecompressedSize)
		if err != nil {
			return nil, StatusOK, fmt.Errorf("block %d at offset %#x: %w", b.Index, b.Offset, err)
		}
		return out, StatusOK, nil
	case s.decodeZstd && IsZstd(stored):
		out, err := zstd.Decompress(make([]byte, 0, min(b.DecompressedSize, maxPrealloc)), stored)
		if err != nil {
			return nil, StatusOK, fmt.Errorf("block %d at offset %#x: zstd decompress: %w", b.Index, b.Offset, err)
		}
		if len(out) != int(b.DecompressedSize) {
			return nil, StatusOK, fmt.Errorf("block %d at offset %#x: zstd decompress: got %d bytes, expected %d", b.Index, b.Offset, len(out), b.DecompressedSize)
		}
		return out, StatusOK, nil
	default:
		magic := stored[:min(len(stored), 4)]
		s.logger.Warn("unknown block compression, skipping", "block", b.Index, "offset", b.Offset, "magic", fmt.Sprintf("% x", magic))
		return nil, StatusUnknownCompression, nil
	}
}

// maxPrealloc bounds the buffer allocated from a block's recorded size
// before any of it has been decompressed.
const maxPrealloc = 16 << 20

func inflate(stored []byte, size uint32) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(stored))
	if err != nil {
		return nil, fmt.Errorf("zlib header: %w", err)
	}
	defer r.Close()

	var buf bytes.Buffer
	buf.Grow(int(min(size, maxPrealloc)))
	if _, err := io.Copy(&buf, io.LimitReader(r, int64(size))); err != nil {
		return nil, fmt.Errorf("zlib decompress %d bytes: %w", size, err)
	}
	if buf.Len() != int(size) {
		return nil, fmt.Errorf("zlib decompress: got %d bytes, expected %d", buf.Len(), size)
	}
	return buf.Bytes(), nil
}
