// Package datafile binds a dictionary, its .data archive and the chunk table
// stored in it into one editable archive.
package datafile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/goopsie/nlgFileTools/blocks"
	"github.com/goopsie/nlgFileTools/chunks"
	"github.com/goopsie/nlgFileTools/dictionary"
)

// tableBlock is the dictionary block holding the chunk table.
const tableBlock = 0

var ErrNoFileTable = errors.New("dictionary has no file table")

// Options configures Load and Open.
type Options struct {
	// Workers bounds parallel block decompression and compression.
	// Zero uses one goroutine per CPU.
	Workers int
	// Store configures the block codec. Compressed is taken from the
	// dictionary and Logger defaults to the Options logger.
	Store  blocks.Options
	Logger *slog.Logger
}

// DataFile is a loaded archive.
type DataFile struct {
	Dictionary *dictionary.Dictionary
	Table      *chunks.Table

	archive []byte // current contents of the .data file
	store   *blocks.Store
	// shared is set when stream 0 is the table block itself
	shared  bool
	workers int
	logger  *slog.Logger
}

// Load reads the dictionary at dictPath and the .data archive next to it.
func Load(ctx context.Context, dictPath string, opts Options) (*DataFile, error) {
	dict, err := dictionary.Load(dictPath)
	if err != nil {
		return nil, fmt.Errorf("load dictionary: %w", err)
	}
	dataPath := dictionary.DataPath(dictPath)
	archive, err := os.ReadFile(dataPath)
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}

	f, err := Open(ctx, dict, archive, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", dataPath, err)
	}
	return f, nil
}

// Open decompresses the blocks of the first file table reference, parses
// the chunk table and binds every payload to its stream.
func Open(ctx context.Context, dict *dictionary.Dictionary, archive []byte, opts Options) (*DataFile, error) {
	if len(dict.FileTableReferences) == 0 || len(dict.Blocks) == 0 {
		return nil, ErrNoFileTable
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	storeOpts := opts.Store
	if storeOpts.Logger == nil {
		storeOpts.Logger = logger
	}
	store, err := dict.BlockStore(storeOpts)
	if err != nil {
		return nil, err
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	ref := dict.FileTableReferences[0]
	f := &DataFile{
		Dictionary: dict,
		archive:    archive,
		store:      store,
		shared:     ref.BlockIndices[0] == 0,
		workers:    workers,
		logger:     logger,
	}

	wanted := []int{tableBlock}
	for _, idx := range ref.BlockIndices {
		if idx != 0 && !slices.Contains(wanted, int(idx)) {
			wanted = append(wanted, int(idx))
		}
	}
	decoded, err := f.decompress(ctx, wanted)
	if err != nil {
		return nil, err
	}

	var streams [chunks.StreamCount][]byte
	for i, idx := range ref.BlockIndices {
		if idx != 0 {
			streams[i] = decoded[int(idx)]
		}
	}
	table := decoded[tableBlock]
	if f.shared {
		streams[0] = table
		f.Table, err = chunks.ParseShared(table)
	} else {
		f.Table, err = chunks.Parse(table)
	}
	if err != nil {
		return nil, fmt.Errorf("chunk table: %w", err)
	}

	f.bind(streams)
	logger.Debug("loaded archive",
		"blocks", len(dict.Blocks), "chunks", len(f.Table.Chunks),
		"files", len(f.Table.Files), "shared_stream", f.shared)
	return f, nil
}

// decompress inflates the listed blocks in parallel. Blocks stored in
// other files, missing blocks and soft-skipped blocks come back empty.
func (f *DataFile) decompress(ctx context.Context, indices []int) (map[int][]byte, error) {
	results := make([][]byte, len(indices))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(f.workers)
	for i, idx := range indices {
		if idx >= len(f.Dictionary.Blocks) {
			f.logger.Warn("file table references a missing block", "block", idx, "blocks", len(f.Dictionary.Blocks))
			continue
		}
		b := f.Dictionary.Blocks[idx]
		if !b.InMainArchive() {
			f.logger.Debug("block stored in another file, skipping", "block", idx, "extension", b.FileExtension)
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out, status, err := f.store.Decompress(f.archive, b)
			if err != nil {
				return err
			}
			if status != blocks.StatusOK {
				f.logger.Debug("block not loaded", "block", idx, "status", status)
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	decoded := make(map[int][]byte, len(indices))
	for i, idx := range indices {
		decoded[idx] = results[i]
	}
	return decoded, nil
}

// bind points every leaf at its payload and every file entry at its header.
// Ranges outside their stream bind empty.
func (f *DataFile) bind(streams [chunks.StreamCount][]byte) {
	for _, e := range f.Table.Chunks {
		if e.IsFile() {
			h := e.File
			if b, ok := sub(streams[0], h.HeaderOffset, h.HeaderSize); ok {
				h.SetHeader(b)
			} else {
				f.logger.Debug("file header outside stream 0", "type", h.Type, "offset", h.HeaderOffset, "size", h.HeaderSize)
			}
		}
		if e.HasChildren() {
			continue
		}
		b, ok := sub(streams[e.BlockIndex()], e.ChunkOffset(), e.ChunkSize())
		if !ok {
			f.logger.Debug("payload outside its stream", "chunk", e.String(), "stream", e.BlockIndex(),
				"offset", e.ChunkOffset(), "size", e.ChunkSize(), "stream_size", len(streams[e.BlockIndex()]))
		}
		// SetData only fails for containers
		_ = e.SetData(b)
	}
}

func sub(stream []byte, offset, size uint32) ([]byte, bool) {
	end := uint64(offset) + uint64(size)
	if end > uint64(len(stream)) {
		return nil, false
	}
	return stream[offset:end:end], true
}

// Files returns the top-level file entries.
func (f *DataFile) Files() []*chunks.Entry {
	var files []*chunks.Entry
	for _, e := range f.Table.Roots() {
		if e.IsFile() {
			files = append(files, e)
		}
	}
	return files
}

// Replace swaps the payload of a leaf file entry.
func (f *DataFile) Replace(ft chunks.FileType, hash uint32, data []byte) error {
	e := f.Table.File(ft, hash)
	if e == nil {
		return fmt.Errorf("no %s file with hash %08X", ft, hash)
	}
	if err := e.SetData(data); err != nil {
		return fmt.Errorf("%s: %w", e, err)
	}
	return nil
}
