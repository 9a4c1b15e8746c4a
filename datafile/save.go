package datafile

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/goopsie/nlgFileTools/blocks"
	"github.com/goopsie/nlgFileTools/dictionary"
)

// blockAlign is the alignment of every block in the .data file.
const blockAlign = 8

// Save re-encodes the chunk table and writes the archive to dataPath and
// its dictionary next to it. Both files are staged and renamed into place
// only once everything has been written. On failure the in-memory
// dictionary is left as it was.
func (f *DataFile) Save(ctx context.Context, dataPath string) error {
	snapshot := make([]blocks.Block, len(f.Dictionary.Blocks))
	for i, b := range f.Dictionary.Blocks {
		snapshot[i] = *b
	}

	archive, err := f.build(ctx)
	if err == nil {
		err = commit(dataPath, archive, f.Dictionary)
	}
	if err != nil {
		for i, b := range f.Dictionary.Blocks {
			*b = snapshot[i]
		}
		return err
	}

	f.archive = archive
	f.logger.Info("saved archive", "path", dataPath, "size", len(archive), "blocks", len(f.Dictionary.Blocks))
	return nil
}

// build encodes the table, compresses the streams it produced and lays the
// blocks out in a new archive, updating block offsets and sizes.
func (f *DataFile) build(ctx context.Context) ([]byte, error) {
	enc, err := f.Table.Encode(f.shared)
	if err != nil {
		return nil, fmt.Errorf("encode chunk table: %w", err)
	}

	raw := map[int][]byte{tableBlock: enc.Table}
	ref := f.Dictionary.FileTableReferences[0]
	for i, idx := range ref.BlockIndices {
		stream := enc.Streams[i]
		if idx == 0 {
			if len(stream) > 0 {
				return nil, fmt.Errorf("stream %d holds %d bytes but has no block", i, len(stream))
			}
			continue
		}
		if int(idx) >= len(f.Dictionary.Blocks) {
			return nil, fmt.Errorf("stream %d maps to missing block %d", i, idx)
		}
		if _, dup := raw[int(idx)]; dup {
			return nil, fmt.Errorf("block %d is used by more than one stream", idx)
		}
		raw[int(idx)] = stream
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(f.workers)
	for idx, data := range raw {
		b := f.Dictionary.Blocks[idx]
		if !b.InMainArchive() {
			f.logger.Debug("block stored in another file, not rewritten", "block", idx, "extension", b.FileExtension)
			delete(raw, idx)
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return f.store.Stage(b, data)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// data blocks in dictionary order, then the table block
	order := make([]*blocks.Block, 0, len(f.Dictionary.Blocks))
	order = append(order, f.Dictionary.Blocks[tableBlock+1:]...)
	order = append(order, f.Dictionary.Blocks[tableBlock])

	var out []byte
	written := map[uint32]uint32{} // source offset to new offset, for shared blocks
	for _, b := range order {
		if !b.InMainArchive() {
			continue
		}
		var data []byte
		if _, ok := raw[b.Index]; ok {
			data = b.Data
		} else {
			if offset, ok := written[b.Offset]; ok {
				b.Offset = offset
				continue
			}
			stored, ok := f.storedBytes(b)
			if !ok {
				// its old offset would point into unrelated bytes of the new archive
				f.logger.Warn("block outside source archive, saved as empty", "block", b.Index, "offset", b.Offset)
				b.Offset, b.CompressedSize, b.DecompressedSize = 0, 0, 0
				continue
			}
			written[b.Offset] = uint32(len(out))
			data = stored
		}

		b.Offset = uint32(len(out))
		out = append(out, data...)
		for len(out)%blockAlign != 0 {
			out = append(out, 0)
		}
		if uint64(len(out)) > 0xFFFFFFFF {
			return nil, fmt.Errorf("archive exceeds 4 GiB at block %d", b.Index)
		}
	}
	return out, nil
}

// storedBytes returns the bytes b occupies in the source archive.
func (f *DataFile) storedBytes(b *blocks.Block) ([]byte, bool) {
	size := b.DecompressedSize
	if f.store.Compressed() {
		size = b.CompressedSize
	}
	return sub(f.archive, b.Offset, size)
}

// commit stages the archive and dictionary next to their destinations and
// renames both into place. An archive already at dataPath is kept aside
// until the dictionary is in place and put back if that fails.
func commit(dataPath string, archive []byte, dict *dictionary.Dictionary) error {
	dictPath := dictionary.DictPath(dataPath)

	dataTmp, err := stage(dataPath, func(w *bufio.Writer) error {
		_, err := w.Write(archive)
		return err
	})
	if err != nil {
		return fmt.Errorf("write archive: %w", err)
	}
	dictTmp, err := stage(dictPath, func(w *bufio.Writer) error {
		return dict.Write(w)
	})
	if err != nil {
		os.Remove(dataTmp)
		return fmt.Errorf("write dictionary: %w", err)
	}

	backup, err := setAside(dataPath)
	if err != nil {
		os.Remove(dataTmp)
		os.Remove(dictTmp)
		return fmt.Errorf("keep previous archive: %w", err)
	}
	restore := func() {
		if backup == "" {
			os.Remove(dataPath)
			return
		}
		os.Rename(backup, dataPath)
	}

	if err := os.Rename(dataTmp, dataPath); err != nil {
		os.Remove(dataTmp)
		os.Remove(dictTmp)
		restore()
		return fmt.Errorf("replace archive: %w", err)
	}
	if err := os.Rename(dictTmp, dictPath); err != nil {
		os.Remove(dictTmp)
		restore()
		return fmt.Errorf("replace dictionary: %w", err)
	}
	if backup != "" {
		os.Remove(backup)
	}
	return nil
}

// setAside moves an existing file at path to a fresh name in the same
// directory and returns that name, or "" when there is nothing at path.
func setAside(path string) (string, error) {
	if _, err := os.Lstat(path); errors.Is(err, fs.ErrNotExist) {
		return "", nil
	} else if err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".prev.*")
	if err != nil {
		return "", err
	}
	name := tmp.Name()
	tmp.Close()
	if err := os.Rename(path, name); err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}

// stage writes a temporary file in the directory of path and returns its name.
func stage(path string, write func(*bufio.Writer) error) (string, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return "", err
	}
	w := bufio.NewWriter(tmp)
	err = write(w)
	if err == nil {
		err = w.Flush()
	}
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}
