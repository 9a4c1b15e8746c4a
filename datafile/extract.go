package datafile

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/goopsie/nlgFileTools/chunks"
	"github.com/goopsie/nlgFileTools/hashing"
)

// Extract writes every file entry to folder/<file type>/<name>. Leaf files
// are written as their raw payload. Container files become a directory
// holding one <index>_<chunk type> file per leaf descendant.
func (f *DataFile) Extract(folder string) (int, error) {
	written := 0
	for _, e := range f.Files() {
		dir := filepath.Join(folder, e.File.Type.String())
		if err := os.MkdirAll(dir, 0755); err != nil {
			return written, err
		}
		path := filepath.Join(dir, fileName(e.File.Hash))

		if !e.HasChildren() {
			if err := os.WriteFile(path, e.Data(), 0644); err != nil {
				return written, err
			}
			written++
			continue
		}

		if err := os.MkdirAll(path, 0755); err != nil {
			return written, err
		}
		for i, leaf := range leaves(e) {
			name := fmt.Sprintf("%d_%s", i, leaf.Type)
			if err := os.WriteFile(filepath.Join(path, name), leaf.Data(), 0644); err != nil {
				return written, err
			}
		}
		written++
	}
	f.logger.Debug("extracted files", "folder", folder, "files", written)
	return written, nil
}

// Import reads a folder laid out by Extract and replaces the payloads it
// holds. Leaf files are matched by type and name; files inside a container
// directory are matched by index and chunk type. It returns the number of
// payloads replaced.
func (f *DataFile) Import(folder string) (int, error) {
	replaced := 0
	err := filepath.WalkDir(folder, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(folder, path)
		if err != nil {
			return err
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) != 2 && len(parts) != 3 {
			f.logger.Debug("skipping unexpected path", "path", path)
			return nil
		}

		ft, ok := chunks.ParseFileType(parts[0])
		if !ok {
			return fmt.Errorf("%s: unknown file type %q", path, parts[0])
		}
		e := f.Table.File(ft, hashing.Parse(parts[1]))
		if e == nil {
			return fmt.Errorf("%s: no %s file named %s", path, ft, parts[1])
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		target := e
		if len(parts) == 3 {
			if target, err = leafByName(e, parts[2]); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
		}
		if err := target.SetData(data); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		replaced++
		return nil
	})
	return replaced, err
}

// fileName is the display name of hash when it is usable as a single path
// element, else its hex form.
func fileName(hash uint32) string {
	name := hashing.Format(hash)
	if name == "." || name == ".." || strings.ContainsAny(name, `/\:`) {
		return hashing.Hex(hash)
	}
	return name
}

// leaves returns the leaf descendants of e in depth-first order.
func leaves(e *chunks.Entry) []*chunks.Entry {
	var out []*chunks.Entry
	e.Walk(func(c *chunks.Entry) error {
		if !c.HasChildren() {
			out = append(out, c)
		}
		return nil
	})
	return out
}

// leafByName resolves an "<index>_<chunk type>" name written by Extract.
func leafByName(e *chunks.Entry, name string) (*chunks.Entry, error) {
	index, typeName, ok := strings.Cut(name, "_")
	i, err := strconv.Atoi(index)
	if !ok || err != nil {
		return nil, fmt.Errorf("chunk name %q is not <index>_<type>", name)
	}
	all := leaves(e)
	if i < 0 || i >= len(all) {
		return nil, fmt.Errorf("chunk index %d out of range, %s has %d", i, e, len(all))
	}
	if all[i].Type.String() != typeName {
		return nil, fmt.Errorf("chunk %d is %s, not %s", i, all[i].Type, typeName)
	}
	return all[i], nil
}
