package datafile

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/goopsie/nlgFileTools/blocks"
	"github.com/goopsie/nlgFileTools/chunks"
	"github.com/goopsie/nlgFileTools/dictionary"
	"github.com/goopsie/nlgFileTools/hashing"
)

const (
	tableFlags = 0x01000008
	dataFlags  = 0x00000004
)

var (
	heroHash     = hashing.StringToHash("hero", false)
	settingsHash = hashing.StringToHash("settings", false)

	heroHeader  = []byte("texhead!")
	heroPixels  = bytes.Repeat([]byte{0xAB, 0xCD}, 200)
	settings    = []byte("speed=3\n")
	unreachable = []byte("block no table references")
)

// fixture assembles a dictionary and archive block by block.
type fixture struct {
	t       *testing.T
	store   *blocks.Store
	dict    *dictionary.Dictionary
	archive []byte
}

func newFixture(t *testing.T, compressed bool, indices [dictionary.BlockIndexCount]byte) *fixture {
	t.Helper()
	store, err := blocks.NewStore(blocks.Options{Compressed: compressed})
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return &fixture{
		t:     t,
		store: store,
		dict: &dictionary.Dictionary{
			Compressed:          compressed,
			FileTableReferences: []dictionary.FileTableReference{{Hash: 1, BlockIndices: indices}},
			Strings:             []string{".data", ".debug"},
		},
	}
}

func (fx *fixture) add(raw []byte, flags uint32) *blocks.Block {
	fx.t.Helper()
	b := &blocks.Block{Index: len(fx.dict.Blocks), Offset: uint32(len(fx.archive))}
	b.SetFlags(flags)
	if err := fx.store.Stage(b, raw); err != nil {
		fx.t.Fatalf("Stage failed: %v", err)
	}
	b.FileExtension = fx.dict.Strings[b.SourceIndex]
	fx.archive = append(fx.archive, b.Data...)
	for len(fx.archive)%8 != 0 {
		fx.archive = append(fx.archive, 0)
	}
	b.Data = nil
	fx.dict.Blocks = append(fx.dict.Blocks, b)
	return b
}

func (fx *fixture) open(opts Options) *DataFile {
	fx.t.Helper()
	f, err := Open(context.Background(), fx.dict, fx.archive, opts)
	if err != nil {
		fx.t.Fatalf("Open failed: %v", err)
	}
	return f
}

// sampleTable holds a texture file with a header in stream 1 and pixels in
// stream 2, and a leaf config file in stream 1.
func sampleTable(t *testing.T) *chunks.Table {
	t.Helper()
	tex := chunks.NewFile(chunks.FileTexture, 0x54455801, heroHash, true)
	header := chunks.NewLeaf(chunks.TextureHeader, heroHeader)
	pixels := chunks.NewLeaf(chunks.TextureData, heroPixels)
	pixels.SetFlags(pixels.Flags().WithBlockIndex(2))
	for _, c := range []*chunks.Entry{header, pixels} {
		if err := tex.AddChild(c); err != nil {
			t.Fatalf("AddChild failed: %v", err)
		}
	}

	cfg := chunks.NewFile(chunks.FileConfig, 0x43464701, settingsHash, false)
	if err := cfg.SetData(settings); err != nil {
		t.Fatalf("SetData failed: %v", err)
	}

	table := &chunks.Table{}
	table.AddRoot(tex)
	table.AddRoot(cfg)
	return table
}

// sampleArchive encodes sampleTable into blocks 0-3 (0-2 when stream 0
// shares the table block) and adds an unreferenced block, a block sharing
// its offset and a block stored in an external file.
func sampleArchive(t *testing.T, compressed, shared bool) *fixture {
	t.Helper()
	indices := [dictionary.BlockIndexCount]byte{1, 2, 3}
	if shared {
		indices = [dictionary.BlockIndexCount]byte{0, 1, 2}
	}
	fx := newFixture(t, compressed, indices)

	enc, err := sampleTable(t).Encode(shared)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	fx.add(enc.Table, tableFlags)
	if !shared {
		fx.add(enc.Streams[0], dataFlags)
	}
	fx.add(enc.Streams[1], dataFlags)
	fx.add(enc.Streams[2], dataFlags)

	extra := fx.add(unreachable, dataFlags)
	alias := *extra
	alias.Index = len(fx.dict.Blocks)
	fx.dict.Blocks = append(fx.dict.Blocks, &alias)

	external := &blocks.Block{Index: len(fx.dict.Blocks), Offset: 0x1234, DecompressedSize: 10, CompressedSize: 10}
	external.SetFlags(0x00010004)
	fx.dict.Blocks = append(fx.dict.Blocks, external)
	return fx
}

func checkSample(t *testing.T, f *DataFile) {
	t.Helper()
	tex := f.Table.File(chunks.FileTexture, heroHash)
	if tex == nil {
		t.Fatal("texture file not found")
	}
	if tex.File.Magic != 0x54455801 {
		t.Errorf("texture magic = %08X", tex.File.Magic)
	}
	if got := tex.Child(chunks.TextureHeader); got == nil || !bytes.Equal(got.Data(), heroHeader) {
		t.Errorf("texture header = %v", got)
	}
	pixels := tex.Child(chunks.TextureData)
	if pixels == nil || !bytes.Equal(pixels.Data(), heroPixels) {
		t.Errorf("texture pixels wrong: %v", pixels)
	} else if pixels.ChunkOffset()%16 != 0 {
		t.Errorf("aligned payload at offset %d", pixels.ChunkOffset())
	}

	cfg := f.Table.File(chunks.FileConfig, settingsHash)
	if cfg == nil || !bytes.Equal(cfg.Data(), settings) {
		t.Errorf("config file = %v", cfg)
	}
	if len(f.Files()) != 2 {
		t.Errorf("Files() = %d entries, want 2", len(f.Files()))
	}
}

func TestOpenSharedSingleLeaf(t *testing.T) {
	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	record := make([]byte, 12)
	binary.LittleEndian.PutUint16(record[0:], 0xB501)
	binary.LittleEndian.PutUint32(record[4:], 8)
	binary.LittleEndian.PutUint32(record[8:], 12)

	fx := newFixture(t, false, [dictionary.BlockIndexCount]byte{})
	fx.add(bytes.Join([][]byte{record, payload, make([]byte, 4)}, nil), tableFlags)

	f := fx.open(Options{})
	roots := f.Table.Roots()
	if len(roots) != 1 {
		t.Fatalf("got %d roots, want 1", len(roots))
	}
	if roots[0].Type != chunks.TextureHeader {
		t.Errorf("root type = %s, want TextureHeader", roots[0].Type)
	}
	if !bytes.Equal(roots[0].Data(), fx.archive[12:20]) || !bytes.Equal(roots[0].Data(), payload) {
		t.Errorf("payload = % x, want % x", roots[0].Data(), payload)
	}
}

func TestOpenSample(t *testing.T) {
	for _, tt := range []struct {
		name               string
		compressed, shared bool
	}{
		{"raw", false, false},
		{"zlib", true, false},
		{"zlib shared stream", true, true},
	} {
		t.Run(tt.name, func(t *testing.T) {
			f := sampleArchive(t, tt.compressed, tt.shared).open(Options{Workers: 2})
			checkSample(t, f)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	for _, tt := range []struct {
		name               string
		compressed, shared bool
	}{
		{"raw", false, false},
		{"zlib", true, false},
		{"zlib shared stream", true, true},
	} {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			fx := sampleArchive(t, tt.compressed, tt.shared)
			f := fx.open(Options{Workers: 2})

			dataPath := filepath.Join(t.TempDir(), "game.data")
			if err := f.Save(ctx, dataPath); err != nil {
				t.Fatalf("Save failed: %v", err)
			}

			loaded, err := Load(ctx, dictionary.DictPath(dataPath), Options{})
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			checkSample(t, loaded)

			archive, err := os.ReadFile(dataPath)
			if err != nil {
				t.Fatal(err)
			}
			bl := loaded.Dictionary.Blocks
			last := len(bl) - 1 // external block
			extra, alias := bl[last-2], bl[last-1]

			got, status, err := fx.store.Decompress(archive, extra)
			if err != nil || status != blocks.StatusOK || !bytes.Equal(got, unreachable) {
				t.Errorf("unreferenced block = %q (%s, %v)", got, status, err)
			}
			if alias.Offset != extra.Offset {
				t.Errorf("aliased block at %#x, want %#x", alias.Offset, extra.Offset)
			}
			if bl[last].Offset != 0x1234 || bl[last].FileExtension != ".debug" {
				t.Errorf("external block changed: %s", bl[last])
			}
			for _, b := range bl[1 : last-1] {
				if b.Offset%8 != 0 || b.Offset >= bl[0].Offset {
					t.Errorf("%s is not 8-aligned before the table block at %#x", b, bl[0].Offset)
				}
			}
		})
	}
}

func TestSaveRoundTripSharedLeavesOnly(t *testing.T) {
	ctx := context.Background()
	payloads := [][]byte{[]byte("aligned"), []byte("next"), nil}
	table := &chunks.Table{}
	for i, p := range payloads {
		e := chunks.NewLeaf(chunks.DataType(0x0042+i), p)
		e.SetFlags(e.Flags().WithAlignBytes(i == 0).WithBlockIndex(0))
		table.AddRoot(e)
	}
	enc, err := table.Encode(true)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	fx := newFixture(t, true, [dictionary.BlockIndexCount]byte{})
	fx.add(enc.Table, tableFlags)
	f := fx.open(Options{})

	dataPath := filepath.Join(t.TempDir(), "leaves.data")
	for round := 0; round < 3; round++ {
		if err := f.Save(ctx, dataPath); err != nil {
			t.Fatalf("round %d: Save failed: %v", round, err)
		}
		if f, err = Load(ctx, dictionary.DictPath(dataPath), Options{}); err != nil {
			t.Fatalf("round %d: Load failed: %v", round, err)
		}
		roots := f.Table.Roots()
		if len(roots) != len(payloads) {
			t.Fatalf("round %d: %d roots, want %d", round, len(roots), len(payloads))
		}
		for i, r := range roots {
			if !bytes.Equal(r.Data(), payloads[i]) {
				t.Errorf("round %d: root %d = %q, want %q", round, i, r.Data(), payloads[i])
			}
		}
	}
}

func TestSaveAfterEdit(t *testing.T) {
	ctx := context.Background()
	f := sampleArchive(t, true, false).open(Options{})

	newSettings := []byte("speed=9\nlives=3\n")
	if err := f.Replace(chunks.FileConfig, settingsHash, newSettings); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}
	tex := f.Table.File(chunks.FileTexture, heroHash)
	radius := chunks.NewLeaf(chunks.BoundingRadius, []byte{0, 0, 0x80, 0x3F})
	if err := tex.AddChild(radius); err != nil {
		t.Fatalf("AddChild failed: %v", err)
	}

	dataPath := filepath.Join(t.TempDir(), "game.data")
	if err := f.Save(ctx, dataPath); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := Load(ctx, dictionary.DictPath(dataPath), Options{})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	cfg := loaded.Table.File(chunks.FileConfig, settingsHash)
	if !bytes.Equal(cfg.Data(), newSettings) {
		t.Errorf("config = %q, want %q", cfg.Data(), newSettings)
	}
	tex = loaded.Table.File(chunks.FileTexture, heroHash)
	if tex.ChunkSize() != 3 || len(tex.Children()) != 3 {
		t.Fatalf("texture has %d children (size %d), want 3", len(tex.Children()), tex.ChunkSize())
	}
	r, err := chunks.ReadValue[float32](tex.Child(chunks.BoundingRadius))
	if err != nil || r != 1 {
		t.Errorf("radius = %v, %v", r, err)
	}

	if err := loaded.Replace(chunks.FileTexture, heroHash, nil); !errors.Is(err, chunks.ErrContainerData) {
		t.Errorf("Replace on a container = %v, want ErrContainerData", err)
	}
	if err := loaded.Replace(chunks.FileConfig, 0xDEAD, nil); err == nil {
		t.Error("Replace of a missing file returned no error")
	}
}

func TestSaveFailureKeepsDictionary(t *testing.T) {
	f := sampleArchive(t, true, false).open(Options{})
	before := make([]uint32, len(f.Dictionary.Blocks))
	for i, b := range f.Dictionary.Blocks {
		before[i] = b.Offset
	}

	dataPath := filepath.Join(t.TempDir(), "missing", "game.data")
	if err := f.Save(context.Background(), dataPath); err == nil {
		t.Fatal("Save into a missing directory returned no error")
	}
	for i, b := range f.Dictionary.Blocks {
		if b.Offset != before[i] {
			t.Errorf("block %d offset changed to %#x after failed save", i, b.Offset)
		}
	}
}

func TestSaveEmptiesBlockOutsideArchive(t *testing.T) {
	ctx := context.Background()
	fx := sampleArchive(t, true, false)
	stray := &blocks.Block{Index: len(fx.dict.Blocks), Offset: uint32(len(fx.archive)) + 64, CompressedSize: 32, DecompressedSize: 48}
	stray.SetFlags(dataFlags)
	fx.dict.Blocks = append(fx.dict.Blocks, stray)
	f := fx.open(Options{})

	dataPath := filepath.Join(t.TempDir(), "game.data")
	if err := f.Save(ctx, dataPath); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := Load(ctx, dictionary.DictPath(dataPath), Options{})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	checkSample(t, loaded)
	got := loaded.Dictionary.Blocks[stray.Index]
	if got.Offset != 0 || got.CompressedSize != 0 || got.DecompressedSize != 0 {
		t.Errorf("block outside the archive saved as %s, want empty", got)
	}
}

func TestSaveFailureKeepsPreviousArchive(t *testing.T) {
	for _, tt := range []struct {
		name     string
		previous []byte
	}{
		{"replacing an archive", []byte("previous archive")},
		{"new archive", nil},
	} {
		t.Run(tt.name, func(t *testing.T) {
			f := sampleArchive(t, false, false).open(Options{})
			dir := t.TempDir()
			dataPath := filepath.Join(dir, "game.data")
			if tt.previous != nil {
				if err := os.WriteFile(dataPath, tt.previous, 0644); err != nil {
					t.Fatal(err)
				}
			}
			// a non-empty directory where the dictionary goes makes its rename fail
			dictPath := dictionary.DictPath(dataPath)
			if err := os.MkdirAll(filepath.Join(dictPath, "keep"), 0755); err != nil {
				t.Fatal(err)
			}

			if err := f.Save(context.Background(), dataPath); err == nil {
				t.Fatal("Save over a directory returned no error")
			}

			got, err := os.ReadFile(dataPath)
			switch {
			case tt.previous == nil && !errors.Is(err, os.ErrNotExist):
				t.Errorf("new archive left behind: %d bytes, %v", len(got), err)
			case tt.previous != nil && !bytes.Equal(got, tt.previous):
				t.Errorf("archive = %q, %v, want the previous contents", got, err)
			}
			entries, err := os.ReadDir(dir)
			if err != nil {
				t.Fatal(err)
			}
			want := 1 // the dictionary directory
			if tt.previous != nil {
				want++
			}
			if len(entries) != want {
				t.Errorf("directory holds %d entries, want %d", len(entries), want)
			}
		})
	}
}

func TestOpenSoftSkips(t *testing.T) {
	t.Run("payload outside stream", func(t *testing.T) {
		record := make([]byte, 12)
		binary.LittleEndian.PutUint16(record[0:], 0xB501)
		binary.LittleEndian.PutUint32(record[4:], 8)
		binary.LittleEndian.PutUint32(record[8:], 100)

		fx := newFixture(t, false, [dictionary.BlockIndexCount]byte{})
		fx.add(append(record, make([]byte, 4)...), tableFlags)
		f := fx.open(Options{})
		if len(f.Table.Roots()) != 1 || len(f.Table.Roots()[0].Data()) != 0 {
			t.Errorf("expected one root with an empty payload")
		}
	})

	t.Run("unknown compression", func(t *testing.T) {
		fx := newFixture(t, true, [dictionary.BlockIndexCount]byte{})
		fx.dict.Blocks = []*blocks.Block{{Offset: 0, CompressedSize: 8, DecompressedSize: 32}}
		fx.archive = []byte("NOTZLIB!")
		f := fx.open(Options{})
		if len(f.Table.Chunks) != 0 {
			t.Errorf("expected an empty table, got %d chunks", len(f.Table.Chunks))
		}
	})

	t.Run("missing stream block", func(t *testing.T) {
		fx := newFixture(t, false, [dictionary.BlockIndexCount]byte{0, 9})
		fx.add(bytes.Repeat([]byte{0}, 4), tableFlags)
		if _, err := Open(context.Background(), fx.dict, fx.archive, Options{}); err != nil {
			t.Errorf("Open failed: %v", err)
		}
	})
}

func TestOpenErrors(t *testing.T) {
	fx := newFixture(t, false, [dictionary.BlockIndexCount]byte{})
	if _, err := Open(context.Background(), fx.dict, nil, Options{}); !errors.Is(err, ErrNoFileTable) {
		t.Errorf("Open without blocks = %v, want ErrNoFileTable", err)
	}

	fx.add(make([]byte, 12), tableFlags)
	binary.LittleEndian.PutUint16(fx.archive[0:], 0x0001)
	binary.LittleEndian.PutUint16(fx.archive[2:], 0x8000) // container
	binary.LittleEndian.PutUint32(fx.archive[4:], 5)      // five children in a one-slot table
	if _, err := Open(context.Background(), fx.dict, fx.archive, Options{}); !errors.Is(err, chunks.ErrBadChildRange) {
		t.Errorf("Open = %v, want ErrBadChildRange", err)
	}

	if _, err := Load(context.Background(), filepath.Join(t.TempDir(), "none.dict"), Options{}); err == nil {
		t.Error("Load of a missing dictionary returned no error")
	}
}

func TestExtractImport(t *testing.T) {
	f := sampleArchive(t, true, false).open(Options{})
	dir := t.TempDir()

	n, err := f.Extract(dir)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Extract wrote %d files, want 2", n)
	}

	cfgPath := filepath.Join(dir, "Config", fileName(settingsHash))
	if got, err := os.ReadFile(cfgPath); err != nil || !bytes.Equal(got, settings) {
		t.Fatalf("extracted config = %q, %v", got, err)
	}
	texDir := filepath.Join(dir, "Texture", fileName(heroHash))
	if got, err := os.ReadFile(filepath.Join(texDir, "1_TextureData")); err != nil || !bytes.Equal(got, heroPixels) {
		t.Fatalf("extracted pixels: %v", err)
	}
	if _, err := os.Stat(filepath.Join(texDir, "0_TextureHeader")); err != nil {
		t.Fatalf("texture header not extracted: %v", err)
	}

	newPixels := []byte{1, 2, 3}
	if err := os.WriteFile(filepath.Join(texDir, "1_TextureData"), newPixels, 0644); err != nil {
		t.Fatal(err)
	}
	n, err = f.Import(dir)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Import replaced %d payloads, want 3", n)
	}
	tex := f.Table.File(chunks.FileTexture, heroHash)
	if got := tex.Child(chunks.TextureData).Data(); !bytes.Equal(got, newPixels) {
		t.Errorf("pixels after import = % x", got)
	}

	if err := os.WriteFile(filepath.Join(texDir, "0_MeshInfo"), nil, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := f.Import(dir); err == nil {
		t.Error("Import accepted a chunk name whose type does not match")
	}
}
