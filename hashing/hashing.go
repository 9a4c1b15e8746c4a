// Package hashing implements the NLG name hash and turns hashes back into
// names for display.
package hashing

import (
	"bufio"
	"fmt"
	"io"
	"math/bits"
	"os"
	"strconv"
	"strings"
	"sync"
)

// StringToHash hashes name the way the game does. With lower set, ASCII
// capitals are folded to lowercase first.
func StringToHash(name string, lower bool) uint32 {
	h := ^uint32(0)
	for i := 0; i < len(name); i++ {
		c := uint32(name[i])
		if lower && c-'A' <= 'Z'-'A' {
			c |= 0x20
		}
		h = h*33 + c
	}
	return h
}

// Table maps hashes to known names. It is safe for concurrent use.
type Table struct {
	mu    sync.RWMutex
	names map[uint32]string
}

// Default is the table used by Format.
var Default = NewTable()

func NewTable() *Table {
	return &Table{names: make(map[uint32]string)}
}

// Add registers name, its lowercase form and each of its path components.
// Existing entries win.
func (t *Table) Add(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.add(name)
	t.add(strings.ToLower(name))
	for _, part := range strings.Split(name, "/") {
		t.add(part)
	}
}

func (t *Table) add(name string) {
	if name == "" {
		return
	}
	h := StringToHash(name, false)
	if _, ok := t.names[h]; !ok {
		t.names[h] = name
	}
}

// Load adds one name per line from r.
func (t *Table) Load(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		t.Add(strings.TrimRight(scanner.Text(), " \t\r"))
	}
	return scanner.Err()
}

// LoadFile adds the names listed in the file at path.
func (t *Table) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open hash names: %w", err)
	}
	defer f.Close()

	if err := t.Load(f); err != nil {
		return fmt.Errorf("read hash names %s: %w", path, err)
	}
	return nil
}

func (t *Table) Lookup(hash uint32) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	name, ok := t.names[hash]
	return name, ok
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.names)
}

// Format returns the known name for hash, or its bytes in file order as
// hex, e.g. 0xAABBCCDD prints as DDCCBBAA.
func (t *Table) Format(hash uint32) string {
	if name, ok := t.Lookup(hash); ok {
		return name
	}
	return Hex(hash)
}

// Hex prints hash as its four bytes in file order.
func Hex(hash uint32) string {
	return fmt.Sprintf("%02X%02X%02X%02X", byte(hash), byte(hash>>8), byte(hash>>16), byte(hash>>24))
}

// Format formats hash using the Default table.
func Format(hash uint32) string {
	return Default.Format(hash)
}

// Parse is the inverse of Format: a known name maps to its hash, eight hex
// digits are read as bytes in file order, and anything else is hashed.
func (t *Table) Parse(s string) uint32 {
	h := StringToHash(s, false)
	if name, ok := t.Lookup(h); ok && name == s {
		return h
	}
	if len(s) == 8 {
		if v, err := strconv.ParseUint(s, 16, 32); err == nil {
			return bits.ReverseBytes32(uint32(v))
		}
	}
	return h
}

// Parse parses s using the Default table.
func Parse(s string) uint32 {
	return Default.Parse(s)
}
