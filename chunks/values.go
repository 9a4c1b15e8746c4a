package chunks

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Primitive lists the fixed-size values a payload can be read as.
type Primitive interface {
	~uint8 | ~int8 | ~uint16 | ~int16 | ~uint32 | ~int32 | ~uint64 | ~int64 |
		~float32 | ~float64 | ~bool
}

// ReadValues reads count little-endian values from the start of e's payload.
func ReadValues[T Primitive](e *Entry, count int) ([]T, error) {
	values := make([]T, count)
	if err := binary.Read(bytes.NewReader(e.data), binary.LittleEndian, values); err != nil {
		return nil, fmt.Errorf("read %d values from %s: %w", count, e, err)
	}
	return values, nil
}

// ReadValue reads a single little-endian value from the start of e's payload.
func ReadValue[T Primitive](e *Entry) (T, error) {
	var v T
	if err := binary.Read(bytes.NewReader(e.data), binary.LittleEndian, &v); err != nil {
		return v, fmt.Errorf("read value from %s: %w", e, err)
	}
	return v, nil
}
