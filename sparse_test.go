// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestSparseRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"all zeros", make([]byte, 1000)},
		{"no zeros", bytes.Repeat([]byte{0x42}, 100)},
		{"short zero runs", []byte{1, 0, 0, 2, 0, 3}},
		{"mixed", append(append([]byte("header"), make([]byte, 500)...), []byte("trailer")...)},
		{"long zero run", make([]byte, 0x7F+3+50)},
		{"long literal run", bytes.Repeat([]byte{1, 2, 3}, 100)},
		{"zero tail", append([]byte("data"), make([]byte, 300)...)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			compressed := compressSparse(tc.data)
			out, err := decompressSparse(compressed, uint32(len(tc.data)))
			if err != nil {
				t.Fatalf("decompress: %v", err)
			}
			if !bytes.Equal(out, tc.data) {
				t.Errorf("round trip mismatch: got %d bytes, want %d", len(out), len(tc.data))
			}
		})
	}
}

// TestSparseClampsLiteralRun covers streams whose final literal control
// byte claims more data than the stream holds. Real archives contain
// such streams and expect the run clamped to what is available.
func TestSparseClampsLiteralRun(t *testing.T) {
	stream := make([]byte, 4)
	binary.BigEndian.PutUint32(stream, 5)
	stream = append(stream, 0x87) // literal run of 8 claimed
	stream = append(stream, []byte("hello")...)

	out, err := decompressSparse(stream, 5)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if string(out) != "hello" {
		t.Errorf("got %q, want %q", out, "hello")
	}
}

// TestSparseShortStreamDecodesShort covers streams that end before the
// header size is reached. The recovered bytes come back without error.
func TestSparseShortStreamDecodesShort(t *testing.T) {
	stream := make([]byte, 4)
	binary.BigEndian.PutUint32(stream, 8)
	stream = append(stream, 0x87) // literal run of 8, only 5 bytes follow
	stream = append(stream, []byte("hello")...)

	out, err := decompressSparse(stream, 8)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if string(out) != "hello" {
		t.Errorf("got %q, want %q", out, "hello")
	}
}

func TestSparseStoredSizeExceedsExpected(t *testing.T) {
	stream := make([]byte, 4)
	binary.BigEndian.PutUint32(stream, 10)
	stream = append(stream, 0x84)
	stream = append(stream, []byte("hello")...)

	if _, err := decompressSparse(stream, 5); err == nil {
		t.Errorf("oversized header not detected")
	}
}

func TestSparseTruncatedHeader(t *testing.T) {
	if _, err := decompressSparse([]byte{0, 0}, 10); err == nil {
		t.Errorf("truncated header not detected")
	}
}

func TestSparseShortZeroRunsAsLiterals(t *testing.T) {
	// Runs of one or two zeros cannot be encoded as zero runs; they must
	// ride inside literal runs.
	data := []byte{1, 0, 2, 0, 0, 3}
	compressed := compressSparse(data)

	// One control byte for a single literal run covering everything.
	if len(compressed) != 4+1+len(data) {
		t.Errorf("encoded length %d, want %d", len(compressed), 4+1+len(data))
	}

	out, err := decompressSparse(compressed, uint32(len(data)))
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Errorf("round trip mismatch")
	}
}
