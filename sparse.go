// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import "encoding/binary"

// Sparse (RLE) compression, used for files dominated by zero bytes.
//
// The stream starts with the decompressed size as a big-endian uint32,
// followed by control bytes: high bit set means a literal run of
// (low 7 bits)+1 bytes follows; high bit clear means a zero run of
// (low 7 bits)+3 bytes.

// compressSparse encodes data with the sparse RLE scheme. Zero runs
// shorter than 3 bytes are emitted as literals since the zero-run
// encoding cannot express them.
func compressSparse(data []byte) []byte {
	out := make([]byte, 4, len(data)/2+8)
	binary.BigEndian.PutUint32(out, uint32(len(data)))

	i := 0
	for i < len(data) {
		// Measure the zero run at i.
		zeros := 0
		for i+zeros < len(data) && data[i+zeros] == 0 {
			zeros++
		}

		if zeros >= 3 {
			run := zeros
			if run > 0x7F+3 {
				run = 0x7F + 3
			}
			out = append(out, byte(run-3))
			i += run
			continue
		}

		// Literal run: extend until a zero run of 3+ begins or the input
		// ends, capped at 0x80 bytes.
		start := i
		i += zeros
		for i < len(data) {
			if data[i] == 0 {
				z := 0
				for i+z < len(data) && data[i+z] == 0 {
					z++
				}
				if z >= 3 {
					break
				}
				i += z
				continue
			}
			i++
			if i-start == 0x80 {
				break
			}
		}
		if i-start > 0x80 {
			i = start + 0x80
		}
		out = append(out, byte(0x80|(i-start-1)))
		out = append(out, data[start:i]...)
	}
	return out
}

// decompressSparse decodes sparse RLE data. Runs are clamped twice: a
// literal run claiming more bytes than remain in the stream takes what is
// available, and total output never exceeds the size header. Real-world
// archives contain short streams and expect them to decode rather than
// fail, so a stream that ends early returns the bytes recovered so far.
// The only hard error beyond a missing header is a header that claims
// more than expectedSize, the decompressed size the caller knows.
func decompressSparse(data []byte, expectedSize uint32) ([]byte, error) {
	if len(data) < 4 {
		return nil, compressionf("sparse: stream shorter than size header")
	}
	storedSize := binary.BigEndian.Uint32(data)
	if storedSize > expectedSize {
		return nil, compressionf("sparse: stored size %d exceeds expected %d",
			storedSize, expectedSize)
	}

	out := make([]byte, 0, storedSize)
	remaining := storedSize

	i := 4
	for i < len(data) && remaining > 0 {
		ctrl := data[i]
		i++
		if ctrl&0x80 != 0 {
			n := uint32(ctrl&0x7F) + 1
			if avail := uint32(len(data) - i); n > avail {
				n = avail
			}
			if n > remaining {
				n = remaining
			}
			out = append(out, data[i:i+int(n)]...)
			i += int(n)
			remaining -= n
		} else {
			n := uint32(ctrl&0x7F) + 3
			if n > remaining {
				n = remaining
			}
			out = append(out, make([]byte, n)...)
			remaining -= n
		}
	}
	return out, nil
}
