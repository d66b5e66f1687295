// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressRoundTrip(t *testing.T) {
	// Repetitive enough that every codec shrinks it.
	data := bytes.Repeat([]byte("The quick brown fox jumps over the lazy dog. "), 200)
	sparseData := append(make([]byte, 2000), data[:500]...)

	tests := []struct {
		name    string
		methods byte
		data    []byte
	}{
		{"zlib", CompressionZlib, data},
		{"bzip2", CompressionBzip2, data},
		{"lzma", CompressionLZMA, data},
		{"sparse", CompressionSparse, sparseData},
		{"sparse+zlib", CompressionSparse | CompressionZlib, sparseData},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			compressed, err := compressData(tc.data, tc.methods)
			require.NoError(t, err)
			require.Less(t, len(compressed), len(tc.data), "should shrink")
			assert.Equal(t, tc.methods, compressed[0], "method byte")

			out, err := decompressData(compressed, uint32(len(tc.data)))
			require.NoError(t, err)
			assert.Equal(t, tc.data, out)
		})
	}
}

func TestCompressIncompressible(t *testing.T) {
	// All 256 byte values once: no repetition for LZ77 to exploit, so the
	// block comes back verbatim with no method byte.
	data := make([]byte, 256)
	for i := range data {
		data[i] = byte(i)
	}

	out, err := compressData(data, CompressionZlib)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestCompressEmptyAndNone(t *testing.T) {
	out, err := compressData(nil, CompressionZlib)
	require.NoError(t, err)
	assert.Empty(t, out)

	data := []byte("stored verbatim")
	out, err = compressData(data, CompressionNone)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestDecompressRejectsUnsupported(t *testing.T) {
	_, err := decompressData(nil, 10)
	assert.ErrorIs(t, err, ErrCompression)

	// Huffman and ADPCM are audio-era codecs this engine does not carry.
	for _, method := range []byte{compressionHuffman, compressionADPCMMono, compressionADPCMStereo} {
		_, err := decompressData([]byte{method, 0x00, 0x01}, 10)
		assert.ErrorIs(t, err, ErrCompression, "method 0x%02X", method)
	}

	// A method byte with no known bits set.
	_, err = decompressData([]byte{0x00, 0x01, 0x02}, 10)
	assert.ErrorIs(t, err, ErrCompression)
}

func TestCompressRejectsPKWare(t *testing.T) {
	_, err := compressData([]byte("some data"), compressionPKWare)
	assert.ErrorIs(t, err, ErrCompression)

	_, err = compressData([]byte("some data"), compressionImplode)
	assert.ErrorIs(t, err, ErrCompression)
}

func TestDecompressSizeMismatch(t *testing.T) {
	data := bytes.Repeat([]byte("abcd"), 500)
	compressed, err := compressData(data, CompressionZlib)
	require.NoError(t, err)
	require.Equal(t, byte(CompressionZlib), compressed[0])

	_, err = decompressData(compressed, uint32(len(data))+1)
	assert.ErrorIs(t, err, ErrCompression)
}

func TestLZMAExactMethodValue(t *testing.T) {
	// 0x12 overlaps zlib|bzip2 as a flag set; it must decode as LZMA.
	data := bytes.Repeat([]byte("lzma method byte check "), 100)
	compressed, err := compressData(data, CompressionLZMA)
	require.NoError(t, err)
	require.Equal(t, byte(0x12), compressed[0])

	out, err := decompressData(compressed, uint32(len(data)))
	require.NoError(t, err)
	assert.Equal(t, data, out)
}
