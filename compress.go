// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"bytes"
	stdbzip2 "compress/bzip2"
	"io"

	"github.com/JoshVarga/blast"
	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/zlib"
	"github.com/ulikunitz/xz/lzma"
)

// Compression method flags, stored as the first byte of compressed data.
// LZMA is a fixed method value rather than a flag and must be matched
// exactly before the flag combinations are considered.
const (
	compressionHuffman     = 0x01
	compressionZlib        = 0x02
	compressionImplode     = 0x04
	compressionPKWare      = 0x08
	compressionBzip2       = 0x10
	compressionSparse      = 0x20
	compressionADPCMMono   = 0x40
	compressionADPCMStereo = 0x80

	compressionLZMA = 0x12
)

// CompressionZlib and friends are the method masks accepted by
// AddFileOptions. They mirror the on-disk method byte.
const (
	CompressionNone   = 0x00
	CompressionZlib   = compressionZlib
	CompressionBzip2  = compressionBzip2
	CompressionSparse = compressionSparse
	CompressionLZMA   = compressionLZMA
)

// decompressData decompresses a block of data that carries a leading
// method byte. expectedSize is the known decompressed size and is used
// both to size buffers and to validate the result.
func decompressData(data []byte, expectedSize uint32) ([]byte, error) {
	if len(data) == 0 {
		return nil, compressionf("empty compressed block")
	}

	method := data[0]
	payload := data[1:]

	// LZMA overlaps the zlib|bzip2 bits, so match it before treating the
	// byte as a flag set.
	if method == compressionLZMA {
		return decompressLZMA(payload, expectedSize)
	}

	if method&(compressionHuffman|compressionADPCMMono|compressionADPCMStereo) != 0 {
		return nil, compressionf("unsupported compression method 0x%02X", method)
	}

	// Flags decompress in reverse order of application: the base codec
	// first, then sparse.
	out := payload
	var err error
	switch {
	case method&compressionZlib != 0:
		out, err = decompressZlib(out, expectedSize)
	case method&compressionBzip2 != 0:
		out, err = decompressBzip2(out, expectedSize)
	case method&(compressionPKWare|compressionImplode) != 0:
		// Both flags mean PKWARE DCL on disk.
		out, err = decompressPKWare(out, expectedSize)
	}
	if err != nil {
		return nil, err
	}

	if method&compressionSparse != 0 {
		out, err = decompressSparse(out, expectedSize)
		if err != nil {
			return nil, err
		}
	}

	if method&(compressionZlib|compressionBzip2|compressionPKWare|compressionImplode|compressionSparse) == 0 {
		return nil, compressionf("unknown compression method 0x%02X", method)
	}

	// Sparse streams may legitimately decode short: the codec clamps
	// malformed runs instead of failing.
	if method&compressionSparse == 0 && uint32(len(out)) != expectedSize {
		return nil, compressionf("decompressed %d bytes, expected %d", len(out), expectedSize)
	}
	return out, nil
}

// compressData compresses a block with the requested method mask and
// prepends the method byte, but only when that actually saves space.
// Incompressible data comes back verbatim with no method byte; callers
// detect the case by comparing lengths.
func compressData(data []byte, methods byte) ([]byte, error) {
	if methods == CompressionNone || len(data) == 0 {
		return data, nil
	}

	var (
		compressed []byte
		err        error
	)
	if methods == compressionLZMA {
		compressed, err = compressLZMA(data)
	} else {
		if methods&(compressionHuffman|compressionADPCMMono|compressionADPCMStereo) != 0 {
			return nil, compressionf("unsupported compression method 0x%02X", methods)
		}
		if methods&(compressionPKWare|compressionImplode) != 0 {
			return nil, compressionf("PKWare compression is not supported (decompression only)")
		}

		compressed = data
		if methods&compressionSparse != 0 {
			compressed = compressSparse(compressed)
		}
		switch {
		case methods&compressionZlib != 0:
			compressed, err = compressZlib(compressed)
		case methods&compressionBzip2 != 0:
			compressed, err = compressBzip2(compressed)
		}
	}
	if err != nil {
		return nil, err
	}

	if 1+len(compressed) >= len(data) {
		return data, nil
	}

	out := make([]byte, 0, 1+len(compressed))
	out = append(out, methods)
	return append(out, compressed...), nil
}

func compressZlib(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return nil, compressionf("zlib: %v", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, compressionf("zlib: %v", err)
	}
	if err := w.Close(); err != nil {
		return nil, compressionf("zlib: %v", err)
	}
	return buf.Bytes(), nil
}

func decompressZlib(data []byte, expectedSize uint32) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, compressionf("zlib: %v", err)
	}
	defer r.Close()

	out := make([]byte, 0, expectedSize)
	buf := bytes.NewBuffer(out)
	if _, err := io.Copy(buf, r); err != nil {
		return nil, compressionf("zlib: %v", err)
	}
	return buf.Bytes(), nil
}

func compressBzip2(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := bzip2.NewWriter(&buf, &bzip2.WriterConfig{Level: bzip2.BestCompression})
	if err != nil {
		return nil, compressionf("bzip2: %v", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, compressionf("bzip2: %v", err)
	}
	if err := w.Close(); err != nil {
		return nil, compressionf("bzip2: %v", err)
	}
	return buf.Bytes(), nil
}

func decompressBzip2(data []byte, expectedSize uint32) ([]byte, error) {
	r := stdbzip2.NewReader(bytes.NewReader(data))

	out := make([]byte, 0, expectedSize)
	buf := bytes.NewBuffer(out)
	if _, err := io.Copy(buf, r); err != nil {
		return nil, compressionf("bzip2: %v", err)
	}
	return buf.Bytes(), nil
}

func compressLZMA(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := lzma.NewWriter(&buf)
	if err != nil {
		return nil, compressionf("lzma: %v", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, compressionf("lzma: %v", err)
	}
	if err := w.Close(); err != nil {
		return nil, compressionf("lzma: %v", err)
	}
	return buf.Bytes(), nil
}

func decompressLZMA(data []byte, expectedSize uint32) ([]byte, error) {
	r, err := lzma.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, compressionf("lzma: %v", err)
	}

	out := make([]byte, 0, expectedSize)
	buf := bytes.NewBuffer(out)
	if _, err := io.Copy(buf, r); err != nil {
		return nil, compressionf("lzma: %v", err)
	}
	if uint32(buf.Len()) != expectedSize {
		return nil, compressionf("lzma: decompressed %d bytes, expected %d",
			buf.Len(), expectedSize)
	}
	return buf.Bytes(), nil
}

// decompressPKWare expands PKWARE DCL "imploded" data. There is no
// corresponding compressor; modern tools never implode.
func decompressPKWare(data []byte, expectedSize uint32) ([]byte, error) {
	r, err := blast.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, compressionf("pkware: %v", err)
	}
	defer r.Close()

	out := make([]byte, 0, expectedSize)
	buf := bytes.NewBuffer(out)
	if _, err := io.Copy(buf, r); err != nil {
		return nil, compressionf("pkware: %v", err)
	}
	return buf.Bytes(), nil
}

// decompressImploded handles the dedicated implode flag, which stores
// PKWare data with no method byte.
func decompressImploded(data []byte, expectedSize uint32) ([]byte, error) {
	out, err := decompressPKWare(data, expectedSize)
	if err != nil {
		return nil, err
	}
	if uint32(len(out)) != expectedSize {
		return nil, compressionf("pkware: decompressed %d bytes, expected %d",
			len(out), expectedSize)
	}
	return out, nil
}
