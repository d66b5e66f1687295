// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"bytes"
	"encoding/binary"
)

// hetHeader follows the 12-byte extended header inside a HET table.
type hetHeader struct {
	TableSize      uint32 // Entire table including the extended header
	MaxFileCount   uint32
	HashTableSize  uint32 // Number of 8-bit name hash slots
	HashEntrySize  uint32 // Width of the stored name hash, in bits
	TotalIndexSize uint32 // Total bits in the file index array
	IndexSizeExtra uint32
	IndexSize      uint32 // Width of one file index, in bits
	BlockTableSize uint32
}

const hetHeaderSize = 32

// hetHashEmpty marks an unused name hash slot.
const hetHashEmpty = 0xFF

// hetHashBits is the hash width used when building tables, matching the
// width retail archives carry. Reading honors whatever the header says.
const hetHashBits = 48

// hetTable is the v3+ file lookup table: a linear-probed array of 8-bit
// name hashes paired with a bit-packed array of file indices into the BET
// table.
type hetTable struct {
	header      hetHeader
	hashes      []byte
	fileIndices []byte
}

// decodeExtendedTable validates a HET/BET extended header, decrypts the
// body when a key is given and decompresses it when the stored size is
// smaller than the declared one. Returns the plain body after the
// extended header.
func decodeExtendedTable(data []byte, signature uint32, key uint32) ([]byte, error) {
	if len(data) < 12 {
		return nil, invalidFormatf("extended table shorter than its header")
	}
	sig := binary.LittleEndian.Uint32(data[0:4])
	if sig != signature {
		return nil, invalidFormatf("extended table signature 0x%08X, want 0x%08X",
			sig, signature)
	}
	dataSize := binary.LittleEndian.Uint32(data[8:12])

	body := make([]byte, len(data)-12)
	copy(body, data[12:])

	if key != 0 {
		decryptBytes(body, key)
	}

	// A stored size below the declared one means the body is compressed,
	// method byte first.
	if int(dataSize) > len(body) {
		if len(body) == 0 {
			return nil, invalidFormatf("extended table declares %d bytes but stores none", dataSize)
		}
		return decompressData(body, dataSize)
	}
	return body, nil
}

// encodeExtendedTable wraps a plain table body with the extended header,
// compressing and then encrypting the body when requested.
func encodeExtendedTable(body []byte, signature uint32, key uint32, methods byte) ([]byte, error) {
	dataSize := uint32(len(body))

	stored := body
	if methods != CompressionNone {
		compressed, err := compressData(body, methods)
		if err != nil {
			return nil, err
		}
		stored = compressed
	}
	if key != 0 {
		// compressData may alias its input; encrypt a copy.
		buf := make([]byte, len(stored))
		copy(buf, stored)
		encryptBytes(buf, key)
		stored = buf
	}

	out := make([]byte, 12+len(stored))
	binary.LittleEndian.PutUint32(out[0:4], signature)
	binary.LittleEndian.PutUint32(out[4:8], 1)
	binary.LittleEndian.PutUint32(out[8:12], dataSize)
	copy(out[12:], stored)
	return out, nil
}

// readHetTable parses a raw HET table as stored in the archive.
func readHetTable(data []byte) (*hetTable, error) {
	body, err := decodeExtendedTable(data, hetSignature, hashTableKey())
	if err != nil {
		return nil, err
	}
	if len(body) < hetHeaderSize {
		return nil, invalidFormatf("HET table body too small: %d bytes", len(body))
	}

	var h hetHeader
	if err := binary.Read(bytes.NewReader(body), binary.LittleEndian, &h); err != nil {
		return nil, err
	}

	hashStart := hetHeaderSize
	hashEnd := hashStart + int(h.HashTableSize)
	indexBytes := (int(h.HashTableSize)*int(h.IndexSize) + 7) / 8
	indexEnd := hashEnd + indexBytes
	if len(body) < indexEnd {
		return nil, invalidFormatf("HET table truncated: have %d bytes, need %d",
			len(body), indexEnd)
	}

	return &hetTable{
		header:      h,
		hashes:      body[hashStart:hashEnd],
		fileIndices: body[hashEnd:indexEnd],
	}, nil
}

// find returns the BET file indices whose stored name hash matches the
// filename. Multiple candidates mean an 8-bit collision; the caller
// verifies against the BET hash array.
func (t *hetTable) find(filename string) []uint32 {
	total := int(t.header.HashTableSize)
	if total == 0 {
		return nil
	}

	hash, nameHash1 := jenkinsHashlittle2(filename, t.header.HashEntrySize)
	start := int(hash % uint64(total))

	var candidates []uint32
	for i := 0; i < total; i++ {
		index := (start + i) % total
		stored := t.hashes[index]
		if stored == hetHashEmpty {
			break
		}
		if stored != nameHash1 {
			continue
		}
		value, ok := readBits(t.fileIndices, index*int(t.header.IndexSize), t.header.IndexSize)
		if !ok {
			continue
		}
		if uint32(value) < t.header.MaxFileCount {
			candidates = append(candidates, uint32(value))
		}
	}
	return candidates
}

// buildHetTable constructs a HET table for a list of filenames whose BET
// index equals their position in the slice.
func buildHetTable(names []string) (*hetTable, error) {
	fileCount := uint32(len(names))
	slots := nextPowerOf2(fileCount * 2)
	if slots < 16 {
		slots = 16
	}
	indexSize := bitsNeeded(uint64(fileCount))

	h := hetHeader{
		MaxFileCount:   fileCount,
		HashTableSize:  slots,
		HashEntrySize:  hetHashBits,
		TotalIndexSize: slots * indexSize,
		IndexSize:      indexSize,
	}

	hashes := make([]byte, slots)
	for i := range hashes {
		hashes[i] = hetHashEmpty
	}
	indexBytes := (int(h.TotalIndexSize) + 7) / 8
	fileIndices := make([]byte, indexBytes)

	invalid := uint64(1)<<indexSize - 1
	for i := 0; i < int(slots); i++ {
		writeBits(fileIndices, i*int(indexSize), invalid, indexSize)
	}

	for fileIndex, name := range names {
		hash, nameHash1 := jenkinsHashlittle2(name, hetHashBits)
		start := int(hash % uint64(slots))

		index := start
		for {
			if hashes[index] == hetHashEmpty {
				hashes[index] = nameHash1
				writeBits(fileIndices, index*int(indexSize), uint64(fileIndex), indexSize)
				break
			}
			index = (index + 1) % int(slots)
			if index == start {
				return nil, invalidFormatf("HET table full")
			}
		}
	}

	h.TableSize = 12 + hetHeaderSize + slots + uint32(indexBytes)

	return &hetTable{
		header:      h,
		hashes:      hashes,
		fileIndices: fileIndices,
	}, nil
}

// encode serializes the table, including the extended header, ready to be
// written to the archive. The body is encrypted but left uncompressed.
func (t *hetTable) encode() ([]byte, error) {
	body := make([]byte, 0, hetHeaderSize+len(t.hashes)+len(t.fileIndices))
	buf := bytes.NewBuffer(body)
	if err := binary.Write(buf, binary.LittleEndian, &t.header); err != nil {
		return nil, err
	}
	buf.Write(t.hashes)
	buf.Write(t.fileIndices)
	return encodeExtendedTable(buf.Bytes(), hetSignature, hashTableKey(), CompressionNone)
}
