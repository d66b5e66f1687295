// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"bytes"
	"encoding/binary"
	"io"
	"sort"
)

// betHeader follows the 12-byte extended header inside a BET table.
type betHeader struct {
	TableSize         uint32
	FileCount         uint32
	Unknown08         uint32 // Typically 0x10
	TableEntrySize    uint32 // Bits per file record
	BitIndexFilePos   uint32
	BitIndexFileSize  uint32
	BitIndexCmpSize   uint32
	BitIndexFlagIndex uint32
	BitIndexUnknown   uint32
	BitCountFilePos   uint32
	BitCountFileSize  uint32
	BitCountCmpSize   uint32
	BitCountFlagIndex uint32
	BitCountUnknown   uint32
	TotalBetHashSize  uint32
	BetHashSizeExtra  uint32
	BetHashSize       uint32
	BetHashArraySize  uint32 // Bytes
	FlagCount         uint32
}

const betHeaderSize = 76

// betFileInfo is one unpacked BET record.
type betFileInfo struct {
	FilePos        uint64
	FileSize       uint64
	CompressedSize uint64
	Flags          uint32
}

// betTable is the v3+ block table: bit-packed file records with a deduped
// flag array and a parallel array of 64-bit name hashes for collision
// resolution.
type betTable struct {
	header    betHeader
	fileFlags []uint32
	fileTable []byte
	hashes    []uint64
}

// readBetTable parses a raw BET table as stored in the archive.
func readBetTable(data []byte) (*betTable, error) {
	body, err := decodeExtendedTable(data, betSignature, blockTableKey())
	if err != nil {
		return nil, err
	}
	if len(body) < betHeaderSize {
		return nil, invalidFormatf("BET table body too small: %d bytes", len(body))
	}

	var h betHeader
	if err := binary.Read(bytes.NewReader(body), binary.LittleEndian, &h); err != nil {
		return nil, err
	}

	r := bytes.NewReader(body[betHeaderSize:])

	fileFlags := make([]uint32, h.FlagCount)
	if err := readUint32Array(r, fileFlags); err != nil {
		return nil, invalidFormatf("BET flag array truncated")
	}

	fileTableSize := (int(h.FileCount)*int(h.TableEntrySize) + 7) / 8
	fileTable := make([]byte, fileTableSize)
	if _, err := io.ReadFull(r, fileTable); err != nil {
		return nil, invalidFormatf("BET file table truncated")
	}

	hashes := make([]uint64, h.BetHashArraySize/8)
	if err := binary.Read(r, binary.LittleEndian, hashes); err != nil {
		return nil, invalidFormatf("BET hash array truncated")
	}

	return &betTable{
		header:    h,
		fileFlags: fileFlags,
		fileTable: fileTable,
		hashes:    hashes,
	}, nil
}

// fileInfo unpacks the record at a HET-supplied file index.
func (t *betTable) fileInfo(index uint32) (betFileInfo, bool) {
	if index >= t.header.FileCount {
		return betFileInfo{}, false
	}

	base := int(index) * int(t.header.TableEntrySize)

	filePos, ok1 := readBits(t.fileTable, base+int(t.header.BitIndexFilePos), t.header.BitCountFilePos)
	fileSize, ok2 := readBits(t.fileTable, base+int(t.header.BitIndexFileSize), t.header.BitCountFileSize)
	cmpSize, ok3 := readBits(t.fileTable, base+int(t.header.BitIndexCmpSize), t.header.BitCountCmpSize)
	flagIndex, ok4 := readBits(t.fileTable, base+int(t.header.BitIndexFlagIndex), t.header.BitCountFlagIndex)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return betFileInfo{}, false
	}

	var flags uint32
	if uint32(flagIndex) < t.header.FlagCount {
		flags = t.fileFlags[flagIndex]
	}

	return betFileInfo{
		FilePos:        filePos,
		FileSize:       fileSize,
		CompressedSize: cmpSize,
		Flags:          flags,
	}, true
}

// matchesName reports whether the record at index belongs to the filename,
// using the stored Jenkins one-at-a-time hash.
func (t *betTable) matchesName(index uint32, filename string) bool {
	if int(index) >= len(t.hashes) {
		return false
	}
	return t.hashes[index] == jenkinsOneAtATime(filename)
}

// buildBetTable packs block entries into a BET table. names holds the
// filename for each entry, index-aligned with entries.
func buildBetTable(entries []blockEntry, names []string) (*betTable, error) {
	if len(entries) != len(names) {
		return nil, invalidFormatf("BET build: %d entries but %d names", len(entries), len(names))
	}
	fileCount := uint32(len(entries))

	// Field widths come from the largest stored value; flags dedupe into
	// a lookup array indexed by a narrow flag index.
	var maxFilePos, maxFileSize, maxCmpSize uint64
	flagSet := make(map[uint32]struct{})
	for i := range entries {
		if v := uint64(entries[i].FilePos); v > maxFilePos {
			maxFilePos = v
		}
		if v := uint64(entries[i].FileSize); v > maxFileSize {
			maxFileSize = v
		}
		if v := uint64(entries[i].CompressedSize); v > maxCmpSize {
			maxCmpSize = v
		}
		flagSet[entries[i].Flags] = struct{}{}
	}

	flagArray := make([]uint32, 0, len(flagSet))
	for f := range flagSet {
		flagArray = append(flagArray, f)
	}
	sort.Slice(flagArray, func(i, j int) bool { return flagArray[i] < flagArray[j] })
	flagIndexOf := make(map[uint32]uint32, len(flagArray))
	for i, f := range flagArray {
		flagIndexOf[f] = uint32(i)
	}

	bitCountFilePos := bitsNeeded(maxFilePos)
	bitCountFileSize := bitsNeeded(maxFileSize)
	bitCountCmpSize := bitsNeeded(maxCmpSize)
	var bitCountFlagIndex uint32
	if len(flagArray) > 0 {
		bitCountFlagIndex = bitsNeeded(uint64(len(flagArray) - 1))
	}

	h := betHeader{
		FileCount:         fileCount,
		Unknown08:         0x10,
		BitIndexFilePos:   0,
		BitIndexFileSize:  bitCountFilePos,
		BitIndexCmpSize:   bitCountFilePos + bitCountFileSize,
		BitIndexFlagIndex: bitCountFilePos + bitCountFileSize + bitCountCmpSize,
		BitCountFilePos:   bitCountFilePos,
		BitCountFileSize:  bitCountFileSize,
		BitCountCmpSize:   bitCountCmpSize,
		BitCountFlagIndex: bitCountFlagIndex,
		TotalBetHashSize:  fileCount * 64,
		BetHashSize:       64,
		BetHashArraySize:  fileCount * 8,
		FlagCount:         uint32(len(flagArray)),
	}
	h.BitIndexUnknown = h.BitIndexFlagIndex + bitCountFlagIndex
	h.TableEntrySize = h.BitIndexUnknown

	fileTableSize := (int(fileCount)*int(h.TableEntrySize) + 7) / 8
	fileTable := make([]byte, fileTableSize)
	hashes := make([]uint64, fileCount)

	for i := range entries {
		base := i * int(h.TableEntrySize)
		writeBits(fileTable, base+int(h.BitIndexFilePos), uint64(entries[i].FilePos), bitCountFilePos)
		writeBits(fileTable, base+int(h.BitIndexFileSize), uint64(entries[i].FileSize), bitCountFileSize)
		writeBits(fileTable, base+int(h.BitIndexCmpSize), uint64(entries[i].CompressedSize), bitCountCmpSize)
		writeBits(fileTable, base+int(h.BitIndexFlagIndex), uint64(flagIndexOf[entries[i].Flags]), bitCountFlagIndex)
		hashes[i] = jenkinsOneAtATime(names[i])
	}

	h.TableSize = 12 + betHeaderSize + h.FlagCount*4 + uint32(fileTableSize) + h.BetHashArraySize

	return &betTable{
		header:    h,
		fileFlags: flagArray,
		fileTable: fileTable,
		hashes:    hashes,
	}, nil
}

// encode serializes the table, including the extended header. The body is
// encrypted but left uncompressed.
func (t *betTable) encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, &t.header); err != nil {
		return nil, err
	}
	if err := writeUint32Array(&buf, t.fileFlags); err != nil {
		return nil, err
	}
	buf.Write(t.fileTable)
	if err := binary.Write(&buf, binary.LittleEndian, t.hashes); err != nil {
		return nil, err
	}
	return encodeExtendedTable(buf.Bytes(), betSignature, blockTableKey(), CompressionNone)
}
