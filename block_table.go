// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"bytes"
	"fmt"
	"io"
)

// blockEntry describes one stored file: where it lives, how big it is and
// how it is packed.
type blockEntry struct {
	FilePos        uint32 // Offset of the file data, relative to the archive start
	CompressedSize uint32 // Size of the data as stored
	FileSize       uint32 // Size of the data when unpacked
	Flags          uint32
}

func (e *blockEntry) exists() bool        { return e.Flags&fileExists != 0 }
func (e *blockEntry) isCompressed() bool  { return e.Flags&(fileCompress|fileImplode) != 0 }
func (e *blockEntry) isEncrypted() bool   { return e.Flags&fileEncrypted != 0 }
func (e *blockEntry) isSingleUnit() bool  { return e.Flags&fileSingleUnit != 0 }
func (e *blockEntry) isPatchFile() bool   { return e.Flags&filePatchFile != 0 }
func (e *blockEntry) isDeleteMarker() bool { return e.Flags&fileDeleteMarker != 0 }
func (e *blockEntry) hasSectorCRC() bool  { return e.Flags&fileSectorCRC != 0 }

// blockTable holds the block entries in archive order. Unlike the hash
// table it has no structural constraints beyond its length.
type blockTable struct {
	entries []blockEntry
}

// readBlockTable reads and decrypts a block table from raw archive bytes.
// When hiBlock is non-nil it carries the upper 16 bits of each file
// position from the V2 hi-block table.
func readBlockTable(data []byte, size uint32) (*blockTable, error) {
	if uint64(len(data)) < uint64(size)*blockEntrySize {
		return nil, fmt.Errorf("%w: truncated: %d bytes for %d entries",
			ErrBlockTable, len(data), size)
	}

	raw := make([]uint32, size*4)
	if err := readUint32Array(bytes.NewReader(data), raw); err != nil {
		return nil, err
	}
	decryptBlock(raw, blockTableKey())

	t := &blockTable{entries: make([]blockEntry, size)}
	for i := range t.entries {
		t.entries[i] = blockEntry{
			FilePos:        raw[i*4],
			CompressedSize: raw[i*4+1],
			FileSize:       raw[i*4+2],
			Flags:          raw[i*4+3],
		}
	}
	return t, nil
}

// write encrypts and writes the block table.
func (t *blockTable) write(w io.Writer) error {
	raw := make([]uint32, len(t.entries)*4)
	for i, e := range t.entries {
		raw[i*4] = e.FilePos
		raw[i*4+1] = e.CompressedSize
		raw[i*4+2] = e.FileSize
		raw[i*4+3] = e.Flags
	}
	encryptBlock(raw, blockTableKey())
	return writeUint32Array(w, raw)
}

func (t *blockTable) size() uint32 { return uint32(len(t.entries)) }

func (t *blockTable) sizeInBytes() uint64 {
	return uint64(len(t.entries)) * blockEntrySize
}

// get returns the entry at a hash-table-supplied index, validating range.
func (t *blockTable) get(index uint32) (*blockEntry, error) {
	if index >= uint32(len(t.entries)) {
		return nil, fmt.Errorf("%w: index %d out of range (table size %d)",
			ErrBlockTable, index, len(t.entries))
	}
	return &t.entries[index], nil
}

// filePos64 combines a block entry's 32-bit position with its hi-block
// table word, when one exists.
func filePos64(e *blockEntry, hiBlock []uint16, index uint32) uint64 {
	pos := uint64(e.FilePos)
	if hiBlock != nil && index < uint32(len(hiBlock)) {
		pos |= uint64(hiBlock[index]) << 32
	}
	return pos
}
