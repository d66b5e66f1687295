// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MPQ format constants
const (
	// Magic signature "MPQ\x1A" in little-endian
	mpqMagic = 0x1A51504D

	// User data signature "MPQ\x1B" in little-endian
	userDataMagic = 0x1B51504D

	// Format versions
	formatVersion1 = 0 // Original format (up to 4GB)
	formatVersion2 = 1 // Extended format (Burning Crusade+)
	formatVersion3 = 2 // Cataclysm beta (HET/BET tables)
	formatVersion4 = 3 // Cataclysm+ (table MD5 checksums)

	// Header sizes
	headerSizeV1 = 0x20 // 32 bytes
	headerSizeV2 = 0x2C // 44 bytes
	headerSizeV3 = 0x44 // 68 bytes
	headerSizeV4 = 0xD0 // 208 bytes

	// Block table entry flags
	fileImplode      = 0x00000100 // Imploded (PKWARE compression)
	fileCompress     = 0x00000200 // Compressed (multi-algorithm)
	fileEncrypted    = 0x00010000 // Encrypted
	fileFixKey       = 0x00020000 // Key adjusted by block offset
	filePatchFile    = 0x00100000 // Patch file
	fileSingleUnit   = 0x01000000 // Single unit (not split into sectors)
	fileDeleteMarker = 0x02000000 // File is a deletion marker
	fileSectorCRC    = 0x04000000 // Sector checksums stored after data
	fileExists       = 0x80000000 // File exists

	// Hash table entry sentinels (raw on-disk block index values)
	blockIndexEmpty   = 0xFFFFFFFF
	blockIndexDeleted = 0xFFFFFFFE

	// Locale
	localeNeutral = 0x00000000

	// Extended table signatures ("HET\x1A" / "BET\x1A")
	hetSignature = 0x1A544548
	betSignature = 0x1A544542

	// Fixed size of the 16-byte hash/block table records
	hashEntrySize  = 16
	blockEntrySize = 16

	// Default sector size (4096 bytes = 512 << 3)
	defaultSectorSizeShift = 3
	defaultSectorSize      = 512 << defaultSectorSizeShift
)

// baseHeader is the MPQ archive header (V1 format - 32 bytes)
type baseHeader struct {
	Magic            uint32 // "MPQ\x1A"
	HeaderSize       uint32 // Size of this header
	ArchiveSize      uint32 // Size of the entire archive (deprecated in V2+)
	FormatVersion    uint16 // Format version (0-3)
	SectorSizeShift  uint16 // Power of 2 exponent for sector size
	HashTableOffset  uint32 // Offset to hash table (low 32 bits)
	BlockTableOffset uint32 // Offset to block table (low 32 bits)
	HashTableSize    uint32 // Number of entries in hash table
	BlockTableSize   uint32 // Number of entries in block table
}

// extendedHeader contains V2 extended header fields (12 bytes)
type extendedHeader struct {
	HiBlockTableOffset64 uint64 // 64-bit offset to the hi-block table
	HashTableOffsetHi    uint16 // High 16 bits of hash table offset
	BlockTableOffsetHi   uint16 // High 16 bits of block table offset
}

// v3Header contains V3 extended header fields (24 bytes)
type v3Header struct {
	ArchiveSize64  uint64 // 64-bit archive size
	BetTableOffset uint64 // Offset of the BET table (0 = absent)
	HetTableOffset uint64 // Offset of the HET table (0 = absent)
}

// v4Header contains V4 extended header fields (140 bytes): compressed
// table sizes and MD5 digests at header offsets 112-207.
type v4Header struct {
	HashTableSize64    uint64
	BlockTableSize64   uint64
	HiBlockTableSize64 uint64
	HetTableSize64     uint64
	BetTableSize64     uint64
	RawChunkSize       uint32
	MD5BlockTable      [16]byte
	MD5HashTable       [16]byte
	MD5HiBlockTable    [16]byte
	MD5BetTable        [16]byte
	MD5HetTable        [16]byte
	MD5Header          [16]byte
}

// archiveHeader combines all versions of the header. Fields beyond the
// declared format version stay zero.
type archiveHeader struct {
	baseHeader
	extendedHeader
	v3Header
	v4Header

	// ArchiveOffset is the absolute file offset of the MPQ header, nonzero
	// when a user data block precedes the archive proper. Table and file
	// offsets in the header are relative to it.
	ArchiveOffset uint64
}

// getHashTableOffset64 returns the full 64-bit hash table offset
func (h *archiveHeader) getHashTableOffset64() uint64 {
	if h.FormatVersion >= formatVersion2 {
		return uint64(h.HashTableOffset) | (uint64(h.HashTableOffsetHi) << 32)
	}
	return uint64(h.HashTableOffset)
}

// getBlockTableOffset64 returns the full 64-bit block table offset
func (h *archiveHeader) getBlockTableOffset64() uint64 {
	if h.FormatVersion >= formatVersion2 {
		return uint64(h.BlockTableOffset) | (uint64(h.BlockTableOffsetHi) << 32)
	}
	return uint64(h.BlockTableOffset)
}

// setHashTableOffset64 sets the hash table offset
func (h *archiveHeader) setHashTableOffset64(offset uint64) {
	h.HashTableOffset = uint32(offset)
	h.HashTableOffsetHi = uint16(offset >> 32)
}

// setBlockTableOffset64 sets the block table offset
func (h *archiveHeader) setBlockTableOffset64(offset uint64) {
	h.BlockTableOffset = uint32(offset)
	h.BlockTableOffsetHi = uint16(offset >> 32)
}

// headerSizeForVersion returns the minimum header size a version requires.
func headerSizeForVersion(version uint16) uint32 {
	switch version {
	case formatVersion1:
		return headerSizeV1
	case formatVersion2:
		return headerSizeV2
	case formatVersion3:
		return headerSizeV3
	default:
		return headerSizeV4
	}
}

// readArchiveHeader reads the MPQ header from a reader positioned at the
// header start. Callers locate the header first (see findArchiveHeader).
func readArchiveHeader(r io.ReadSeeker) (*archiveHeader, error) {
	h := &archiveHeader{}

	if err := binary.Read(r, binary.LittleEndian, &h.baseHeader); err != nil {
		return nil, err
	}

	if h.Magic != mpqMagic {
		return nil, invalidFormatf("bad signature: 0x%08X", h.Magic)
	}
	if h.FormatVersion > formatVersion4 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.FormatVersion)
	}
	if h.HeaderSize < headerSizeForVersion(h.FormatVersion) {
		return nil, invalidFormatf("header size 0x%X too small for version %d",
			h.HeaderSize, h.FormatVersion+1)
	}

	if h.FormatVersion >= formatVersion2 {
		if err := binary.Read(r, binary.LittleEndian, &h.extendedHeader); err != nil {
			return nil, err
		}
	}

	if h.FormatVersion >= formatVersion3 {
		if err := binary.Read(r, binary.LittleEndian, &h.v3Header); err != nil {
			return nil, err
		}
	}

	// Some V3 archives carry a 208-byte header with V4 data.
	if h.FormatVersion >= formatVersion3 && h.HeaderSize >= headerSizeV4 {
		if err := binary.Read(r, binary.LittleEndian, &h.v4Header); err != nil {
			return nil, err
		}
	}

	return h, nil
}

// findArchiveHeader reads the MPQ header, skipping the optional user data
// block ("MPQ\x1B") that precedes it in SC2-style archives.
func findArchiveHeader(r io.ReadSeeker) (*archiveHeader, error) {
	var magic uint32
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return nil, err
	}

	var archiveOffset uint64
	if magic == userDataMagic {
		var userDataSize, headerOffset uint32
		if err := binary.Read(r, binary.LittleEndian, &userDataSize); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &headerOffset); err != nil {
			return nil, err
		}
		archiveOffset = uint64(headerOffset)
	}

	if _, err := r.Seek(int64(archiveOffset), io.SeekStart); err != nil {
		return nil, err
	}
	h, err := readArchiveHeader(r)
	if err != nil {
		return nil, err
	}
	h.ArchiveOffset = archiveOffset
	return h, nil
}

// writeArchiveHeader writes the MPQ header to a writer
func writeArchiveHeader(w io.Writer, h *archiveHeader) error {
	if err := binary.Write(w, binary.LittleEndian, &h.baseHeader); err != nil {
		return err
	}
	if h.FormatVersion >= formatVersion2 {
		if err := binary.Write(w, binary.LittleEndian, &h.extendedHeader); err != nil {
			return err
		}
	}
	if h.FormatVersion >= formatVersion3 {
		if err := binary.Write(w, binary.LittleEndian, &h.v3Header); err != nil {
			return err
		}
	}
	if h.FormatVersion >= formatVersion3 && h.HeaderSize >= headerSizeV4 {
		if err := binary.Write(w, binary.LittleEndian, &h.v4Header); err != nil {
			return err
		}
	}
	return nil
}

// readUint32Array reads an array of uint32 values
func readUint32Array(r io.Reader, data []uint32) error {
	return binary.Read(r, binary.LittleEndian, data)
}

// readUint16Array reads an array of uint16 values
func readUint16Array(r io.Reader, data []uint16) error {
	return binary.Read(r, binary.LittleEndian, data)
}

// writeUint32Array writes an array of uint32 values
func writeUint32Array(w io.Writer, data []uint32) error {
	return binary.Write(w, binary.LittleEndian, data)
}

// writeUint16Array writes an array of uint16 values
func writeUint16Array(w io.Writer, data []uint16) error {
	return binary.Write(w, binary.LittleEndian, data)
}
