// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"bytes"
	"io"
)

// fileRecord is the version-neutral view of a stored file that the read
// and write paths work with, whether it came from the classic block table
// or from BET.
type fileRecord struct {
	FilePos        uint64 // Relative to the archive start
	CompressedSize uint64
	FileSize       uint64
	Flags          uint32
}

func (r *fileRecord) isCompressed() bool { return r.Flags&(fileCompress|fileImplode) != 0 }
func (r *fileRecord) isEncrypted() bool  { return r.Flags&fileEncrypted != 0 }
func (r *fileRecord) isSingleUnit() bool { return r.Flags&fileSingleUnit != 0 }

// readFileData reads and unpacks one file's data. filename is needed for
// the decryption key of encrypted files; archiveOffset is the absolute
// position of the MPQ header.
func readFileData(r io.ReadSeeker, archiveOffset uint64, sectorSize uint32,
	rec fileRecord, filename string) ([]byte, error) {

	if rec.FileSize == 0 {
		return []byte{}, nil
	}

	if _, err := r.Seek(int64(archiveOffset+rec.FilePos), io.SeekStart); err != nil {
		return nil, err
	}
	raw := make([]byte, rec.CompressedSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, err
	}

	var key uint32
	if rec.isEncrypted() {
		key = getFileKey(filename, rec.FilePos, uint32(rec.FileSize), rec.Flags)
	}

	switch {
	case rec.isSingleUnit():
		return readSingleUnit(raw, rec, key)
	case !rec.isCompressed():
		if rec.isEncrypted() {
			decryptFixedSectors(raw, sectorSize, key)
		}
		if uint64(len(raw)) > rec.FileSize {
			raw = raw[:rec.FileSize]
		}
		return raw, nil
	default:
		return readSectored(raw, rec, sectorSize, key)
	}
}

// readSingleUnit unpacks a file stored as one block: decrypt the whole
// block, then decompress when the stored size says it shrank.
func readSingleUnit(raw []byte, rec fileRecord, key uint32) ([]byte, error) {
	if rec.isEncrypted() {
		decryptBytes(raw, key)
	}
	if !rec.isCompressed() || rec.CompressedSize >= rec.FileSize {
		if uint64(len(raw)) > rec.FileSize {
			raw = raw[:rec.FileSize]
		}
		return raw, nil
	}
	if rec.Flags&fileImplode != 0 && rec.Flags&fileCompress == 0 {
		return decompressImploded(raw, uint32(rec.FileSize))
	}
	return decompressData(raw, uint32(rec.FileSize))
}

// decryptFixedSectors decrypts an uncompressed sectored file in place.
// With no offset table, sector boundaries fall at sectorSize intervals and
// sector i uses key+i.
func decryptFixedSectors(raw []byte, sectorSize uint32, key uint32) {
	for i := 0; uint32(i)*sectorSize < uint32(len(raw)); i++ {
		start := uint32(i) * sectorSize
		end := start + sectorSize
		if end > uint32(len(raw)) {
			end = uint32(len(raw))
		}
		decryptBytes(raw[start:end], key+uint32(i))
	}
}

// readSectored unpacks a multi-sector compressed file: sector offset
// table first (encrypted with key-1), then each sector with key+i. A
// stored sector shorter than its expected output is compressed.
func readSectored(raw []byte, rec fileRecord, sectorSize uint32, key uint32) ([]byte, error) {
	numSectors := int((rec.FileSize + uint64(sectorSize) - 1) / uint64(sectorSize))
	offsetTableSize := (numSectors + 1) * 4
	if len(raw) < offsetTableSize {
		return nil, invalidFormatf("file data too small for sector offset table")
	}

	offsetData := make([]byte, offsetTableSize)
	copy(offsetData, raw[:offsetTableSize])
	if rec.isEncrypted() {
		decryptBytes(offsetData, key-1)
	}
	offsets := make([]uint32, numSectors+1)
	if err := readUint32Array(bytes.NewReader(offsetData), offsets); err != nil {
		return nil, err
	}

	// A gap between the offset table and the first sector means a
	// checksum table sits there, one adler32 per sector.
	var checksums []uint32
	if rec.Flags&fileSectorCRC != 0 {
		crcTableSize := numSectors * 4
		if int(offsets[0]) >= offsetTableSize+crcTableSize &&
			offsetTableSize+crcTableSize <= len(raw) {
			crcData := make([]byte, crcTableSize)
			copy(crcData, raw[offsetTableSize:offsetTableSize+crcTableSize])
			if rec.isEncrypted() {
				decryptBytes(crcData, key-1+uint32(numSectors))
			}
			checksums = make([]uint32, numSectors)
			if err := readUint32Array(bytes.NewReader(crcData), checksums); err != nil {
				return nil, err
			}
		}
	}

	result := make([]byte, 0, rec.FileSize)
	for i := 0; i < numSectors; i++ {
		start, end := offsets[i], offsets[i+1]
		if start > uint32(len(raw)) || end > uint32(len(raw)) || end < start {
			return nil, invalidFormatf("invalid sector offsets %d..%d", start, end)
		}

		sector := make([]byte, end-start)
		copy(sector, raw[start:end])
		if rec.isEncrypted() {
			decryptBytes(sector, key+uint32(i))
		}

		expected := sectorSize
		remaining := rec.FileSize - uint64(len(result))
		if remaining < uint64(expected) {
			expected = uint32(remaining)
		}

		// Checksums cover the stored bytes, after decryption and before
		// decompression.
		if checksums != nil {
			if got := sectorChecksum(sector); got != checksums[i] {
				return nil, checksumf("sector %d: adler32 %08X, stored %08X", i, got, checksums[i])
			}
		}

		if uint32(len(sector)) < expected {
			var err error
			if rec.Flags&fileImplode != 0 && rec.Flags&fileCompress == 0 {
				sector, err = decompressImploded(sector, expected)
			} else {
				sector, err = decompressData(sector, expected)
			}
			if err != nil {
				return nil, compressionf("sector %d: %v", i, err)
			}
		}
		result = append(result, sector...)
	}

	if uint64(len(result)) != rec.FileSize {
		return nil, invalidFormatf("unpacked %d bytes, expected %d", len(result), rec.FileSize)
	}
	return result, nil
}

// buildFileData packs file contents for writing at filePos. It returns the
// raw bytes to store and the final flags, which may differ from the
// requested ones when compression did not pay off.
func buildFileData(data []byte, filename string, filePos uint64,
	flags uint32, methods byte, sectorSize uint32) ([]byte, uint32, error) {

	if methods == CompressionNone {
		flags &^= fileCompress
	} else {
		flags |= fileCompress
	}
	flags &^= fileImplode

	var key uint32
	if flags&fileEncrypted != 0 {
		key = getFileKey(filename, filePos, uint32(len(data)), flags)
	}

	if flags&fileSingleUnit != 0 {
		return buildSingleUnit(data, flags, methods, key)
	}
	if flags&fileCompress == 0 {
		out := make([]byte, len(data))
		copy(out, data)
		if flags&fileEncrypted != 0 {
			encryptFixedSectors(out, sectorSize, key)
		}
		return out, flags, nil
	}
	return buildSectored(data, flags, methods, sectorSize, key)
}

func buildSingleUnit(data []byte, flags uint32, methods byte, key uint32) ([]byte, uint32, error) {
	stored := data
	if flags&fileCompress != 0 {
		compressed, err := compressData(data, methods)
		if err != nil {
			return nil, 0, err
		}
		if len(compressed) >= len(data) {
			flags &^= fileCompress
		} else {
			stored = compressed
		}
	}
	out := make([]byte, len(stored))
	copy(out, stored)
	if flags&fileEncrypted != 0 {
		encryptBytes(out, key)
	}
	return out, flags, nil
}

func encryptFixedSectors(raw []byte, sectorSize uint32, key uint32) {
	for i := 0; uint32(i)*sectorSize < uint32(len(raw)); i++ {
		start := uint32(i) * sectorSize
		end := start + sectorSize
		if end > uint32(len(raw)) {
			end = uint32(len(raw))
		}
		encryptBytes(raw[start:end], key+uint32(i))
	}
}

func buildSectored(data []byte, flags uint32, methods byte,
	sectorSize uint32, key uint32) ([]byte, uint32, error) {

	numSectors := (len(data) + int(sectorSize) - 1) / int(sectorSize)
	if numSectors == 0 {
		numSectors = 1
	}

	sectors := make([][]byte, numSectors)
	for i := 0; i < numSectors; i++ {
		start := i * int(sectorSize)
		end := start + int(sectorSize)
		if end > len(data) {
			end = len(data)
		}
		compressed, err := compressData(data[start:end], methods)
		if err != nil {
			return nil, 0, err
		}
		sectors[i] = compressed
	}

	withCRC := flags&fileSectorCRC != 0
	offsetTableSize := (numSectors + 1) * 4
	crcTableSize := 0
	if withCRC {
		crcTableSize = numSectors * 4
	}

	offsets := make([]uint32, numSectors+1)
	pos := uint32(offsetTableSize + crcTableSize)
	for i, s := range sectors {
		offsets[i] = pos
		pos += uint32(len(s))
	}
	offsets[numSectors] = pos

	var buf bytes.Buffer
	buf.Grow(int(pos))

	offsetData := make([]byte, 0, offsetTableSize)
	ob := bytes.NewBuffer(offsetData)
	if err := writeUint32Array(ob, offsets); err != nil {
		return nil, 0, err
	}
	offsetBytes := ob.Bytes()
	if flags&fileEncrypted != 0 {
		encryptBytes(offsetBytes, key-1)
	}
	buf.Write(offsetBytes)

	if withCRC {
		checksums := make([]uint32, numSectors)
		for i, s := range sectors {
			checksums[i] = sectorChecksum(s)
		}
		cb := &bytes.Buffer{}
		if err := writeUint32Array(cb, checksums); err != nil {
			return nil, 0, err
		}
		crcBytes := cb.Bytes()
		if flags&fileEncrypted != 0 {
			encryptBytes(crcBytes, key-1+uint32(numSectors))
		}
		buf.Write(crcBytes)
	}

	for i, s := range sectors {
		sector := make([]byte, len(s))
		copy(sector, s)
		if flags&fileEncrypted != 0 {
			encryptBytes(sector, key+uint32(i))
		}
		buf.Write(sector)
	}

	return buf.Bytes(), flags, nil
}
