// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"encoding/binary"
	"errors"
)

const (
	attributesVersion = 100

	attributesFlagCRC32    = 0x00000001
	attributesFlagFiletime = 0x00000002
	attributesFlagMD5      = 0x00000004
)

// Attributes holds the per-file metadata stored in (attributes): parallel
// arrays indexed by block table position. Absent arrays are nil.
type Attributes struct {
	Version   uint32
	Flags     uint32
	Crc32s    []uint32
	Filetimes []uint64 // Windows FILETIME
	MD5s      [][16]byte
}

// parseAttributes decodes an (attributes) file covering fileCount block
// entries.
func parseAttributes(data []byte, fileCount int) (*Attributes, error) {
	if len(data) < 8 {
		return nil, invalidFormatf("attributes file too small: %d bytes", len(data))
	}

	at := &Attributes{
		Version: binary.LittleEndian.Uint32(data[0:4]),
		Flags:   binary.LittleEndian.Uint32(data[4:8]),
	}
	offset := 8

	if at.Flags&attributesFlagCRC32 != 0 {
		need := fileCount * 4
		if len(data) < offset+need {
			return nil, invalidFormatf("attributes CRC32 array truncated")
		}
		at.Crc32s = make([]uint32, fileCount)
		for i := range at.Crc32s {
			at.Crc32s[i] = binary.LittleEndian.Uint32(data[offset+i*4:])
		}
		offset += need
	}

	if at.Flags&attributesFlagFiletime != 0 {
		need := fileCount * 8
		if len(data) < offset+need {
			return nil, invalidFormatf("attributes filetime array truncated")
		}
		at.Filetimes = make([]uint64, fileCount)
		for i := range at.Filetimes {
			at.Filetimes[i] = binary.LittleEndian.Uint64(data[offset+i*8:])
		}
		offset += need
	}

	if at.Flags&attributesFlagMD5 != 0 {
		need := fileCount * 16
		if len(data) < offset+need {
			return nil, invalidFormatf("attributes MD5 array truncated")
		}
		at.MD5s = make([][16]byte, fileCount)
		for i := range at.MD5s {
			copy(at.MD5s[i][:], data[offset+i*16:offset+(i+1)*16])
		}
	}

	return at, nil
}

// encode renders the attributes back into (attributes) file contents.
func (at *Attributes) encode() []byte {
	size := 8 + len(at.Crc32s)*4 + len(at.Filetimes)*8 + len(at.MD5s)*16
	data := make([]byte, size)
	binary.LittleEndian.PutUint32(data[0:4], at.Version)
	binary.LittleEndian.PutUint32(data[4:8], at.Flags)

	offset := 8
	for _, v := range at.Crc32s {
		binary.LittleEndian.PutUint32(data[offset:], v)
		offset += 4
	}
	for _, v := range at.Filetimes {
		binary.LittleEndian.PutUint64(data[offset:], v)
		offset += 8
	}
	for i := range at.MD5s {
		copy(data[offset:], at.MD5s[i][:])
		offset += 16
	}
	return data
}

// Attributes reads and parses the (attributes) special file. Returns
// nil with no error when the archive has none.
func (a *Archive) Attributes() (*Attributes, error) {
	data, err := a.ReadFile(attributesName)
	if err != nil {
		if errors.Is(err, ErrFileNotFound) {
			return nil, nil
		}
		return nil, err
	}

	count := a.blockCount()
	at, err := parseAttributes(data, count)
	if err != nil {
		// Some tools write attributes without counting the attributes
		// file itself; retry with one entry fewer.
		if count > 0 {
			if at2, err2 := parseAttributes(data, count-1); err2 == nil {
				return at2, nil
			}
		}
		return nil, err
	}
	return at, nil
}

// blockCount reports the number of block entries attributes arrays cover.
func (a *Archive) blockCount() int {
	if a.blockTable != nil {
		return int(a.blockTable.size())
	}
	if a.bet != nil {
		return int(a.bet.header.FileCount)
	}
	return 0
}

// attributesWriter accumulates per-file metadata while an archive is
// being written, indexed by block table position.
type attributesWriter struct {
	flags     uint32
	crc32s    []uint32
	filetimes []uint64
	md5s      [][16]byte
}

func newAttributesWriter(fileCount int, flags uint32) *attributesWriter {
	w := &attributesWriter{flags: flags}
	if flags&attributesFlagCRC32 != 0 {
		w.crc32s = make([]uint32, fileCount)
	}
	if flags&attributesFlagFiletime != 0 {
		w.filetimes = make([]uint64, fileCount)
	}
	if flags&attributesFlagMD5 != 0 {
		w.md5s = make([][16]byte, fileCount)
	}
	return w
}

// setEntry records metadata for the file at a block index. A nil data
// slice leaves zero placeholders, used for the attributes file itself.
func (w *attributesWriter) setEntry(index int, data []byte, filetime uint64) {
	if data != nil {
		if w.crc32s != nil && index < len(w.crc32s) {
			w.crc32s[index] = fileCrc32(data)
		}
		if w.md5s != nil && index < len(w.md5s) {
			w.md5s[index] = tableMD5(data)
		}
	}
	if w.filetimes != nil && index < len(w.filetimes) {
		w.filetimes[index] = filetime
	}
}

func (w *attributesWriter) build() []byte {
	at := &Attributes{
		Version:   attributesVersion,
		Flags:     w.flags,
		Crc32s:    w.crc32s,
		Filetimes: w.filetimes,
		MD5s:      w.md5s,
	}
	return at.encode()
}
