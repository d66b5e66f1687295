// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"bytes"
	"crypto/md5"
	"fmt"
	"os"
	"strings"
)

// MutableArchive opens an existing archive for in-place modification.
// Added file data is appended and the tables are rewritten behind it on
// Flush; removed entries leave holes until Compact rewrites the archive.
type MutableArchive struct {
	a         *Archive
	endOfData uint64 // archive-relative offset where appends go
	names     map[uint32]string
	dirty     bool
}

// OpenMutable opens an archive for modification. The archive must carry
// classic hash and block tables.
func OpenMutable(path string) (*MutableArchive, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	a, err := newArchive(file, path)
	if err != nil {
		file.Close()
		return nil, err
	}
	if a.hashTable == nil || a.blockTable == nil {
		a.Close()
		return nil, fmt.Errorf("%w: modification requires classic tables", ErrUnsupportedVersion)
	}

	m := &MutableArchive{
		a:     a,
		names: make(map[uint32]string),
	}
	m.endOfData = m.archiveEnd()

	// Resolve names up front; they are needed to rewrite (listfile) and
	// the HET/BET pair.
	if names, err := a.ListFiles(); err == nil {
		for _, name := range names {
			if index, ok := m.blockIndexOf(name); ok {
				m.names[index] = name
			}
		}
	}
	return m, nil
}

// archiveEnd returns the archive-relative offset one past the last stored
// byte, tables included. Appends go there, never over the live tables, so
// an operation that fails midway leaves the archive readable exactly as it
// was. The superseded table region becomes a hole that Compact reclaims.
func (m *MutableArchive) archiveEnd() uint64 {
	h := m.a.header
	end := uint64(h.ArchiveSize)
	if h.ArchiveSize64 != 0 {
		end = h.ArchiveSize64
	}
	spans := []struct{ off, size uint64 }{
		{h.getHashTableOffset64(), m.a.hashTable.sizeInBytes()},
		{h.getBlockTableOffset64(), m.a.blockTable.sizeInBytes()},
		{h.HiBlockTableOffset64, uint64(h.BlockTableSize) * 2},
		{h.HetTableOffset, h.HetTableSize64},
		{h.BetTableOffset, h.BetTableSize64},
	}
	for _, s := range spans {
		if s.off != 0 && s.off+s.size > end {
			end = s.off + s.size
		}
	}
	return end
}

// writable rejects modification through a closed handle.
func (m *MutableArchive) writable() error {
	if m.a == nil || m.a.file == nil {
		return fmt.Errorf("%w: handle is closed", ErrReadOnly)
	}
	return nil
}

// blockIndexOf resolves a name through the classic hash table.
func (m *MutableArchive) blockIndexOf(mpqPath string) (uint32, bool) {
	mpqPath = strings.ReplaceAll(mpqPath, "/", "\\")
	slot, ok := m.a.hashTable.find(mpqPath, m.a.locale)
	if !ok {
		return 0, false
	}
	return m.a.hashTable.entries[slot].BlockIndex, true
}

// Archive exposes the underlying read handle. It reflects unsaved
// modifications since the tables are shared.
func (m *MutableArchive) Archive() *Archive { return m.a }

// HasFile reports whether the archive currently contains the file.
func (m *MutableArchive) HasFile(mpqPath string) bool { return m.a.HasFile(mpqPath) }

// ReadFile reads a file, including ones added but not yet flushed.
func (m *MutableArchive) ReadFile(mpqPath string) ([]byte, error) {
	return m.a.ReadFile(mpqPath)
}

// AddFile adds a file to the archive. Without opts.Replace an existing
// entry under the same name is an error.
func (m *MutableArchive) AddFile(mpqPath string, data []byte, opts AddFileOptions) error {
	if err := m.writable(); err != nil {
		return err
	}
	mpqPath = strings.ReplaceAll(mpqPath, "/", "\\")

	if _, exists := m.blockIndexOf(mpqPath); exists {
		if !opts.Replace {
			return fileExistsf(mpqPath)
		}
		if err := m.RemoveFile(mpqPath); err != nil {
			return err
		}
	}

	flags := uint32(fileExists)
	if opts.Encrypt || opts.FixKey {
		flags |= fileEncrypted
	}
	if opts.FixKey {
		flags |= fileFixKey
	}
	if opts.SingleUnit {
		flags |= fileSingleUnit
	} else if opts.SectorCRC {
		flags |= fileSectorCRC
	}

	methods := opts.Compression
	if opts.Store {
		methods = CompressionNone
	} else if methods == CompressionNone {
		methods = CompressionZlib
	}

	filePos := m.endOfData
	stored, finalFlags, err := buildFileData(data, mpqPath, filePos, flags, methods, m.a.sectorSize)
	if err != nil {
		return fmt.Errorf("pack file %s: %w", mpqPath, err)
	}
	if _, err := m.a.file.WriteAt(stored, int64(m.a.header.ArchiveOffset+filePos)); err != nil {
		return fmt.Errorf("write file data: %w", err)
	}

	// The hash insert can fail on a full table; doing it before the block
	// append keeps the in-memory tables consistent when it does. The data
	// already written sits past the live region and is harmless.
	blockIndex := m.a.blockTable.size()
	if _, err := m.a.hashTable.insert(mpqPath, opts.Locale, blockIndex); err != nil {
		return err
	}
	m.a.blockTable.entries = append(m.a.blockTable.entries, blockEntry{
		FilePos:        uint32(filePos),
		CompressedSize: uint32(len(stored)),
		FileSize:       uint32(len(data)),
		Flags:          finalFlags,
	})

	m.names[blockIndex] = mpqPath
	m.endOfData = filePos + uint64(len(stored))
	m.a.listCache = nil
	m.dirty = true
	return nil
}

// RemoveFile removes a file. The hash table slot becomes a tombstone so
// longer probe chains keep working; the data itself stays until Compact.
func (m *MutableArchive) RemoveFile(mpqPath string) error {
	if err := m.writable(); err != nil {
		return err
	}
	mpqPath = strings.ReplaceAll(mpqPath, "/", "\\")

	blockIndex, err := m.a.hashTable.remove(mpqPath, m.a.locale)
	if err != nil {
		return err
	}
	if block, err := m.a.blockTable.get(blockIndex); err == nil {
		block.Flags = 0
	}

	delete(m.names, blockIndex)
	m.a.listCache = nil
	m.dirty = true
	return nil
}

// AddDeleteMarker records that a file is deleted, for patch archives: a
// zero-length entry whose delete flag hides the name from lower-priority
// archives in a patch chain. Any existing entry is replaced.
func (m *MutableArchive) AddDeleteMarker(mpqPath string) error {
	if err := m.writable(); err != nil {
		return err
	}
	mpqPath = strings.ReplaceAll(mpqPath, "/", "\\")

	if _, exists := m.blockIndexOf(mpqPath); exists {
		if err := m.RemoveFile(mpqPath); err != nil {
			return err
		}
	}

	blockIndex := m.a.blockTable.size()
	if _, err := m.a.hashTable.insert(mpqPath, m.a.locale, blockIndex); err != nil {
		return err
	}
	m.a.blockTable.entries = append(m.a.blockTable.entries, blockEntry{
		Flags: fileExists | fileDeleteMarker,
	})

	m.names[blockIndex] = mpqPath
	m.a.listCache = nil
	m.dirty = true
	return nil
}

// RenameFile renames a file. Plain entries just move their hash slot;
// encrypted files are re-added because their keys derive from the name.
func (m *MutableArchive) RenameFile(oldPath, newPath string) error {
	if err := m.writable(); err != nil {
		return err
	}
	oldPath = strings.ReplaceAll(oldPath, "/", "\\")
	newPath = strings.ReplaceAll(newPath, "/", "\\")

	blockIndex, ok := m.blockIndexOf(oldPath)
	if !ok {
		return fileNotFoundf(oldPath)
	}
	if _, exists := m.blockIndexOf(newPath); exists {
		return fileExistsf(newPath)
	}

	block, err := m.a.blockTable.get(blockIndex)
	if err != nil {
		return err
	}

	if block.isEncrypted() {
		data, err := m.a.ReadFile(oldPath)
		if err != nil {
			return err
		}
		opts := AddFileOptions{
			Encrypt:    true,
			FixKey:     block.Flags&fileFixKey != 0,
			SingleUnit: block.isSingleUnit(),
			SectorCRC:  block.hasSectorCRC(),
		}
		if err := m.RemoveFile(oldPath); err != nil {
			return err
		}
		return m.AddFile(newPath, data, opts)
	}

	if _, err := m.a.hashTable.remove(oldPath, m.a.locale); err != nil {
		return err
	}
	if _, err := m.a.hashTable.insert(newPath, m.a.locale, blockIndex); err != nil {
		return err
	}

	m.names[blockIndex] = newPath
	m.a.listCache = nil
	m.dirty = true
	return nil
}

// Flush rewrites the (listfile), the tables and the header to reflect
// all modifications.
func (m *MutableArchive) Flush() error {
	if !m.dirty {
		return nil
	}
	if err := m.writable(); err != nil {
		return err
	}

	// Rewrite (listfile) first so it lands in the tables like any file.
	if _, had := m.blockIndexOf(listfileName); had || len(m.names) > 0 {
		var names []string
		for index, name := range m.names {
			if name == listfileName {
				continue
			}
			if block, err := m.a.blockTable.get(index); err != nil || !block.exists() {
				continue
			}
			names = append(names, name)
		}
		names = append(names, listfileName)

		if _, exists := m.blockIndexOf(listfileName); exists {
			if err := m.RemoveFile(listfileName); err != nil {
				return err
			}
		}
		if err := m.AddFile(listfileName, buildListfile(names), AddFileOptions{}); err != nil {
			return err
		}
	}

	file := m.a.file
	h := m.a.header
	base := m.a.header.ArchiveOffset
	pos := m.endOfData

	// V3+ archives get their HET/BET pair rebuilt from the tracked
	// names; the classic pair follows, matching the table order new
	// archives use.
	if h.FormatVersion >= formatVersion3 {
		entries, names := m.liveEntries()
		het, err := buildHetTable(names)
		if err != nil {
			return err
		}
		hetData, err := het.encode()
		if err != nil {
			return err
		}
		bet, err := buildBetTable(entries, names)
		if err != nil {
			return err
		}
		betData, err := bet.encode()
		if err != nil {
			return err
		}

		if _, err := file.WriteAt(hetData, int64(base+pos)); err != nil {
			return err
		}
		h.HetTableOffset = pos
		h.HetTableSize64 = uint64(len(hetData))
		h.MD5HetTable = md5.Sum(hetData)
		pos += uint64(len(hetData))

		if _, err := file.WriteAt(betData, int64(base+pos)); err != nil {
			return err
		}
		h.BetTableOffset = pos
		h.BetTableSize64 = uint64(len(betData))
		h.MD5BetTable = md5.Sum(betData)
		pos += uint64(len(betData))
	}

	var hashBuf bytes.Buffer
	if err := m.a.hashTable.write(&hashBuf); err != nil {
		return err
	}
	if _, err := file.WriteAt(hashBuf.Bytes(), int64(base+pos)); err != nil {
		return err
	}
	h.setHashTableOffset64(pos)
	pos += uint64(hashBuf.Len())

	var blockBuf bytes.Buffer
	if err := m.a.blockTable.write(&blockBuf); err != nil {
		return err
	}
	if _, err := file.WriteAt(blockBuf.Bytes(), int64(base+pos)); err != nil {
		return err
	}
	h.setBlockTableOffset64(pos)
	h.BlockTableSize = m.a.blockTable.size()
	pos += uint64(blockBuf.Len())

	// In-place appends stay under 4GB, so no hi-block table.
	h.HiBlockTableOffset64 = 0
	m.a.hiBlock = nil

	h.ArchiveSize = uint32(pos)
	if h.FormatVersion >= formatVersion3 {
		h.ArchiveSize64 = pos
	}
	if h.FormatVersion >= formatVersion3 && h.HeaderSize >= headerSizeV4 {
		h.HashTableSize64 = m.a.hashTable.sizeInBytes()
		h.BlockTableSize64 = m.a.blockTable.sizeInBytes()
		h.HiBlockTableSize64 = 0
		h.MD5HashTable = md5.Sum(hashBuf.Bytes())
		h.MD5BlockTable = md5.Sum(blockBuf.Bytes())

		var hb bytes.Buffer
		if err := writeArchiveHeader(&hb, h); err != nil {
			return err
		}
		h.MD5Header = md5.Sum(hb.Bytes()[:headerSizeV4-16])
	}

	var headerBuf bytes.Buffer
	if err := writeArchiveHeader(&headerBuf, h); err != nil {
		return err
	}
	if _, err := file.WriteAt(headerBuf.Bytes(), int64(base)); err != nil {
		return err
	}
	if err := file.Truncate(int64(base + pos)); err != nil {
		return err
	}

	// Reload the extended tables so reads see the rebuilt pair.
	if h.FormatVersion >= formatVersion3 {
		if err := m.a.readExtendedTables(); err != nil {
			return err
		}
	}

	// Later appends go after the tables just written.
	m.endOfData = pos
	m.dirty = false
	return nil
}

// liveEntries collects the existing block entries with known names,
// index-aligned, for HET/BET rebuilding.
func (m *MutableArchive) liveEntries() ([]blockEntry, []string) {
	var entries []blockEntry
	var names []string
	for index, name := range m.names {
		block, err := m.a.blockTable.get(index)
		if err != nil || !block.exists() {
			continue
		}
		entries = append(entries, *block)
		names = append(names, name)
	}
	return entries, names
}

// Compact rewrites the archive without the holes left by removals and
// replacements. The rewrite goes to a temp file that atomically replaces
// the original; the handle then reopens onto the new file.
func (m *MutableArchive) Compact() error {
	if err := m.writable(); err != nil {
		return err
	}
	if err := m.Flush(); err != nil {
		return err
	}

	version := FormatVersion(m.a.header.FormatVersion)
	w, err := CreateWithOptions(m.a.path, WriterOptions{
		Version:          version,
		SectorSizeShift:  m.a.header.SectorSizeShift,
		Compression:      CompressionZlib,
		GenerateListfile: true,
		AttributesFlags:  AttributesCRC32,
	})
	if err != nil {
		return err
	}

	for index, name := range m.names {
		if name == listfileName || name == attributesName {
			continue
		}
		block, err := m.a.blockTable.get(index)
		if err != nil || !block.exists() {
			continue
		}
		data, err := m.a.ReadFile(name)
		if err != nil {
			w.Close()
			return fmt.Errorf("compact: read %s: %w", name, err)
		}
		opts := AddFileOptions{
			Encrypt:    block.isEncrypted(),
			FixKey:     block.Flags&fileFixKey != 0,
			SingleUnit: block.isSingleUnit(),
			SectorCRC:  block.hasSectorCRC(),
		}
		if err := w.AddFileData(name, data, opts); err != nil {
			w.Close()
			return fmt.Errorf("compact: add %s: %w", name, err)
		}
	}

	path := m.a.path
	if err := m.a.Close(); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	reopened, err := OpenMutable(path)
	if err != nil {
		return err
	}
	*m = *reopened
	return nil
}

// Close flushes pending modifications and closes the file.
func (m *MutableArchive) Close() error {
	if err := m.Flush(); err != nil {
		m.a.Close()
		return err
	}
	return m.a.Close()
}
