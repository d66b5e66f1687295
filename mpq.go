// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// FormatVersion specifies which MPQ format version to use when creating
// archives.
type FormatVersion int

const (
	// FormatV1 creates archives using the original MPQ format (up to 4GB).
	// Compatible with all games that use MPQ.
	FormatV1 FormatVersion = 0

	// FormatV2 creates archives using the extended format (>4GB support).
	// Compatible with WoW: The Burning Crusade and later.
	FormatV2 FormatVersion = 1

	// FormatV3 adds HET/BET lookup tables (Cataclysm beta).
	FormatV3 FormatVersion = 2

	// FormatV4 adds MD5 digests over the tables and header.
	FormatV4 FormatVersion = 3
)

// Archive is a read-only handle to an MPQ archive. It is not safe for
// concurrent use; open one handle per goroutine (see ExtractAll).
type Archive struct {
	file       *os.File
	path       string
	header     *archiveHeader
	hashTable  *hashTable
	blockTable *blockTable
	hiBlock    []uint16
	het        *hetTable
	bet        *betTable
	sectorSize uint32
	locale     uint16

	// listCache holds the resolved listing, filled on first ListFiles call.
	listCache []string
}

// Open opens an existing MPQ archive for reading. All four format
// versions are supported; a user data block before the header is skipped.
func Open(path string) (*Archive, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	a, err := newArchive(file, path)
	if err != nil {
		file.Close()
		return nil, err
	}
	return a, nil
}

func newArchive(file *os.File, path string) (*Archive, error) {
	header, err := findArchiveHeader(file)
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	a := &Archive{
		file:       file,
		path:       path,
		header:     header,
		sectorSize: 512 << header.SectorSizeShift,
		locale:     localeNeutral,
	}

	if err := a.readClassicTables(); err != nil {
		return nil, err
	}
	if header.FormatVersion >= formatVersion3 {
		if err := a.readExtendedTables(); err != nil {
			return nil, err
		}
	}

	if a.hashTable == nil && a.het == nil {
		return nil, invalidFormatf("archive has no file tables")
	}
	return a, nil
}

// readClassicTables loads the hash and block tables plus the V2 hi-block
// table. V4 archives carry MD5 digests over the stored table bytes, which
// are verified before decryption.
func (a *Archive) readClassicTables() error {
	h := a.header

	if h.HashTableSize > 0 && h.getHashTableOffset64() != 0 {
		size := uint64(h.HashTableSize) * hashEntrySize
		if h.HashTableSize64 != 0 && h.HashTableSize64 < size {
			return fmt.Errorf("%w: compressed hash table", ErrUnsupportedVersion)
		}
		raw, err := a.readRaw(h.getHashTableOffset64(), size)
		if err != nil {
			return fmt.Errorf("read hash table: %w", err)
		}
		if !verifyTableMD5(raw, h.MD5HashTable) {
			return checksumf("hash table MD5")
		}
		ht, err := readHashTable(raw, h.HashTableSize)
		if err != nil {
			return err
		}
		a.hashTable = ht
	}

	if h.BlockTableSize > 0 && h.getBlockTableOffset64() != 0 {
		size := uint64(h.BlockTableSize) * blockEntrySize
		if h.BlockTableSize64 != 0 && h.BlockTableSize64 < size {
			return fmt.Errorf("%w: compressed block table", ErrUnsupportedVersion)
		}
		raw, err := a.readRaw(h.getBlockTableOffset64(), size)
		if err != nil {
			return fmt.Errorf("read block table: %w", err)
		}
		if !verifyTableMD5(raw, h.MD5BlockTable) {
			return checksumf("block table MD5")
		}
		bt, err := readBlockTable(raw, h.BlockTableSize)
		if err != nil {
			return err
		}
		a.blockTable = bt
	}

	if h.FormatVersion >= formatVersion2 && h.HiBlockTableOffset64 != 0 {
		raw, err := a.readRaw(h.HiBlockTableOffset64, uint64(h.BlockTableSize)*2)
		if err != nil {
			return fmt.Errorf("read hi-block table: %w", err)
		}
		if !verifyTableMD5(raw, h.MD5HiBlockTable) {
			return checksumf("hi-block table MD5")
		}
		a.hiBlock = make([]uint16, h.BlockTableSize)
		if err := readUint16Array(bytes.NewReader(raw), a.hiBlock); err != nil {
			return err
		}
	}

	return nil
}

// readExtendedTables loads the HET and BET tables when the V3+ header
// points at them. A missing or unreadable pair is not fatal as long as the
// classic tables exist.
func (a *Archive) readExtendedTables() error {
	h := a.header

	hetSize := h.HetTableSize64
	betSize := h.BetTableSize64
	if hetSize == 0 && h.HetTableOffset != 0 {
		hetSize = a.extendedTableSpan(h.HetTableOffset)
	}
	if betSize == 0 && h.BetTableOffset != 0 {
		betSize = a.extendedTableSpan(h.BetTableOffset)
	}

	if h.HetTableOffset != 0 && hetSize > 0 {
		raw, err := a.readRaw(h.HetTableOffset, hetSize)
		if err != nil {
			return fmt.Errorf("read HET table: %w", err)
		}
		if !verifyTableMD5(raw, h.MD5HetTable) {
			return checksumf("HET table MD5")
		}
		het, err := readHetTable(raw)
		if err != nil {
			return err
		}
		a.het = het
	}

	if h.BetTableOffset != 0 && betSize > 0 {
		raw, err := a.readRaw(h.BetTableOffset, betSize)
		if err != nil {
			return fmt.Errorf("read BET table: %w", err)
		}
		if !verifyTableMD5(raw, h.MD5BetTable) {
			return checksumf("BET table MD5")
		}
		bet, err := readBetTable(raw)
		if err != nil {
			return err
		}
		a.bet = bet
	}

	return nil
}

// extendedTableSpan estimates a V3 table's stored size as the distance to
// whatever structure follows it. V3 headers do not record table sizes.
func (a *Archive) extendedTableSpan(offset uint64) uint64 {
	end := a.header.ArchiveSize64
	if end == 0 {
		end = uint64(a.header.ArchiveSize)
	}
	for _, candidate := range []uint64{
		a.header.HetTableOffset,
		a.header.BetTableOffset,
		a.header.getHashTableOffset64(),
		a.header.getBlockTableOffset64(),
		a.header.HiBlockTableOffset64,
	} {
		if candidate > offset && candidate < end {
			end = candidate
		}
	}
	if end <= offset {
		return 0
	}
	return end - offset
}

// readRaw reads size bytes at an archive-relative offset.
func (a *Archive) readRaw(offset, size uint64) ([]byte, error) {
	if _, err := a.file.Seek(int64(a.header.ArchiveOffset+offset), io.SeekStart); err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(a.file, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// SetLocale selects the locale used for hash table lookups. Entries with
// the neutral locale still match when no exact entry exists.
func (a *Archive) SetLocale(locale uint16) { a.locale = locale }

// Path returns the path the archive was opened from.
func (a *Archive) Path() string { return a.path }

// Version returns the archive's format version.
func (a *Archive) Version() FormatVersion { return FormatVersion(a.header.FormatVersion) }

// Close closes the archive file.
func (a *Archive) Close() error {
	if a.file != nil {
		err := a.file.Close()
		a.file = nil
		return err
	}
	return nil
}

// findRecord resolves a filename to its stored location. Delete markers
// count as absent; patch chains use findRecordRaw to see them.
func (a *Archive) findRecord(mpqPath string) (fileRecord, error) {
	rec, err := a.findRecordRaw(mpqPath)
	if err != nil {
		return fileRecord{}, err
	}
	if rec.Flags&fileDeleteMarker != 0 {
		return fileRecord{}, fileNotFoundf(mpqPath)
	}
	return rec, nil
}

// findRecordRaw resolves a filename without filtering delete markers,
// trying the HET/BET pair first and falling back to the classic tables.
func (a *Archive) findRecordRaw(mpqPath string) (fileRecord, error) {
	mpqPath = strings.ReplaceAll(mpqPath, "/", "\\")

	if a.het != nil && a.bet != nil {
		for _, index := range a.het.find(mpqPath) {
			if !a.bet.matchesName(index, mpqPath) {
				continue
			}
			info, ok := a.bet.fileInfo(index)
			if !ok {
				continue
			}
			return fileRecord{
				FilePos:        info.FilePos,
				CompressedSize: info.CompressedSize,
				FileSize:       info.FileSize,
				Flags:          info.Flags,
			}, nil
		}
	}

	if a.hashTable != nil && a.blockTable != nil {
		slot, ok := a.hashTable.find(mpqPath, a.locale)
		if ok {
			entry := &a.hashTable.entries[slot]
			block, err := a.blockTable.get(entry.BlockIndex)
			if err != nil {
				return fileRecord{}, err
			}
			if block.exists() {
				return fileRecord{
					FilePos:        filePos64(block, a.hiBlock, entry.BlockIndex),
					CompressedSize: uint64(block.CompressedSize),
					FileSize:       uint64(block.FileSize),
					Flags:          block.Flags,
				}, nil
			}
		}
	}

	// Placeholder names handed out by ListFiles resolve straight through
	// the table index they encode.
	if index, ok := parseAnonymousName(mpqPath); ok {
		if a.bet != nil {
			if info, ok := a.bet.fileInfo(index); ok && info.Flags&fileExists != 0 {
				return fileRecord{
					FilePos:        info.FilePos,
					CompressedSize: info.CompressedSize,
					FileSize:       info.FileSize,
					Flags:          info.Flags,
				}, nil
			}
		}
		if a.blockTable != nil {
			if block, err := a.blockTable.get(index); err == nil && block.exists() {
				return fileRecord{
					FilePos:        filePos64(block, a.hiBlock, index),
					CompressedSize: uint64(block.CompressedSize),
					FileSize:       uint64(block.FileSize),
					Flags:          block.Flags,
				}, nil
			}
		}
	}

	return fileRecord{}, fileNotFoundf(mpqPath)
}

// anonymousName is the placeholder for an entry whose real name no
// (listfile) recovers. The index is the block index for classic tables and
// the BET file index for extended ones.
func anonymousName(index uint32) string {
	return fmt.Sprintf("file_%08d.dat", index)
}

// parseAnonymousName recovers the table index from a placeholder name.
func parseAnonymousName(name string) (uint32, bool) {
	name = strings.ToLower(name)
	if len(name) != 17 || !strings.HasPrefix(name, "file_") || !strings.HasSuffix(name, ".dat") {
		return 0, false
	}
	index, err := strconv.ParseUint(name[5:13], 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(index), true
}

// HasFile returns true if the archive contains the specified file.
// The mpqPath is the path within the archive (use backslashes or forward
// slashes).
func (a *Archive) HasFile(mpqPath string) bool {
	_, err := a.findRecord(mpqPath)
	return err == nil
}

// ReadFile reads a file from the archive into memory, decrypting and
// decompressing as the block flags dictate.
func (a *Archive) ReadFile(mpqPath string) ([]byte, error) {
	mpqPath = strings.ReplaceAll(mpqPath, "/", "\\")

	rec, err := a.findRecord(mpqPath)
	if err != nil {
		return nil, err
	}
	data, err := readFileData(a.file, a.header.ArchiveOffset, a.sectorSize, rec, mpqPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", mpqPath, err)
	}
	return data, nil
}

// ExtractFile extracts a file from the archive to the specified
// destination, creating parent directories as needed.
func (a *Archive) ExtractFile(mpqPath, destPath string) error {
	data, err := a.ReadFile(mpqPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(destPath, data, 0644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

// FileEntry describes one file visible in the archive's listing.
type FileEntry struct {
	Name           string
	FileSize       uint64
	CompressedSize uint64
	Flags          uint32
	Locale         uint16
}

// ListFiles returns the names in the archive's (listfile), plus any
// special files present. Entries no listed name reaches are enumerated
// under placeholder names derived from their table index, so archives
// without a listfile stay fully enumerable.
func (a *Archive) ListFiles() ([]string, error) {
	if a.listCache != nil {
		out := make([]string, len(a.listCache))
		copy(out, a.listCache)
		return out, nil
	}

	seen := make(map[string]struct{})
	var names []string
	add := func(name string) {
		key := strings.ToLower(strings.ReplaceAll(name, "/", "\\"))
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		names = append(names, name)
	}

	if data, err := a.ReadFile(listfileName); err == nil {
		for _, name := range parseListfile(data) {
			if a.HasFile(name) {
				add(name)
			}
		}
	}
	for _, special := range []string{listfileName, attributesName, signatureName} {
		if a.HasFile(special) {
			add(special)
		}
	}

	if a.hashTable != nil && a.blockTable != nil {
		covered := make(map[uint32]bool)
		for _, name := range names {
			normalized := strings.ReplaceAll(name, "/", "\\")
			if slot, ok := a.hashTable.find(normalized, a.locale); ok {
				covered[a.hashTable.entries[slot].BlockIndex] = true
			}
		}
		for _, slot := range a.hashTable.validEntries() {
			blockIndex := a.hashTable.entries[slot].BlockIndex
			if covered[blockIndex] {
				continue
			}
			covered[blockIndex] = true
			block, err := a.blockTable.get(blockIndex)
			if err != nil || !block.exists() || block.isDeleteMarker() {
				continue
			}
			add(anonymousName(blockIndex))
		}
	} else if a.het != nil && a.bet != nil {
		covered := make(map[uint32]bool)
		for _, name := range names {
			for _, index := range a.het.find(name) {
				if a.bet.matchesName(index, name) {
					covered[index] = true
				}
			}
		}
		for index := uint32(0); index < a.bet.header.FileCount; index++ {
			if covered[index] {
				continue
			}
			info, ok := a.bet.fileInfo(index)
			if !ok || info.Flags&fileExists == 0 || info.Flags&fileDeleteMarker != 0 {
				continue
			}
			add(anonymousName(index))
		}
	}

	sort.Strings(names)
	a.listCache = names

	out := make([]string, len(names))
	copy(out, names)
	return out, nil
}

// Files returns the listing with per-file sizes and flags.
func (a *Archive) Files() ([]FileEntry, error) {
	names, err := a.ListFiles()
	if err != nil {
		return nil, err
	}
	entries := make([]FileEntry, 0, len(names))
	for _, name := range names {
		rec, err := a.findRecord(name)
		if err != nil {
			continue
		}
		entries = append(entries, FileEntry{
			Name:           name,
			FileSize:       rec.FileSize,
			CompressedSize: rec.CompressedSize,
			Flags:          rec.Flags,
			Locale:         a.locale,
		})
	}
	return entries, nil
}

// fileCount reports the number of live entries in the archive's index.
func (a *Archive) fileCount() int {
	if a.bet != nil {
		return int(a.bet.header.FileCount)
	}
	if a.hashTable != nil {
		return len(a.hashTable.validEntries())
	}
	return 0
}

// nextPowerOf2 returns the smallest power of 2 >= n.
func nextPowerOf2(n uint32) uint32 {
	if n == 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	return n + 1
}

// copyFile copies a file from src to dst.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
