// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"bytes"
	"crypto/md5"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Exported attribute flag aliases for WriterOptions.
const (
	AttributesCRC32    = attributesFlagCRC32
	AttributesFiletime = attributesFlagFiletime
	AttributesMD5      = attributesFlagMD5
)

// WriterOptions configures archive creation.
type WriterOptions struct {
	// Version selects the on-disk format. V3 and V4 archives carry
	// HET/BET tables alongside the classic pair.
	Version FormatVersion

	// SectorSizeShift sets the sector size to 512 << shift. Zero means
	// the default.
	SectorSizeShift uint16

	// Compression is the default method mask for added files.
	Compression byte

	// GenerateListfile controls whether a (listfile) is written.
	GenerateListfile bool

	// AttributesFlags selects which (attributes) arrays to generate.
	// Zero disables the attributes file.
	AttributesFlags uint32
}

// AddFileOptions overrides per-file storage behavior.
type AddFileOptions struct {
	// Compression overrides the writer's default method mask.
	Compression byte

	// Store disables compression for this file.
	Store bool

	// Encrypt stores the file encrypted with its name-derived key.
	Encrypt bool

	// FixKey additionally mixes the block position into the key.
	// Implies Encrypt.
	FixKey bool

	// SingleUnit stores the file as one block instead of sectors.
	SingleUnit bool

	// SectorCRC appends a per-sector checksum table.
	SectorCRC bool

	// Locale tags the hash table entry. Zero is the neutral locale.
	Locale uint16

	// Filetime is stored in (attributes) when filetime generation is
	// on. Zero means the time the file was added.
	Filetime uint64

	// Replace allows overwriting an existing entry. Only meaningful for
	// MutableArchive; the writer always rejects duplicates.
	Replace bool
}

// Writer builds a new MPQ archive. Files accumulate in memory until
// Close, which writes the archive to a temp file and renames it into
// place.
type Writer struct {
	path     string
	tempPath string
	opts     WriterOptions
	pending  []pendingFile
	closed   bool
}

type pendingFile struct {
	name     string
	data     []byte
	opts     AddFileOptions
	filetime uint64
}

// Create creates a new archive writer with the defaults most tools
// expect: V1 format, zlib compression, a generated (listfile) and CRC32
// attributes.
func Create(path string) (*Writer, error) {
	return CreateWithOptions(path, WriterOptions{
		Version:          FormatV1,
		Compression:      CompressionZlib,
		GenerateListfile: true,
		AttributesFlags:  AttributesCRC32,
	})
}

// CreateWithOptions creates a new archive writer.
func CreateWithOptions(path string, opts WriterOptions) (*Writer, error) {
	if opts.Version < FormatV1 || opts.Version > FormatV4 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, opts.Version)
	}
	if opts.SectorSizeShift == 0 {
		opts.SectorSizeShift = defaultSectorSizeShift
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}
	tempFile, err := os.CreateTemp(filepath.Dir(path), "mpq_*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tempPath := tempFile.Name()
	tempFile.Close()

	return &Writer{
		path:     path,
		tempPath: tempPath,
		opts:     opts,
	}, nil
}

// AddFile adds a file from disk under the given archive path.
func (w *Writer) AddFile(srcPath, mpqPath string) error {
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return fmt.Errorf("read file %s: %w", srcPath, err)
	}
	opts := AddFileOptions{}
	if info, err := os.Stat(srcPath); err == nil {
		opts.Filetime = toFiletime(info.ModTime())
	}
	return w.AddFileData(mpqPath, data, opts)
}

// AddFileData adds in-memory contents under the given archive path.
func (w *Writer) AddFileData(mpqPath string, data []byte, opts AddFileOptions) error {
	if w.closed {
		return fmt.Errorf("writer already closed")
	}
	mpqPath = strings.ReplaceAll(mpqPath, "/", "\\")
	if mpqPath == "" {
		return invalidFormatf("empty archive path")
	}

	for _, pf := range w.pending {
		if strings.EqualFold(pf.name, mpqPath) && pf.opts.Locale == opts.Locale {
			return fileExistsf(mpqPath)
		}
	}

	ft := opts.Filetime
	if ft == 0 {
		ft = toFiletime(time.Now())
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	w.pending = append(w.pending, pendingFile{
		name:     mpqPath,
		data:     buf,
		opts:     opts,
		filetime: ft,
	})
	return nil
}

// HasFile reports whether a path has been added.
func (w *Writer) HasFile(mpqPath string) bool {
	mpqPath = strings.ReplaceAll(mpqPath, "/", "\\")
	for _, pf := range w.pending {
		if strings.EqualFold(pf.name, mpqPath) {
			return true
		}
	}
	return false
}

// Close writes the archive and moves it into place. The writer is
// unusable afterwards.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.writeArchive(); err != nil {
		os.Remove(w.tempPath)
		return err
	}

	os.Remove(w.path)
	if err := os.Rename(w.tempPath, w.path); err != nil {
		if err := copyFile(w.tempPath, w.path); err != nil {
			os.Remove(w.tempPath)
			return fmt.Errorf("save archive: %w", err)
		}
		os.Remove(w.tempPath)
	}
	return nil
}

// methodsFor resolves the effective compression mask for one file.
func (w *Writer) methodsFor(opts AddFileOptions) byte {
	if opts.Store {
		return CompressionNone
	}
	if opts.Compression != CompressionNone {
		return opts.Compression
	}
	return w.opts.Compression
}

func (w *Writer) writeArchive() error {
	file, err := os.Create(w.tempPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer file.Close()

	sectorSize := uint32(512) << w.opts.SectorSizeShift

	// Special files join the block table after the user files: listfile
	// first, attributes last so its own entry can stay a placeholder.
	genList := w.opts.GenerateListfile
	genAttrs := w.opts.AttributesFlags != 0

	blockCount := len(w.pending)
	if genList {
		blockCount++
	}
	if genAttrs {
		blockCount++
	}
	if blockCount == 0 {
		return invalidFormatf("archive has no files")
	}

	hashSize := nextPowerOf2(uint32(blockCount) * 2)
	if hashSize < 16 {
		hashSize = 16
	}
	hashTab, err := newHashTable(hashSize)
	if err != nil {
		return err
	}
	blockTab := &blockTable{}
	names := make([]string, 0, blockCount)
	attrs := newAttributesWriter(blockCount, w.opts.AttributesFlags)

	header := &archiveHeader{
		baseHeader: baseHeader{
			Magic:           mpqMagic,
			HeaderSize:      headerSizeForVersion(uint16(w.opts.Version)),
			FormatVersion:   uint16(w.opts.Version),
			SectorSizeShift: w.opts.SectorSizeShift,
			HashTableSize:   hashSize,
		},
	}

	if _, err := file.Seek(int64(header.HeaderSize), 0); err != nil {
		return fmt.Errorf("seek past header: %w", err)
	}

	needsHiBlock := false
	var hiWords []uint16
	writeOne := func(name string, data []byte, opts AddFileOptions, methods byte) error {
		filePos, err := file.Seek(0, 1)
		if err != nil {
			return err
		}
		if filePos > 0xFFFFFFFF {
			needsHiBlock = true
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

		stored, finalFlags, err := buildFileData(data, name, uint64(filePos), flags, methods, sectorSize)
		if err != nil {
			return fmt.Errorf("pack file %s: %w", name, err)
		}
		if _, err := file.Write(stored); err != nil {
			return fmt.Errorf("write file data: %w", err)
		}

		blockIndex := blockTab.size()
		blockTab.entries = append(blockTab.entries, blockEntry{
			FilePos:        uint32(filePos),
			CompressedSize: uint32(len(stored)),
			FileSize:       uint32(len(data)),
			Flags:          finalFlags,
		})
		if _, err := hashTab.insert(name, opts.Locale, blockIndex); err != nil {
			return fmt.Errorf("add %s to hash table: %w", name, err)
		}
		names = append(names, name)
		hiWords = append(hiWords, uint16(uint64(filePos)>>32))
		return nil
	}

	for _, pf := range w.pending {
		if err := writeOne(pf.name, pf.data, pf.opts, w.methodsFor(pf.opts)); err != nil {
			return err
		}
		attrs.setEntry(int(blockTab.size())-1, pf.data, pf.filetime)
	}

	if genList {
		listNames := make([]string, 0, blockCount)
		for _, pf := range w.pending {
			listNames = append(listNames, pf.name)
		}
		listNames = append(listNames, listfileName)
		if genAttrs {
			listNames = append(listNames, attributesName)
		}
		data := buildListfile(listNames)
		if err := writeOne(listfileName, data, AddFileOptions{}, w.opts.Compression); err != nil {
			return err
		}
		attrs.setEntry(int(blockTab.size())-1, data, toFiletime(time.Now()))
	}

	if genAttrs {
		// The attributes file's own entry keeps zero placeholders since
		// its contents cannot include their own checksum.
		attrs.setEntry(int(blockTab.size()), nil, 0)
		data := attrs.build()
		if err := writeOne(attributesName, data, AddFileOptions{}, w.opts.Compression); err != nil {
			return err
		}
	}

	// HET and BET go first for V3+, then the classic pair.
	if w.opts.Version >= FormatV3 {
		hetPos, _ := file.Seek(0, 1)
		het, err := buildHetTable(names)
		if err != nil {
			return err
		}
		hetData, err := het.encode()
		if err != nil {
			return err
		}
		if _, err := file.Write(hetData); err != nil {
			return fmt.Errorf("write HET table: %w", err)
		}

		betPos, _ := file.Seek(0, 1)
		bet, err := buildBetTable(blockTab.entries, names)
		if err != nil {
			return err
		}
		betData, err := bet.encode()
		if err != nil {
			return err
		}
		if _, err := file.Write(betData); err != nil {
			return fmt.Errorf("write BET table: %w", err)
		}

		header.HetTableOffset = uint64(hetPos)
		header.BetTableOffset = uint64(betPos)
		header.HetTableSize64 = uint64(len(hetData))
		header.BetTableSize64 = uint64(len(betData))
		header.MD5HetTable = md5.Sum(hetData)
		header.MD5BetTable = md5.Sum(betData)
	}

	hashPos, _ := file.Seek(0, 1)
	var hashBuf bytes.Buffer
	if err := hashTab.write(&hashBuf); err != nil {
		return fmt.Errorf("write hash table: %w", err)
	}
	if _, err := file.Write(hashBuf.Bytes()); err != nil {
		return fmt.Errorf("write hash table: %w", err)
	}

	blockPos, _ := file.Seek(0, 1)
	var blockBuf bytes.Buffer
	if err := blockTab.write(&blockBuf); err != nil {
		return fmt.Errorf("write block table: %w", err)
	}
	if _, err := file.Write(blockBuf.Bytes()); err != nil {
		return fmt.Errorf("write block table: %w", err)
	}

	var hiBlockPos int64
	var hiBlockData []uint16
	if w.opts.Version >= FormatV2 && needsHiBlock {
		hiBlockPos, _ = file.Seek(0, 1)
		hiBlockData = hiWords
		if err := writeUint16Array(file, hiBlockData); err != nil {
			return fmt.Errorf("write hi-block table: %w", err)
		}
	}

	archiveSize, _ := file.Seek(0, 1)

	header.setHashTableOffset64(uint64(hashPos))
	header.setBlockTableOffset64(uint64(blockPos))
	header.BlockTableSize = blockTab.size()
	header.ArchiveSize = uint32(archiveSize)

	if w.opts.Version >= FormatV2 {
		if needsHiBlock {
			header.HiBlockTableOffset64 = uint64(hiBlockPos)
		}
	}
	if w.opts.Version >= FormatV3 {
		header.ArchiveSize64 = uint64(archiveSize)
	}
	if w.opts.Version >= FormatV4 {
		header.HashTableSize64 = hashTab.sizeInBytes()
		header.BlockTableSize64 = blockTab.sizeInBytes()
		header.HiBlockTableSize64 = uint64(len(hiBlockData)) * 2
		header.MD5HashTable = md5.Sum(hashBuf.Bytes())
		header.MD5BlockTable = md5.Sum(blockBuf.Bytes())
		header.RawChunkSize = 0x4000

		// The header digest covers everything before the digest field
		// itself.
		var hb bytes.Buffer
		if err := writeArchiveHeader(&hb, header); err != nil {
			return err
		}
		header.MD5Header = md5.Sum(hb.Bytes()[:headerSizeV4-16])
	}

	if _, err := file.Seek(0, 0); err != nil {
		return fmt.Errorf("seek to header: %w", err)
	}
	if err := writeArchiveHeader(file, header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

// toFiletime converts a time to Windows FILETIME, 100ns ticks since 1601.
func toFiletime(t time.Time) uint64 {
	const epochDelta = 116444736000000000
	return uint64(t.UnixNano()/100) + epochDelta
}
