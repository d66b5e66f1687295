// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"bytes"
	"fmt"
	"io"
)

// hashEntry is one slot of the classic hash table. BlockIndex holds the raw
// on-disk value: a real block index, blockIndexEmpty for a never-used slot,
// or blockIndexDeleted for a tombstone.
type hashEntry struct {
	NameA      uint32 // Hash of the filename (type A)
	NameB      uint32 // Hash of the filename (type B)
	Locale     uint16 // Language ID (0 = neutral)
	Platform   uint16 // Platform ID (always 0 in practice)
	BlockIndex uint32 // Index into the block table, or a sentinel
}

func (e *hashEntry) isEmpty() bool   { return e.BlockIndex == blockIndexEmpty }
func (e *hashEntry) isDeleted() bool { return e.BlockIndex == blockIndexDeleted }
func (e *hashEntry) isValid() bool   { return !e.isEmpty() && !e.isDeleted() }

// hashTable is the classic file index: an open-addressed table whose size is
// a power of two, probed linearly with wraparound. An empty slot terminates
// a probe chain; a deleted slot does not.
type hashTable struct {
	entries []hashEntry
	mask    uint32
}

// newHashTable creates an empty hash table with the given entry count,
// which must be a nonzero power of two.
func newHashTable(size uint32) (*hashTable, error) {
	if size == 0 || size&(size-1) != 0 {
		return nil, invalidFormatf("hash table size %d is not a power of two", size)
	}
	t := &hashTable{
		entries: make([]hashEntry, size),
		mask:    size - 1,
	}
	for i := range t.entries {
		t.entries[i] = emptyHashEntry()
	}
	return t, nil
}

// emptyHashEntry is the all-FF slot value unused tables ship with.
func emptyHashEntry() hashEntry {
	return hashEntry{
		NameA:      0xFFFFFFFF,
		NameB:      0xFFFFFFFF,
		Locale:     0xFFFF,
		Platform:   0xFFFF,
		BlockIndex: blockIndexEmpty,
	}
}

// readHashTable reads and decrypts a hash table from raw archive bytes.
func readHashTable(data []byte, size uint32) (*hashTable, error) {
	if uint64(len(data)) < uint64(size)*hashEntrySize {
		return nil, invalidFormatf("hash table truncated: %d bytes for %d entries",
			len(data), size)
	}
	if size == 0 || size&(size-1) != 0 {
		return nil, invalidFormatf("hash table size %d is not a power of two", size)
	}

	raw := make([]uint32, size*4)
	if err := readUint32Array(bytes.NewReader(data), raw); err != nil {
		return nil, err
	}
	decryptBlock(raw, hashTableKey())

	t := &hashTable{
		entries: make([]hashEntry, size),
		mask:    size - 1,
	}
	for i := range t.entries {
		t.entries[i] = hashEntry{
			NameA:      raw[i*4],
			NameB:      raw[i*4+1],
			Locale:     uint16(raw[i*4+2]),
			Platform:   uint16(raw[i*4+2] >> 16),
			BlockIndex: raw[i*4+3],
		}
	}
	return t, nil
}

// write encrypts and writes the hash table.
func (t *hashTable) write(w io.Writer) error {
	raw := make([]uint32, len(t.entries)*4)
	for i, e := range t.entries {
		raw[i*4] = e.NameA
		raw[i*4+1] = e.NameB
		raw[i*4+2] = uint32(e.Locale) | uint32(e.Platform)<<16
		raw[i*4+3] = e.BlockIndex
	}
	encryptBlock(raw, hashTableKey())
	return writeUint32Array(w, raw)
}

func (t *hashTable) size() uint32 { return uint32(len(t.entries)) }

// sizeInBytes returns the encoded size of the table.
func (t *hashTable) sizeInBytes() uint64 {
	return uint64(len(t.entries)) * hashEntrySize
}

// find locates the entry for a filename. An exact locale match wins; a
// neutral query accepts any stored locale, and any query accepts a stored
// neutral entry. Returns the slot index.
func (t *hashTable) find(filename string, locale uint16) (int, bool) {
	start := hashString(filename, hashTypeTableOffset) & t.mask
	nameA := hashString(filename, hashTypeNameA)
	nameB := hashString(filename, hashTypeNameB)

	fallback := -1
	index := start
	for {
		e := &t.entries[index]
		if e.isEmpty() {
			break
		}
		// Deleted entries keep the probe chain alive but never match.
		if e.isValid() && e.NameA == nameA && e.NameB == nameB {
			if e.Locale == locale {
				return int(index), true
			}
			if (locale == localeNeutral || e.Locale == localeNeutral) && fallback < 0 {
				fallback = int(index)
			}
		}

		index = (index + 1) & t.mask
		if index == start {
			break
		}
	}

	if fallback >= 0 {
		return fallback, true
	}
	return 0, false
}

// insert places a filename in the table, reusing the first deleted slot on
// its probe chain. Returns the slot index, or an error when the table is
// full or an entry with the same name and locale already exists.
func (t *hashTable) insert(filename string, locale uint16, blockIndex uint32) (int, error) {
	start := hashString(filename, hashTypeTableOffset) & t.mask
	nameA := hashString(filename, hashTypeNameA)
	nameB := hashString(filename, hashTypeNameB)

	firstDeleted := -1
	index := start
	for {
		e := &t.entries[index]
		if e.isEmpty() {
			break
		}
		if e.isDeleted() {
			if firstDeleted < 0 {
				firstDeleted = int(index)
			}
		} else if e.NameA == nameA && e.NameB == nameB && e.Locale == locale {
			return 0, fileExistsf(filename)
		}

		index = (index + 1) & t.mask
		if index == start {
			// Full scan without an empty slot.
			if firstDeleted < 0 {
				return 0, fmt.Errorf("%w: table is full", ErrHashTable)
			}
			break
		}
	}

	slot := int(index)
	if firstDeleted >= 0 {
		slot = firstDeleted
	}
	t.entries[slot] = hashEntry{
		NameA:      nameA,
		NameB:      nameB,
		Locale:     locale,
		Platform:   0,
		BlockIndex: blockIndex,
	}
	return slot, nil
}

// remove tombstones the entry for a filename so later probes continue past
// the slot.
func (t *hashTable) remove(filename string, locale uint16) (uint32, error) {
	slot, ok := t.find(filename, locale)
	if !ok {
		return 0, fileNotFoundf(filename)
	}
	blockIndex := t.entries[slot].BlockIndex
	tombstone := emptyHashEntry()
	tombstone.BlockIndex = blockIndexDeleted
	t.entries[slot] = tombstone
	return blockIndex, nil
}

// validEntries returns the slots holding live files.
func (t *hashTable) validEntries() []int {
	var out []int
	for i := range t.entries {
		if t.entries[i].isValid() {
			out = append(out, i)
		}
	}
	return out
}
