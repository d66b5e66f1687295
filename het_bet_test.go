// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNames() []string {
	return []string{
		"(listfile)",
		"(attributes)",
		"Interface\\Glue\\Login.xml",
		"Sound\\Music\\GlueScreenMusic.mp3",
		"DBFilesClient\\Spell.dbc",
		"World\\Maps\\Azeroth\\Azeroth.wdt",
	}
}

func testEntries(n int) []blockEntry {
	entries := make([]blockEntry, n)
	pos := uint32(0x2C)
	for i := range entries {
		size := uint32(1000 + i*137)
		entries[i] = blockEntry{
			FilePos:        pos,
			CompressedSize: size / 2,
			FileSize:       size,
			Flags:          fileExists | fileCompress,
		}
		pos += size / 2
	}
	entries[n-1].Flags = fileExists | fileCompress | fileEncrypted
	return entries
}

func TestHetTableBuildAndFind(t *testing.T) {
	names := testNames()
	het, err := buildHetTable(names)
	require.NoError(t, err)

	assert.Equal(t, uint32(len(names)), het.header.MaxFileCount)
	assert.Equal(t, uint32(16), het.header.HashTableSize)
	assert.Equal(t, uint32(hetHashBits), het.header.HashEntrySize)

	for i, name := range names {
		candidates := het.find(name)
		require.NotEmpty(t, candidates, "no candidates for %s", name)
		assert.Contains(t, candidates, uint32(i), "wrong index for %s", name)
	}

	// An absent name may still produce 8-bit collision candidates, but
	// none may carry its index.
	bet, err := buildBetTable(testEntries(len(names)), names)
	require.NoError(t, err)
	for _, candidate := range het.find("Not\\In\\The\\Archive.txt") {
		assert.False(t, bet.matchesName(candidate, "Not\\In\\The\\Archive.txt"))
	}
}

func TestHetTableEncodeDecode(t *testing.T) {
	names := testNames()
	het, err := buildHetTable(names)
	require.NoError(t, err)

	encoded, err := het.encode()
	require.NoError(t, err)

	decoded, err := readHetTable(encoded)
	require.NoError(t, err)

	assert.Equal(t, het.header, decoded.header)
	for i, name := range names {
		assert.Contains(t, decoded.find(name), uint32(i), "index for %s", name)
	}
}

func TestBetTableBuildAndLookup(t *testing.T) {
	names := testNames()
	entries := testEntries(len(names))

	bet, err := buildBetTable(entries, names)
	require.NoError(t, err)

	assert.Equal(t, uint32(len(names)), bet.header.FileCount)
	// Two distinct flag values dedupe into a two-entry array.
	assert.Equal(t, uint32(2), bet.header.FlagCount)

	for i, name := range names {
		info, ok := bet.fileInfo(uint32(i))
		require.True(t, ok, "no record for %s", name)
		assert.Equal(t, uint64(entries[i].FilePos), info.FilePos)
		assert.Equal(t, uint64(entries[i].FileSize), info.FileSize)
		assert.Equal(t, uint64(entries[i].CompressedSize), info.CompressedSize)
		assert.Equal(t, entries[i].Flags, info.Flags)

		assert.True(t, bet.matchesName(uint32(i), name))
		assert.False(t, bet.matchesName(uint32(i), "Other\\Name.txt"))
	}

	_, ok := bet.fileInfo(uint32(len(names)))
	assert.False(t, ok, "out-of-range index accepted")
}

func TestBetTableEncodeDecode(t *testing.T) {
	names := testNames()
	entries := testEntries(len(names))

	bet, err := buildBetTable(entries, names)
	require.NoError(t, err)

	encoded, err := bet.encode()
	require.NoError(t, err)

	decoded, err := readBetTable(encoded)
	require.NoError(t, err)

	assert.Equal(t, bet.header, decoded.header)
	for i, name := range names {
		info, ok := decoded.fileInfo(uint32(i))
		require.True(t, ok)
		assert.Equal(t, uint64(entries[i].FilePos), info.FilePos)
		assert.True(t, decoded.matchesName(uint32(i), name))
	}
}

func TestHetBetManyFiles(t *testing.T) {
	// Enough names that the HET table grows past its floor and indices
	// need more than four bits.
	names := make([]string, 100)
	for i := range names {
		names[i] = fmt.Sprintf("Data\\Generated\\File%03d.dat", i)
	}
	entries := make([]blockEntry, len(names))
	for i := range entries {
		entries[i] = blockEntry{
			FilePos:  uint32(0x100 + i*512),
			FileSize: uint32(512),
			Flags:    fileExists,
		}
	}

	het, err := buildHetTable(names)
	require.NoError(t, err)
	bet, err := buildBetTable(entries, names)
	require.NoError(t, err)

	for i, name := range names {
		found := false
		for _, candidate := range het.find(name) {
			if bet.matchesName(candidate, name) {
				assert.Equal(t, uint32(i), candidate)
				found = true
			}
		}
		assert.True(t, found, "lookup failed for %s", name)
	}
}

func TestBetBuildMismatchedInput(t *testing.T) {
	_, err := buildBetTable(make([]blockEntry, 3), make([]string, 2))
	assert.ErrorIs(t, err, ErrInvalidFormat)
}
