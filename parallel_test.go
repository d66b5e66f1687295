// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractAll(t *testing.T) {
	tmpDir := t.TempDir()
	mpqPath := filepath.Join(tmpDir, "bulk.mpq")

	files := make(map[string][]byte)
	for i := 0; i < 12; i++ {
		name := fmt.Sprintf("Data\\Sub%d\\File%02d.dat", i%3, i)
		files[name] = []byte(fmt.Sprintf("contents of file number %d\n", i))
	}

	w, err := Create(mpqPath)
	require.NoError(t, err)
	for name, data := range files {
		require.NoError(t, w.AddFileData(name, data, AddFileOptions{}))
	}
	require.NoError(t, w.Close())

	destDir := filepath.Join(tmpDir, "out")
	require.NoError(t, ExtractAll(mpqPath, destDir, 4))

	for name, want := range files {
		got, err := os.ReadFile(destPathFor(destDir, name))
		require.NoError(t, err, "missing %s", name)
		assert.Equal(t, want, got, "content of %s", name)
	}

	// The listing's special files come along too.
	_, err = os.Stat(destPathFor(destDir, "(listfile)"))
	assert.NoError(t, err)
}

func TestExtractFilesSubset(t *testing.T) {
	tmpDir := t.TempDir()
	mpqPath := filepath.Join(tmpDir, "subset.mpq")

	w, err := Create(mpqPath)
	require.NoError(t, err)
	require.NoError(t, w.AddFileData("Data\\A.txt", []byte("aaa"), AddFileOptions{}))
	require.NoError(t, w.AddFileData("Data\\B.txt", []byte("bbb"), AddFileOptions{}))
	require.NoError(t, w.Close())

	destDir := filepath.Join(tmpDir, "out")
	require.NoError(t, ExtractFiles(mpqPath, []string{"Data\\A.txt"}, destDir, 2))

	_, err = os.Stat(destPathFor(destDir, "Data\\A.txt"))
	assert.NoError(t, err)
	_, err = os.Stat(destPathFor(destDir, "Data\\B.txt"))
	assert.True(t, os.IsNotExist(err), "unrequested file extracted")
}

func TestExtractFilesMissingName(t *testing.T) {
	tmpDir := t.TempDir()
	mpqPath := filepath.Join(tmpDir, "missing.mpq")

	w, err := Create(mpqPath)
	require.NoError(t, err)
	require.NoError(t, w.AddFileData("Data\\A.txt", []byte("aaa"), AddFileOptions{}))
	require.NoError(t, w.Close())

	destDir := filepath.Join(tmpDir, "out")
	err = ExtractFiles(mpqPath, []string{"Data\\A.txt", "Data\\Gone.txt"}, destDir, 2)
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestExtractFilesEmptyList(t *testing.T) {
	tmpDir := t.TempDir()
	mpqPath := filepath.Join(tmpDir, "empty-list.mpq")

	w, err := Create(mpqPath)
	require.NoError(t, err)
	require.NoError(t, w.AddFileData("Data\\A.txt", []byte("aaa"), AddFileOptions{}))
	require.NoError(t, w.Close())

	require.NoError(t, ExtractFiles(mpqPath, nil, filepath.Join(tmpDir, "out"), 4))
}
