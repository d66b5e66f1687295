// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// writeChainArchive creates one archive of a test chain.
func writeChainArchive(t *testing.T, dir, name string, files map[string][]byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	w, err := Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	for mpqPath, data := range files {
		if err := w.AddFileData(mpqPath, data, AddFileOptions{}); err != nil {
			t.Fatalf("add %s: %v", mpqPath, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close %s: %v", name, err)
	}
	return path
}

func TestPatchChainPriority(t *testing.T) {
	tmpDir := t.TempDir()

	base := writeChainArchive(t, tmpDir, "common.mpq", map[string][]byte{
		"Data\\Shared.txt": []byte("base version"),
		"Data\\Only.txt":   []byte("base only"),
	})
	patch := writeChainArchive(t, tmpDir, "patch.mpq", map[string][]byte{
		"Data\\Shared.txt": []byte("patched version"),
	})

	chain := NewPatchChain()
	defer chain.Close()
	if err := chain.AddArchive(base, 0); err != nil {
		t.Fatalf("add base: %v", err)
	}
	if err := chain.AddArchive(patch, 100); err != nil {
		t.Fatalf("add patch: %v", err)
	}

	if chain.ArchiveCount() != 2 {
		t.Errorf("archive count %d, want 2", chain.ArchiveCount())
	}

	// The patch wins for the shared name; the base still serves its own.
	data, err := chain.ReadFile("Data\\Shared.txt")
	if err != nil {
		t.Fatalf("read shared: %v", err)
	}
	if string(data) != "patched version" {
		t.Errorf("shared file: got %q", data)
	}

	data, err = chain.ReadFile("Data\\Only.txt")
	if err != nil {
		t.Fatalf("read base-only: %v", err)
	}
	if string(data) != "base only" {
		t.Errorf("base-only file: got %q", data)
	}

	from, err := chain.FindFileArchive("Data\\Shared.txt")
	if err != nil {
		t.Fatalf("find archive: %v", err)
	}
	if from != patch {
		t.Errorf("shared file resolved from %s, want %s", from, patch)
	}
}

func TestPatchChainAdditionOrderIrrelevant(t *testing.T) {
	tmpDir := t.TempDir()

	base := writeChainArchive(t, tmpDir, "base.mpq", map[string][]byte{
		"File.txt": []byte("low"),
	})
	patch := writeChainArchive(t, tmpDir, "patch.mpq", map[string][]byte{
		"File.txt": []byte("high"),
	})

	// Higher priority added first still wins.
	chain := NewPatchChain()
	defer chain.Close()
	if err := chain.AddArchive(patch, 1000); err != nil {
		t.Fatalf("add patch: %v", err)
	}
	if err := chain.AddArchive(base, 0); err != nil {
		t.Fatalf("add base: %v", err)
	}

	data, err := chain.ReadFile("File.txt")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "high" {
		t.Errorf("got %q, want %q", data, "high")
	}

	info := chain.ChainInfo()
	if len(info) != 2 || info[0].Priority != 0 || info[1].Priority != 1000 {
		t.Errorf("chain info not ascending: %+v", info)
	}
}

func TestPatchChainDuplicatePriority(t *testing.T) {
	tmpDir := t.TempDir()
	base := writeChainArchive(t, tmpDir, "base.mpq", map[string][]byte{
		"File.txt": []byte("content"),
	})

	chain := NewPatchChain()
	defer chain.Close()
	if err := chain.AddArchive(base, 5); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := chain.AddArchive(base, 5); err == nil {
		t.Errorf("duplicate priority accepted")
	}
}

func TestPatchChainDeleteMarker(t *testing.T) {
	tmpDir := t.TempDir()

	base := writeChainArchive(t, tmpDir, "base.mpq", map[string][]byte{
		"Data\\Removed.txt": []byte("old content"),
		"Data\\Stays.txt":   []byte("stays"),
	})
	patch := writeChainArchive(t, tmpDir, "patch.mpq", map[string][]byte{
		"Data\\Other.txt": []byte("other"),
	})

	// Mark the file deleted in the patch.
	m, err := OpenMutable(patch)
	if err != nil {
		t.Fatalf("open mutable: %v", err)
	}
	if err := m.AddDeleteMarker("Data\\Removed.txt"); err != nil {
		t.Fatalf("add delete marker: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("close mutable: %v", err)
	}

	chain, err := OpenPatchChain([]string{base, patch})
	if err != nil {
		t.Fatalf("open chain: %v", err)
	}
	defer chain.Close()

	// The marker hides the base version from the chain, though the base
	// archive itself still has it.
	if chain.HasFile("Data\\Removed.txt") {
		t.Errorf("delete marker did not shadow the file")
	}
	if _, err := chain.ReadFile("Data\\Removed.txt"); err == nil {
		t.Errorf("read of deleted file succeeded")
	}
	if !chain.HasFile("Data\\Stays.txt") {
		t.Errorf("unrelated file lost")
	}

	files, err := chain.ListFiles()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, f := range files {
		if f == "Data\\Removed.txt" {
			t.Errorf("deleted file still listed")
		}
	}

	baseArchive, err := Open(base)
	if err != nil {
		t.Fatalf("open base: %v", err)
	}
	defer baseArchive.Close()
	if !baseArchive.HasFile("Data\\Removed.txt") {
		t.Errorf("base archive lost the file")
	}
}

func TestPatchChainListFilesUnion(t *testing.T) {
	tmpDir := t.TempDir()

	base := writeChainArchive(t, tmpDir, "base.mpq", map[string][]byte{
		"Data\\A.txt": []byte("a"),
		"Data\\B.txt": []byte("b"),
	})
	patch := writeChainArchive(t, tmpDir, "patch.mpq", map[string][]byte{
		"Data\\B.txt": []byte("b2"),
		"Data\\C.txt": []byte("c"),
	})

	chain, err := OpenPatchChain([]string{base, patch})
	if err != nil {
		t.Fatalf("open chain: %v", err)
	}
	defer chain.Close()

	files, err := chain.ListFiles()
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	seen := make(map[string]int)
	for _, f := range files {
		seen[f]++
	}
	for _, want := range []string{"Data\\A.txt", "Data\\B.txt", "Data\\C.txt"} {
		if seen[want] != 1 {
			t.Errorf("%s listed %d times, want 1", want, seen[want])
		}
	}
}

func TestPatchChainCachedReadsAreIsolated(t *testing.T) {
	tmpDir := t.TempDir()
	base := writeChainArchive(t, tmpDir, "base.mpq", map[string][]byte{
		"File.txt": []byte("cached content"),
	})

	chain, err := OpenPatchChain([]string{base})
	if err != nil {
		t.Fatalf("open chain: %v", err)
	}
	defer chain.Close()

	first, err := chain.ReadFile("File.txt")
	if err != nil {
		t.Fatalf("first read: %v", err)
	}
	first[0] = 'X'

	second, err := chain.ReadFile("File.txt")
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if !bytes.Equal(second, []byte("cached content")) {
		t.Errorf("cache returned mutated data: %q", second)
	}
}

// BenchmarkPatchChainLookup benchmarks file lookup across a chain.
func BenchmarkPatchChainLookup(b *testing.B) {
	tmpDir := b.TempDir()

	var archivePaths []string
	for i := 0; i < 5; i++ {
		archivePath := filepath.Join(tmpDir, "archive_"+string(rune('0'+i))+".mpq")
		w, err := Create(archivePath)
		if err != nil {
			b.Fatal(err)
		}
		for j := 0; j < 20; j++ {
			mpqPath := "Data\\File_" + string(rune('a'+j)) + ".txt"
			content := []byte("test content " + string(rune('0'+i)) + string(rune('a'+j)))
			if err := w.AddFileData(mpqPath, content, AddFileOptions{}); err != nil {
				b.Fatal(err)
			}
		}
		if err := w.Close(); err != nil {
			b.Fatal(err)
		}
		archivePaths = append(archivePaths, archivePath)
	}

	chain, err := OpenPatchChain(archivePaths)
	if err != nil {
		b.Fatal(err)
	}
	defer chain.Close()

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		chain.HasFile("Data\\File_a.txt")
		chain.HasFile("Data\\File_j.txt")
		chain.HasFile("Data\\File_t.txt")
		chain.HasFile("Data\\NonExistent.txt")
	}
}

// BenchmarkPatchChainExtract benchmarks cached file reads.
func BenchmarkPatchChainExtract(b *testing.B) {
	tmpDir := b.TempDir()

	var archivePaths []string
	for i := 0; i < 3; i++ {
		archivePath := filepath.Join(tmpDir, "archive_"+string(rune('0'+i))+".mpq")
		w, err := Create(archivePath)
		if err != nil {
			b.Fatal(err)
		}
		for j := 0; j < 10; j++ {
			mpqPath := "Data\\File_" + string(rune('a'+j)) + ".txt"
			content := []byte("test content " + string(rune('0'+i)) + string(rune('a'+j)))
			if err := w.AddFileData(mpqPath, content, AddFileOptions{}); err != nil {
				b.Fatal(err)
			}
		}
		if err := w.Close(); err != nil {
			b.Fatal(err)
		}
		archivePaths = append(archivePaths, archivePath)
	}

	chain, err := OpenPatchChain(archivePaths)
	if err != nil {
		b.Fatal(err)
	}
	defer chain.Close()

	outputDir := filepath.Join(tmpDir, "output")
	os.MkdirAll(outputDir, 0755)

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		destPath := filepath.Join(outputDir, "extracted.txt")
		chain.ExtractFile("Data\\File_a.txt", destPath)
		os.Remove(destPath)
	}
}
