// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// readCacheSize bounds the per-chain content cache. Game clients read the
// same handful of files (DBCs, interface data) over and over.
const readCacheSize = 64

// normalizeMpqPath normalizes a path for MPQ lookup.
// Converts forward slashes to backslashes and normalizes case.
// This matches MPQ's internal path handling (case-insensitive, backslash
// separators).
func normalizeMpqPath(path string) string {
	normalized := strings.ReplaceAll(path, "/", "\\")
	normalized = strings.ToUpper(normalized)
	for strings.Contains(normalized, "\\\\") {
		normalized = strings.ReplaceAll(normalized, "\\\\", "\\")
	}
	return normalized
}

// chainEntry is one archive in a patch chain.
type chainEntry struct {
	archive  *Archive
	path     string
	priority int
}

// ChainEntryInfo describes one archive of a chain, for inspection.
type ChainEntryInfo struct {
	Path     string
	Priority int
	Files    int
}

// PatchChain layers multiple archives by priority: a file lookup walks
// from the highest priority down, and a delete marker anywhere on the way
// hides the file from everything below it.
type PatchChain struct {
	// entries stays sorted by descending priority.
	entries []chainEntry
	cache   *lru.Cache[string, []byte]
}

// NewPatchChain creates an empty chain.
func NewPatchChain() *PatchChain {
	cache, _ := lru.New[string, []byte](readCacheSize)
	return &PatchChain{cache: cache}
}

// OpenPatchChain opens multiple MPQ archives in order of increasing
// priority. The last archive in the list has the highest priority.
func OpenPatchChain(paths []string) (*PatchChain, error) {
	chain := NewPatchChain()
	for i, path := range paths {
		if err := chain.AddArchive(path, i); err != nil {
			chain.Close()
			return nil, err
		}
	}
	return chain, nil
}

// AddArchive opens an archive and inserts it at the given priority.
// Priorities must be unique within a chain; conventionally base archives
// sit at 0 and patches at 100, 200, and so on.
func (p *PatchChain) AddArchive(path string, priority int) error {
	for _, e := range p.entries {
		if e.priority == priority {
			return fmt.Errorf("priority %d already used by %s", priority, e.path)
		}
	}

	archive, err := Open(path)
	if err != nil {
		return fmt.Errorf("open archive %s: %w", path, err)
	}

	p.entries = append(p.entries, chainEntry{
		archive:  archive,
		path:     path,
		priority: priority,
	})
	sort.SliceStable(p.entries, func(i, j int) bool {
		return p.entries[i].priority > p.entries[j].priority
	})
	p.cache.Purge()
	return nil
}

// Close closes all archives in the patch chain.
func (p *PatchChain) Close() error {
	var firstErr error
	for _, e := range p.entries {
		if err := e.archive.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.entries = nil
	p.cache.Purge()
	return firstErr
}

// ArchiveCount returns the number of archives in the chain.
func (p *PatchChain) ArchiveCount() int { return len(p.entries) }

// ChainInfo describes the chain in ascending priority order.
func (p *PatchChain) ChainInfo() []ChainEntryInfo {
	out := make([]ChainEntryInfo, 0, len(p.entries))
	for i := len(p.entries) - 1; i >= 0; i-- {
		e := p.entries[i]
		out = append(out, ChainEntryInfo{
			Path:     e.path,
			Priority: e.priority,
			Files:    e.archive.fileCount(),
		})
	}
	return out
}

// resolve finds the winning entry for a file: the highest-priority
// archive that knows the name. A delete marker there hides the file.
func (p *PatchChain) resolve(mpqPath string) (*chainEntry, error) {
	mpqPath = strings.ReplaceAll(mpqPath, "/", "\\")
	for i := range p.entries {
		e := &p.entries[i]
		rec, err := e.archive.findRecordRaw(mpqPath)
		if err != nil {
			if errors.Is(err, ErrFileNotFound) {
				continue
			}
			return nil, err
		}
		if rec.Flags&fileDeleteMarker != 0 {
			return nil, fileNotFoundf(mpqPath)
		}
		return e, nil
	}
	return nil, fileNotFoundf(mpqPath)
}

// HasFile returns true if any archive provides the file and no
// higher-priority archive deletes it.
func (p *PatchChain) HasFile(mpqPath string) bool {
	_, err := p.resolve(mpqPath)
	return err == nil
}

// FindFileArchive returns the path of the archive that provides the
// winning version of a file.
func (p *PatchChain) FindFileArchive(mpqPath string) (string, error) {
	e, err := p.resolve(mpqPath)
	if err != nil {
		return "", err
	}
	return e.path, nil
}

// ReadFile reads the highest-priority version of a file. Contents are
// cached; adding an archive invalidates the cache.
func (p *PatchChain) ReadFile(mpqPath string) ([]byte, error) {
	key := normalizeMpqPath(mpqPath)
	if data, ok := p.cache.Get(key); ok {
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	}

	e, err := p.resolve(mpqPath)
	if err != nil {
		return nil, err
	}
	data, err := e.archive.ReadFile(mpqPath)
	if err != nil {
		return nil, err
	}
	p.cache.Add(key, data)

	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// ExtractFile extracts the highest-priority version of a file.
func (p *PatchChain) ExtractFile(mpqPath, destPath string) error {
	e, err := p.resolve(mpqPath)
	if err != nil {
		return err
	}
	return e.archive.ExtractFile(mpqPath, destPath)
}

// ListFiles returns the union of listfiles across the chain, honoring
// delete markers.
func (p *PatchChain) ListFiles() ([]string, error) {
	seen := make(map[string]struct{})
	var result []string
	for i := len(p.entries) - 1; i >= 0; i-- {
		files, err := p.entries[i].archive.ListFiles()
		if err != nil {
			return nil, err
		}
		for _, file := range files {
			key := normalizeMpqPath(file)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			if p.HasFile(file) {
				result = append(result, file)
			}
		}
	}
	sort.Strings(result)
	return result, nil
}

// HasPatchFile checks if a file is marked as an incremental patch in any
// archive of the chain.
func (p *PatchChain) HasPatchFile(mpqPath string) bool {
	mpqPath = strings.ReplaceAll(mpqPath, "/", "\\")
	for i := range p.entries {
		rec, err := p.entries[i].archive.findRecordRaw(mpqPath)
		if err == nil && rec.Flags&filePatchFile != 0 {
			return true
		}
	}
	return false
}
