// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"context"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"
)

// ExtractAll extracts every listed file of the archive at path into
// destDir, recreating the archive's directory structure. workers bounds
// the goroutine count; values below 1 use GOMAXPROCS. Each worker opens
// its own handle since Archive is not safe for concurrent use.
func ExtractAll(path, destDir string, workers int) error {
	a, err := Open(path)
	if err != nil {
		return err
	}
	names, err := a.ListFiles()
	a.Close()
	if err != nil {
		return err
	}
	return ExtractFiles(path, names, destDir, workers)
}

// ExtractFiles extracts the named files from the archive at path into
// destDir using a bounded worker pool. The first failure cancels the
// remaining work.
func ExtractFiles(path string, names []string, destDir string, workers int) error {
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(names) {
		workers = len(names)
	}
	if len(names) == 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(context.Background())
	work := make(chan string)

	g.Go(func() error {
		defer close(work)
		for _, name := range names {
			select {
			case work <- name:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	for i := 0; i < workers; i++ {
		g.Go(func() error {
			a, err := Open(path)
			if err != nil {
				return err
			}
			defer a.Close()
			for name := range work {
				if err := a.ExtractFile(name, destPathFor(destDir, name)); err != nil {
					return err
				}
			}
			return nil
		})
	}

	return g.Wait()
}

// destPathFor maps an archive path onto the destination directory using
// the platform's separators.
func destPathFor(destDir, mpqPath string) string {
	rel := strings.ReplaceAll(mpqPath, "\\", string(filepath.Separator))
	rel = strings.ReplaceAll(rel, "/", string(filepath.Separator))
	return filepath.Join(destDir, rel)
}
