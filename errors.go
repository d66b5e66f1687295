// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"errors"
	"fmt"
)

// Sentinel errors for the archive engine. Callers match them with errors.Is;
// most returned errors wrap one of these with additional context.
var (
	// ErrInvalidFormat means the header or a table failed structural
	// validation. The archive is unusable.
	ErrInvalidFormat = errors.New("invalid MPQ format")

	// ErrUnsupportedVersion means the header declares a format version
	// outside the supported 1-4 range.
	ErrUnsupportedVersion = errors.New("unsupported MPQ version")

	// ErrFileNotFound means no index entry matched the requested name.
	// The archive remains usable.
	ErrFileNotFound = errors.New("file not found")

	// ErrFileExists means an add or rename would overwrite an existing
	// entry and replacement was not requested.
	ErrFileExists = errors.New("file already exists")

	// ErrHashTable means a hash table could not be constructed
	// (size not a power of two, insufficient bytes).
	ErrHashTable = errors.New("hash table error")

	// ErrBlockTable means a block table could not be constructed or a
	// block index fell outside it.
	ErrBlockTable = errors.New("block table error")

	// ErrCompression means a sector or table failed to compress or
	// decompress. Recoverable per file; the archive remains usable.
	ErrCompression = errors.New("compression error")

	// ErrChecksum means a stored sector checksum or table MD5 did not
	// match the computed value.
	ErrChecksum = errors.New("checksum mismatch")

	// ErrReadOnly means a mutating operation was attempted through a
	// handle that cannot write, such as a closed MutableArchive.
	ErrReadOnly = errors.New("archive is read-only")
)

func invalidFormatf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidFormat, fmt.Sprintf(format, args...))
}

func fileNotFoundf(name string) error {
	return fmt.Errorf("%w: %s", ErrFileNotFound, name)
}

func fileExistsf(name string) error {
	return fmt.Errorf("%w: %s", ErrFileExists, name)
}

func compressionf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCompression, fmt.Sprintf(format, args...))
}

func checksumf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrChecksum, fmt.Sprintf(format, args...))
}
