// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"sort"
	"strings"
)

// Special file names. They live in the archive under reserved names and
// are indexed like any other file.
const (
	listfileName   = "(listfile)"
	attributesName = "(attributes)"
	signatureName  = "(signature)"
)

// parseListfile splits (listfile) contents into names. Lines may be
// separated by CR, LF, CRLF or semicolons; blank lines are skipped.
func parseListfile(data []byte) []string {
	fields := strings.FieldsFunc(string(data), func(r rune) bool {
		return r == '\r' || r == '\n' || r == ';'
	})
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f != "" {
			names = append(names, f)
		}
	}
	return names
}

// buildListfile renders names as (listfile) contents, sorted and
// CRLF-terminated the way retail archives store them.
func buildListfile(names []string) []byte {
	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.Strings(sorted)

	var b strings.Builder
	for _, name := range sorted {
		b.WriteString(name)
		b.WriteString("\r\n")
	}
	return []byte(b.String())
}
