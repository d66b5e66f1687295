// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"reflect"
	"testing"
)

func TestParseListfile(t *testing.T) {
	tests := []struct {
		name string
		data string
		want []string
	}{
		{"crlf", "a.txt\r\nb.txt\r\n", []string{"a.txt", "b.txt"}},
		{"lf only", "a.txt\nb.txt", []string{"a.txt", "b.txt"}},
		{"cr only", "a.txt\rb.txt", []string{"a.txt", "b.txt"}},
		{"semicolons", "a.txt;b.txt;c.txt", []string{"a.txt", "b.txt", "c.txt"}},
		{"blank lines", "a.txt\r\n\r\n\r\nb.txt\r\n", []string{"a.txt", "b.txt"}},
		{"whitespace", "  a.txt  \r\nb.txt\r\n", []string{"a.txt", "b.txt"}},
		{"empty", "", []string{}},
		{"paths", "Data\\Sub\\File.txt\r\n", []string{"Data\\Sub\\File.txt"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := parseListfile([]byte(tc.data))
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestBuildListfile(t *testing.T) {
	names := []string{"b.txt", "(listfile)", "a.txt"}
	got := string(buildListfile(names))
	want := "(listfile)\r\na.txt\r\nb.txt\r\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	// The input slice stays untouched.
	if names[0] != "b.txt" {
		t.Errorf("input reordered")
	}
}

func TestListfileRoundTrip(t *testing.T) {
	names := []string{"Data\\A.txt", "Data\\B.txt", "war3map.j"}
	parsed := parseListfile(buildListfile(names))
	if !reflect.DeepEqual(parsed, names) {
		t.Errorf("round trip: got %v, want %v", parsed, names)
	}
}
