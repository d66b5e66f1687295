// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
)

func TestNewHashTableValidatesSize(t *testing.T) {
	for _, size := range []uint32{0, 3, 12, 100} {
		if _, err := newHashTable(size); err == nil {
			t.Errorf("size %d accepted, want error", size)
		}
	}
	for _, size := range []uint32{1, 16, 1024} {
		if _, err := newHashTable(size); err != nil {
			t.Errorf("size %d rejected: %v", size, err)
		}
	}
}

func TestHashTableInsertFindRemove(t *testing.T) {
	tab, err := newHashTable(16)
	if err != nil {
		t.Fatalf("new table: %v", err)
	}

	names := []string{
		"war3map.j",
		"war3map.w3e",
		"Units\\UnitData.slk",
		"Abilities\\Spells\\Human\\Heal\\Heal.mdx",
		"(listfile)",
	}
	for i, name := range names {
		if _, err := tab.insert(name, localeNeutral, uint32(i)); err != nil {
			t.Fatalf("insert %s: %v", name, err)
		}
	}

	for i, name := range names {
		slot, ok := tab.find(name, localeNeutral)
		if !ok {
			t.Fatalf("%s not found", name)
		}
		if tab.entries[slot].BlockIndex != uint32(i) {
			t.Errorf("%s: block index %d, want %d", name, tab.entries[slot].BlockIndex, i)
		}
	}

	// Remove one; the rest stay reachable through the tombstone.
	blockIndex, err := tab.remove(names[1], localeNeutral)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if blockIndex != 1 {
		t.Errorf("removed block index %d, want 1", blockIndex)
	}
	if _, ok := tab.find(names[1], localeNeutral); ok {
		t.Errorf("removed entry still found")
	}
	for _, name := range []string{names[0], names[2], names[3], names[4]} {
		if _, ok := tab.find(name, localeNeutral); !ok {
			t.Errorf("%s lost after unrelated removal", name)
		}
	}

	// Reinsertion lands on a tombstone, keeping the live count stable.
	before := len(tab.validEntries())
	if _, err := tab.insert(names[1], localeNeutral, 7); err != nil {
		t.Fatalf("reinsert: %v", err)
	}
	if got := len(tab.validEntries()); got != before+1 {
		t.Errorf("valid entries %d, want %d", got, before+1)
	}
}

func TestHashTableDuplicateInsert(t *testing.T) {
	tab, _ := newHashTable(16)
	if _, err := tab.insert("war3map.j", localeNeutral, 0); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := tab.insert("war3map.j", localeNeutral, 1); !errors.Is(err, ErrFileExists) {
		t.Errorf("duplicate insert: got %v, want ErrFileExists", err)
	}
	// A different locale is a separate entry.
	if _, err := tab.insert("war3map.j", 0x409, 1); err != nil {
		t.Errorf("locale variant rejected: %v", err)
	}
}

func TestHashTableFull(t *testing.T) {
	tab, _ := newHashTable(16)
	for i := 0; i < 16; i++ {
		name := fmt.Sprintf("File%02d.txt", i)
		if _, err := tab.insert(name, localeNeutral, uint32(i)); err != nil {
			t.Fatalf("insert %s: %v", name, err)
		}
	}
	if _, err := tab.insert("OneTooMany.txt", localeNeutral, 16); !errors.Is(err, ErrHashTable) {
		t.Errorf("overfull insert: got %v, want ErrHashTable", err)
	}
}

func TestHashTableLocaleFallback(t *testing.T) {
	tab, _ := newHashTable(16)
	tab.insert("UI\\Strings.txt", localeNeutral, 0)
	tab.insert("UI\\Strings.txt", 0x40C, 1)

	slot, ok := tab.find("UI\\Strings.txt", 0x40C)
	if !ok || tab.entries[slot].BlockIndex != 1 {
		t.Errorf("exact locale lookup failed")
	}
	slot, ok = tab.find("UI\\Strings.txt", 0x409)
	if !ok || tab.entries[slot].BlockIndex != 0 {
		t.Errorf("neutral fallback failed")
	}
}

func TestHashTableNeutralQueryWildcard(t *testing.T) {
	tab, _ := newHashTable(16)
	tab.insert("UI\\French.txt", 0x40C, 7)

	// A neutral query matches an entry stored under any locale.
	slot, ok := tab.find("UI\\French.txt", localeNeutral)
	if !ok || tab.entries[slot].BlockIndex != 7 {
		t.Errorf("neutral query missed the locale-specific entry")
	}

	// A specific query without an exact or neutral entry finds nothing.
	if _, ok := tab.find("UI\\French.txt", 0x409); ok {
		t.Errorf("mismatched specific locales matched")
	}
}

func TestHashTableWriteReadRoundTrip(t *testing.T) {
	tab, _ := newHashTable(16)
	tab.insert("war3map.j", localeNeutral, 0)
	tab.insert("war3map.w3e", 0x409, 1)
	tab.remove("war3map.j", localeNeutral)

	var buf bytes.Buffer
	if err := tab.write(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	if buf.Len() != 16*hashEntrySize {
		t.Fatalf("encoded size %d, want %d", buf.Len(), 16*hashEntrySize)
	}

	decoded, err := readHashTable(buf.Bytes(), 16)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for i := range tab.entries {
		if decoded.entries[i] != tab.entries[i] {
			t.Errorf("slot %d differs after round trip", i)
		}
	}
	if _, ok := decoded.find("war3map.w3e", 0x409); !ok {
		t.Errorf("entry lost in round trip")
	}
	if _, ok := decoded.find("war3map.j", localeNeutral); ok {
		t.Errorf("tombstoned entry resurrected")
	}
}
