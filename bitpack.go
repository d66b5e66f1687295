// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

// readBits extracts bitCount bits starting at an absolute bit position in a
// little-endian bit-packed array. Returns false when the range falls outside
// the array or bitCount exceeds 64.
func readBits(data []byte, bitPos int, bitCount uint32) (uint64, bool) {
	if bitCount == 0 {
		return 0, true
	}
	if bitCount > 64 {
		return 0, false
	}

	byteOffset := bitPos / 8
	bitShift := bitPos % 8
	bytesNeeded := (bitShift + int(bitCount) + 7) / 8
	if byteOffset+bytesNeeded > len(data) {
		return 0, false
	}

	var value uint64
	n := bytesNeeded
	if n > 8 {
		n = 8
	}
	for i := 0; i < n; i++ {
		value |= uint64(data[byteOffset+i]) << (i * 8)
	}

	// A 64-bit window can lose high bits when the field straddles 9 bytes;
	// recover them from the ninth byte.
	if bytesNeeded > 8 {
		value = value>>bitShift | uint64(data[byteOffset+8])<<(64-bitShift)
		if bitCount < 64 {
			value &= uint64(1)<<bitCount - 1
		}
		return value, true
	}

	value >>= uint(bitShift)
	if bitCount < 64 {
		value &= uint64(1)<<bitCount - 1
	}
	return value, true
}

// writeBits stores the low bitCount bits of value at an absolute bit
// position, leaving surrounding bits intact.
func writeBits(data []byte, bitPos int, value uint64, bitCount uint32) bool {
	if bitCount == 0 {
		return true
	}
	if bitCount > 64 {
		return false
	}

	byteOffset := bitPos / 8
	bitShift := bitPos % 8
	bytesNeeded := (bitShift + int(bitCount) + 7) / 8
	if byteOffset+bytesNeeded > len(data) {
		return false
	}

	mask := uint64(1)<<bitCount - 1
	if bitCount == 64 {
		mask = ^uint64(0)
	}
	value &= mask

	n := bytesNeeded
	if n > 8 {
		n = 8
	}
	var existing uint64
	for i := 0; i < n; i++ {
		existing |= uint64(data[byteOffset+i]) << (i * 8)
	}
	existing &^= mask << bitShift
	existing |= value << bitShift
	for i := 0; i < n; i++ {
		data[byteOffset+i] = byte(existing >> (i * 8))
	}

	if bytesNeeded > 8 {
		spill := uint32(bitShift) + bitCount - 64
		spillMask := byte(1)<<spill - 1
		data[byteOffset+8] = data[byteOffset+8]&^spillMask |
			byte(value>>(64-uint(bitShift)))&spillMask
	}
	return true
}

// bitsNeeded returns the minimum field width able to represent maxValue.
func bitsNeeded(maxValue uint64) uint32 {
	bits := uint32(1)
	for maxValue > 1 {
		maxValue >>= 1
		bits++
	}
	return bits
}
