// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import "math/bits"

// normalizeForJenkins lowercases a filename and converts forward slashes
// to backslashes, the canonical form both Jenkins hashes operate on.
func normalizeForJenkins(filename string) []byte {
	out := make([]byte, len(filename))
	for i := 0; i < len(filename); i++ {
		ch := filename[i]
		if ch == '/' {
			ch = '\\'
		}
		if ch >= 'A' && ch <= 'Z' {
			ch += 0x20
		}
		out[i] = ch
	}
	return out
}

// jenkinsOneAtATime computes the 64-bit Jenkins one-at-a-time hash of a
// normalized filename. BET tables store this value for final verification
// of HET lookup candidates.
func jenkinsOneAtATime(filename string) uint64 {
	var hash uint64
	for _, ch := range normalizeForJenkins(filename) {
		hash += uint64(ch)
		hash += hash << 10
		hash ^= hash >> 6
	}
	hash += hash << 3
	hash ^= hash >> 11
	hash += hash << 15
	return hash
}

// jenkinsHashlittle2 computes the HET lookup hash of a filename: Jenkins
// hashlittle2 over the normalized bytes with primary/secondary seeds 1 and 2,
// combined into a 64-bit value, masked to hashBits with the top bit forced
// set so a stored hash is never indistinguishable from an empty slot.
// Returns the masked hash and NameHash1, its top 8 bits.
func jenkinsHashlittle2(filename string, hashBits uint32) (uint64, uint8) {
	primary := uint32(1)
	secondary := uint32(2)
	hashlittle2(normalizeForJenkins(filename), &secondary, &primary)

	fullHash := uint64(primary)<<32 | uint64(secondary)

	if hashBits < 64 {
		andMask := uint64(1)<<hashBits - 1
		orMask := uint64(1) << (hashBits - 1)
		fullHash = fullHash&andMask | orMask
		return fullHash, uint8(fullHash >> (hashBits - 8))
	}
	return fullHash, uint8(fullHash >> 56)
}

// hashlittle2 is Bob Jenkins' lookup3 hashlittle2, bit-exact with the
// reference C so stored HET hashes from real archives match.
func hashlittle2(key []byte, pc, pb *uint32) {
	length := uint32(len(key))
	a := 0xdeadbeef + length + *pc
	b := a
	c := a + *pb

	k := key
	for len(k) > 12 {
		a += le32(k[0:])
		b += le32(k[4:])
		c += le32(k[8:])

		a -= c
		a ^= bits.RotateLeft32(c, 4)
		c += b
		b -= a
		b ^= bits.RotateLeft32(a, 6)
		a += c
		c -= b
		c ^= bits.RotateLeft32(b, 8)
		b += a
		a -= c
		a ^= bits.RotateLeft32(c, 16)
		c += b
		b -= a
		b ^= bits.RotateLeft32(a, 19)
		a += c
		c -= b
		c ^= bits.RotateLeft32(b, 4)
		b += a

		k = k[12:]
	}

	// Last block: the reference reads whole aligned words and masks, which
	// is equivalent to zero-padding the tail.
	var last [12]byte
	copy(last[:], k)
	switch len(k) {
	case 12:
		c += le32(last[8:])
		b += le32(last[4:])
		a += le32(last[0:])
	case 11:
		c += uint32(last[10]) << 16
		fallthrough
	case 10:
		c += uint32(last[9]) << 8
		fallthrough
	case 9:
		c += uint32(last[8])
		fallthrough
	case 8:
		b += le32(last[4:])
		a += le32(last[0:])
	case 7:
		b += uint32(last[6]) << 16
		fallthrough
	case 6:
		b += uint32(last[5]) << 8
		fallthrough
	case 5:
		b += uint32(last[4])
		fallthrough
	case 4:
		a += le32(last[0:])
	case 3:
		a += uint32(last[2]) << 16
		fallthrough
	case 2:
		a += uint32(last[1]) << 8
		fallthrough
	case 1:
		a += uint32(last[0])
	case 0:
		// Zero remaining bytes: skip the final mix entirely.
		*pc = c
		*pb = b
		return
	}

	// final mix
	c ^= b
	c -= bits.RotateLeft32(b, 14)
	a ^= c
	a -= bits.RotateLeft32(c, 11)
	b ^= a
	b -= bits.RotateLeft32(a, 25)
	c ^= b
	c -= bits.RotateLeft32(b, 16)
	a ^= c
	a -= bits.RotateLeft32(c, 4)
	b ^= a
	b -= bits.RotateLeft32(a, 14)
	c ^= b
	c -= bits.RotateLeft32(b, 24)

	*pc = c
	*pb = b
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
