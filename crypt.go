// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

// Hash types for the hash function
const (
	hashTypeTableOffset = 0
	hashTypeNameA       = 1
	hashTypeNameB       = 2
	hashTypeFileKey     = 3
)

// cryptTable is the encryption/hash lookup table
var cryptTable [0x500]uint32

func init() {
	// Initialize the encryption table using the standard MPQ algorithm
	seed := uint32(0x00100001)

	for index1 := 0; index1 < 0x100; index1++ {
		index2 := index1
		for i := 0; i < 5; i++ {
			seed = (seed*125 + 3) % 0x2AAAAB
			temp1 := (seed & 0xFFFF) << 0x10

			seed = (seed*125 + 3) % 0x2AAAAB
			temp2 := seed & 0xFFFF

			cryptTable[index2] = temp1 | temp2
			index2 += 0x100
		}
	}
}

// hashString computes the MPQ hash of a string
func hashString(s string, hashType uint32) uint32 {
	seed1 := uint32(0x7FED7FED)
	seed2 := uint32(0xEEEEEEEE)

	for i := 0; i < len(s); i++ {
		ch := uint32(s[i])
		// Convert to uppercase
		if ch >= 'a' && ch <= 'z' {
			ch -= 0x20
		}
		// Convert forward slashes to backslashes
		if ch == '/' {
			ch = '\\'
		}

		seed1 = cryptTable[hashType*0x100+ch] ^ (seed1 + seed2)
		seed2 = ch + seed1 + seed2 + (seed2 << 5) + 3
	}

	return seed1
}

// Table encryption keys. Both classic and HET/BET tables use these.
func hashTableKey() uint32  { return hashString("(hash table)", hashTypeFileKey) }
func blockTableKey() uint32 { return hashString("(block table)", hashTypeFileKey) }

// encryptBlock encrypts a block of data in place
func encryptBlock(data []uint32, key uint32) {
	seed := uint32(0xEEEEEEEE)

	for i := range data {
		seed += cryptTable[0x400+(key&0xFF)]
		plain := data[i]
		encrypted := plain ^ (key + seed)
		key = ((^key << 0x15) + 0x11111111) | (key >> 0x0B)
		seed = plain + seed + (seed << 5) + 3
		data[i] = encrypted
	}
}

// decryptBlock decrypts a block of data in place
func decryptBlock(data []uint32, key uint32) {
	seed := uint32(0xEEEEEEEE)

	for i := range data {
		seed += cryptTable[0x400+(key&0xFF)]
		encrypted := data[i]
		plain := encrypted ^ (key + seed)
		key = ((^key << 0x15) + 0x11111111) | (key >> 0x0B)
		seed = plain + seed + (seed << 5) + 3
		data[i] = plain
	}
}

// decryptBytes decrypts a byte slice in place. Trailing bytes past the
// last whole 32-bit word are left untouched, matching the cipher's
// word-granular contract.
func decryptBytes(data []byte, key uint32) {
	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = uint32(data[i*4]) |
			uint32(data[i*4+1])<<8 |
			uint32(data[i*4+2])<<16 |
			uint32(data[i*4+3])<<24
	}

	decryptBlock(words, key)

	for i := range words {
		data[i*4] = byte(words[i])
		data[i*4+1] = byte(words[i] >> 8)
		data[i*4+2] = byte(words[i] >> 16)
		data[i*4+3] = byte(words[i] >> 24)
	}
}

// encryptBytes encrypts a byte slice in place, the inverse of decryptBytes.
func encryptBytes(data []byte, key uint32) {
	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = uint32(data[i*4]) |
			uint32(data[i*4+1])<<8 |
			uint32(data[i*4+2])<<16 |
			uint32(data[i*4+3])<<24
	}

	encryptBlock(words, key)

	for i := range words {
		data[i*4] = byte(words[i])
		data[i*4+1] = byte(words[i] >> 8)
		data[i*4+2] = byte(words[i] >> 16)
		data[i*4+3] = byte(words[i] >> 24)
	}
}

// getFileKey computes the encryption key for a file based on its name
// (without path). When the fix-key flag is set the key is additionally
// adjusted by the file's position and size, which prevents key reuse
// across archives for files sharing a base name.
func getFileKey(filename string, blockOffset uint64, fileSize uint32, flags uint32) uint32 {
	plainName := filename
	if idx := lastIndexOfSlash(filename); idx >= 0 {
		plainName = filename[idx+1:]
	}

	key := hashString(plainName, hashTypeFileKey)

	if flags&fileFixKey != 0 {
		key = (key + uint32(blockOffset)) ^ fileSize
	}

	return key
}

// lastIndexOfSlash finds the last path separator in a string
func lastIndexOfSlash(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '\\' || s[i] == '/' {
			return i
		}
	}
	return -1
}
