// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"crypto/md5"
	"hash/adler32"
	"hash/crc32"
)

// sectorChecksum computes the per-sector checksum stored in the optional
// sector CRC table. Despite the flag name, the algorithm is ADLER32.
func sectorChecksum(data []byte) uint32 {
	return adler32.Checksum(data)
}

// fileCrc32 computes the CRC32 stored per file in (attributes).
func fileCrc32(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// tableMD5 computes the digest stored in the V4 header for a raw table.
func tableMD5(data []byte) [16]byte {
	return md5.Sum(data)
}

// verifyTableMD5 checks a stored V4 digest. An all-zero digest counts as
// absent and always passes.
func verifyTableMD5(data []byte, want [16]byte) bool {
	if want == ([16]byte{}) {
		return true
	}
	return md5.Sum(data) == want
}
