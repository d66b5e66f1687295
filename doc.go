// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

/*
Package mpq provides pure Go support for reading and writing MPQ (Mo'PaQ) archives.

MPQ is an archive format created by Blizzard Entertainment, used in games like
Diablo, StarCraft, and World of Warcraft. This package supports all four MPQ
format versions, from the original Diablo layout through the Cataclysm-era
V4 archives with HET/BET lookup tables and MD5-checked tables.

# Features

  - Read archives in format V1 through V4, including user data headers
  - Write archives in any of the four versions, with HET/BET emission for V3+
  - Zlib, bzip2, LZMA and sparse compression; PKWare DCL decompression
  - Encrypted files, including FIX_KEY position-adjusted keys
  - Sector CRC verification and generation
  - In-place modification: add, remove, rename and compact
  - Patch chains with priority ordering and delete-marker shadowing
  - Parallel bulk extraction

# Basic Usage

Creating an archive:

	w, err := mpq.Create("patch.mpq")
	if err != nil {
		log.Fatal(err)
	}

	err = w.AddFile("local/file.txt", "Data\\file.txt", mpq.AddFileOptions{})
	if err != nil {
		log.Fatal(err)
	}
	if err := w.Close(); err != nil {
		log.Fatal(err)
	}

Reading an archive:

	archive, err := mpq.Open("game.mpq")
	if err != nil {
		log.Fatal(err)
	}
	defer archive.Close()

	if archive.HasFile("Data\\file.txt") {
		err = archive.ExtractFile("Data\\file.txt", "output/file.txt")
		if err != nil {
			log.Fatal(err)
		}
	}

Layering patches the way game clients do:

	chain := mpq.NewPatchChain()
	chain.AddArchive("common.mpq", 0)
	chain.AddArchive("patch.mpq", 100)
	chain.AddArchive("patch-2.mpq", 200)
	defer chain.Close()

	data, err := chain.ReadFile("DBFilesClient\\Spell.dbc")

# Format Versions

Use [Create] for V1 archives (compatible with all games) or
[CreateWithOptions] to pick V2 (>4GB offsets), V3 (HET/BET tables) or V4
(table and header MD5 digests). Opening detects the version from the
header.

# Path Conventions

MPQ archives use backslash (\) as the path separator and compare paths
case-insensitively. This package converts forward slashes automatically,
so both forms work:

	w.AddFileData("Data\\SubDir\\file.txt", data, opts)  // Native MPQ format
	w.AddFileData("Data/SubDir/file.txt", data, opts)    // Also works

# Limitations

  - No support for ADPCM or huffman compression (audio-era codecs)
  - PKWare DCL is decompress-only
  - No support for V4 archives whose hash/block tables are compressed
  - Digital signatures are parsed but not cryptographically verified
*/
package mpq
