// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// SignatureInfo contains parsed signature data from the (signature) file.
type SignatureInfo struct {
	Version   uint32
	Signature []byte
}

// ReadSignature reads and parses the (signature) special file if present.
// Returns nil if the signature file doesn't exist.
func (a *Archive) ReadSignature() (*SignatureInfo, error) {
	data, err := a.ReadFile(signatureName)
	if err != nil {
		if errors.Is(err, ErrFileNotFound) {
			return nil, nil
		}
		return nil, err
	}

	if len(data) < 8 {
		return nil, invalidFormatf("signature data too small: %d bytes", len(data))
	}

	version := binary.LittleEndian.Uint32(data[0:4])
	sigLength := binary.LittleEndian.Uint32(data[4:8])

	if uint64(len(data)) < 8+uint64(sigLength) {
		return nil, invalidFormatf("signature data truncated: expected %d bytes, got %d",
			8+sigLength, len(data))
	}

	signature := make([]byte, sigLength)
	copy(signature, data[8:8+sigLength])

	return &SignatureInfo{
		Version:   version,
		Signature: signature,
	}, nil
}

// VerifySignature performs structural signature validation: the signature
// must be present and sized for its declared scheme. Cryptographic
// verification against the publisher key is out of scope.
func (s *SignatureInfo) VerifySignature() error {
	if s == nil {
		return fmt.Errorf("no signature available")
	}
	if len(s.Signature) == 0 {
		return fmt.Errorf("empty signature")
	}

	switch s.Version {
	case 0: // Weak signature (512-bit RSA over MD5)
		if len(s.Signature) < 64 {
			return fmt.Errorf("weak signature too short: %d bytes", len(s.Signature))
		}
	case 1: // Strong signature (2048-bit RSA over SHA-1)
		if len(s.Signature) < 256 {
			return fmt.Errorf("strong signature too short: %d bytes", len(s.Signature))
		}
	default:
		return fmt.Errorf("unknown signature version: %d", s.Version)
	}
	return nil
}
