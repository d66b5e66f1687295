// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package mpq

import "testing"

func TestVerifySignature(t *testing.T) {
	tests := []struct {
		name    string
		info    *SignatureInfo
		wantErr bool
	}{
		{"nil", nil, true},
		{"empty", &SignatureInfo{Version: 0}, true},
		{"weak ok", &SignatureInfo{Version: 0, Signature: make([]byte, 64)}, false},
		{"weak short", &SignatureInfo{Version: 0, Signature: make([]byte, 32)}, true},
		{"strong ok", &SignatureInfo{Version: 1, Signature: make([]byte, 256)}, false},
		{"strong short", &SignatureInfo{Version: 1, Signature: make([]byte, 128)}, true},
		{"unknown version", &SignatureInfo{Version: 9, Signature: make([]byte, 256)}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.info.VerifySignature()
			if (err != nil) != tc.wantErr {
				t.Errorf("got err %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
