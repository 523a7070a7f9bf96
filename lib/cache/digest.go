// Copyright 2026 The Streamfleet Authors
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// metaDomainKey is the 32-byte key for BLAKE3 keyed hashing of
// metadata blobs. Domain separation keeps cache digests from ever
// colliding with digests computed over the same bytes elsewhere. The
// value is the ASCII domain name, zero-padded — readable in hex dumps
// without weakening the keyed mode, which treats the key as opaque.
var metaDomainKey = [32]byte{
	's', 't', 'r', 'e', 'a', 'm', 'f', 'l', 'e', 'e', 't', '.',
	'c', 'a', 'c', 'h', 'e', '.', 'm', 'e', 't', 'a', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// DigestMeta computes the hex-encoded BLAKE3 keyed digest of a
// metadata blob. Deterministic CBOR encoding (lib/codec) guarantees
// the same logical entry always digests identically.
func DigestMeta(blob []byte) string {
	// NewKeyed only fails for a wrong key length, which the fixed
	// array rules out.
	hasher, err := blake3.NewKeyed(metaDomainKey[:])
	if err != nil {
		panic("cache: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(blob)
	return hex.EncodeToString(hasher.Sum(nil))
}
