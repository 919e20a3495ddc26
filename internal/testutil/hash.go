package testutil

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// BLAKE3Hex returns the BLAKE3-256 checksum of data as a lowercase hex string.
// Matches the checksum format recorded for backups.
func BLAKE3Hex(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
