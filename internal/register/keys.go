package register

import (
	"encoding/hex"
	"strings"
)

const (
	metaPrefix = "register:"
	blobPrefix = "registers/r"
)

// MetaKey maps a register name to its metadata key. The empty name is the
// default register. Other state (the lock) lives under prefixes that cannot
// start with "register:".
func MetaKey(name string) string { return metaPrefix + name }

// NameFromKey inverts MetaKey.
func NameFromKey(key string) (string, bool) {
	if !strings.HasPrefix(key, metaPrefix) {
		return "", false
	}
	return key[len(metaPrefix):], true
}

// BlobKey is the blob object holding a register's file bytes. Hex keeps every
// name, including "" and names with slashes, a valid object key.
func BlobKey(name string) string { return blobPrefix + hex.EncodeToString([]byte(name)) }
