package utils

import (
	"crypto/sha1"
	"encoding/hex"
	"strconv"
	"time"
)

// GenerateETag derives a weak validator from a row id and its last update.
func GenerateETag(id string, updatedAt time.Time) string {
	sum := sha1.Sum([]byte(id + "|" + strconv.FormatInt(updatedAt.UnixNano(), 10)))
	return `W/"` + hex.EncodeToString(sum[:]) + `"`
}
