// Package digest provides the SHA-256 and HMAC-SHA256 primitives used to
// sign S3 requests and to content-address uploaded objects.
package digest

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
)

// SHA256Hex returns the lower-case hexadecimal SHA-256 digest of data.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return HexEncode(sum[:])
}

// SHA256HexReader streams r through SHA-256 and returns the lower-case
// hexadecimal digest along with the number of bytes read.
func SHA256HexReader(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, err
	}
	return HexEncode(h.Sum(nil)), n, nil
}

// HmacSHA256 computes the raw HMAC-SHA256 of message under key. Text keys
// must be converted to their UTF-8 bytes by the caller.
func HmacSHA256(key []byte, message []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(message)
	return h.Sum(nil)
}

// HexEncode renders b as two lower-case hex digits per byte.
func HexEncode(b []byte) string {
	return hex.EncodeToString(b)
}
