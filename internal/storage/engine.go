// Package storage keeps object payloads on the local filesystem, addressed by
// their SHA-256 hash.
package storage

// Engine stores payloads organized into buckets and identified by their
// SHA-256 hexadecimal hashes.
type Engine interface {
	// PutObject stores data under hashHex within bucket.
	PutObject(bucket string, hashHex string, data []byte) error

	// GetObject returns the payload previously stored under hashHex.
	GetObject(bucket string, hashHex string) ([]byte, error)

	// DeleteBucket removes every payload stored for bucket.
	DeleteBucket(bucket string) error
}
