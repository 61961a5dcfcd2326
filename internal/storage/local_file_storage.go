package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// LocalFileStorage is an Engine rooted at dataDir. Payloads live at
// <dataDir>/<bucket>/<hash[:2]>/<hash>, and identical payloads in different
// buckets share one inode.
type LocalFileStorage struct {
	dataDir string
}

func NewLocalFileStorage(dataDir string) *LocalFileStorage {
	return &LocalFileStorage{dataDir: dataDir}
}

// ObjectPath computes the filesystem path for hashHex within bucket.
func ObjectPath(directory string, bucket string, hashHex string) (string, error) {
	if len(hashHex) < 2 {
		return "", fmt.Errorf("invalid hash length: %d", len(hashHex))
	}
	return filepath.Join(directory, bucket, hashHex[:2], hashHex), nil
}

// LocateExistingObject returns payloads in other buckets with the same hash
// and size as the target.
func LocateExistingObject(directory string, targetObject string, hashHex string, size int64) []string {
	pattern := filepath.Join(directory, "*", hashHex[:2], hashHex)
	matches, _ := filepath.Glob(pattern)

	results := make([]string, 0, len(matches))
	for _, existing := range matches {
		if existing == targetObject {
			continue
		}

		info, err := os.Stat(existing)
		if err != nil || !info.Mode().IsRegular() || info.Size() != size {
			continue
		}

		results = append(results, existing)
	}

	return results
}

func (s *LocalFileStorage) PutObject(bucket string, hashHex string, data []byte) error {
	objPath, err := ObjectPath(s.dataDir, bucket, hashHex)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(objPath), 0o755); err != nil {
		return err
	}

	for _, existing := range LocateExistingObject(s.dataDir, objPath, hashHex, int64(len(data))) {
		if err := CopyOrLinkFile(existing, objPath); err == nil {
			return nil
		}
	}

	return os.WriteFile(objPath, data, 0o644)
}

func (s *LocalFileStorage) GetObject(bucket string, hashHex string) ([]byte, error) {
	objPath, err := ObjectPath(s.dataDir, bucket, hashHex)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(objPath)
}

func (s *LocalFileStorage) DeleteBucket(bucket string) error {
	return os.RemoveAll(filepath.Join(s.dataDir, bucket))
}
