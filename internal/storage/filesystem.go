package storage

import (
	"os"
)

func CopyFile(srcPath string, destPath string) error {
	srcFile, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	destFile, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer destFile.Close()

	_, err = destFile.ReadFrom(srcFile)
	return err
}

// CopyOrLinkFile hard links srcPath to destPath, falling back to a copy when
// linking is not possible.
func CopyOrLinkFile(srcPath string, destPath string) error {
	if srcPath == destPath {
		return nil
	}

	// An existing destination must be unlinked first, otherwise writing
	// through it could truncate a payload shared with another bucket.
	if err := os.Remove(destPath); err != nil && !os.IsNotExist(err) {
		return err
	}

	if err := os.Link(srcPath, destPath); err == nil {
		return nil
	}

	return CopyFile(srcPath, destPath)
}
