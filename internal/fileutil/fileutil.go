// Package fileutil holds small file helpers shared by the model store.
package fileutil

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteAtomic streams r into a hidden temporary sibling of dst, syncs it,
// and renames it into place. On any failure the temporary file is removed,
// so dst is either untouched or complete.
func WriteAtomic(dst string, r io.Reader) (written int64, err error) {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".*.part")
	if err != nil {
		return 0, fmt.Errorf("create temp: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if written, err = io.Copy(tmp, r); err != nil {
		return written, err
	}
	if err = tmp.Sync(); err != nil {
		return written, err
	}
	if err = tmp.Chmod(0o644); err != nil {
		return written, err
	}
	if err = tmp.Close(); err != nil {
		return written, err
	}
	if err = os.Rename(tmp.Name(), dst); err != nil {
		return written, err
	}
	return written, nil
}

// CopyFileVerified copies src to dst atomically, then re-reads dst and
// compares its size and SHA-256 with what was read from src. A mismatch
// removes dst.
func CopyFileVerified(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	srcSum := sha256.New()
	written, err := WriteAtomic(dst, io.TeeReader(in, srcSum))
	if err != nil {
		return err
	}

	dstSum, dstSize, err := hashFile(dst)
	if err != nil {
		_ = os.Remove(dst)
		return fmt.Errorf("verify copy: %w", err)
	}
	if dstSize != written {
		_ = os.Remove(dst)
		return fmt.Errorf("verify copy: read %d bytes from source, destination has %d", written, dstSize)
	}
	if !bytes.Equal(srcSum.Sum(nil), dstSum) {
		_ = os.Remove(dst)
		return fmt.Errorf("verify copy: checksum mismatch for %s", dst)
	}
	return nil
}

func hashFile(path string) ([]byte, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()
	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return nil, 0, err
	}
	return h.Sum(nil), n, nil
}
