package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const tempPrefix = ".tmp-"

// diskStore persists module bytes under dir, one file per checksum.
type diskStore struct {
	dir string
}

func (s *diskStore) path(c Checksum) string {
	return filepath.Join(s.dir, c.String())
}

// intact reports whether the file for c exists and still hashes to c.
func (s *diskStore) intact(c Checksum) bool {
	code, err := os.ReadFile(s.path(c))
	return err == nil && ChecksumOf(code) == c
}

// save writes code atomically. An intact file for c is left untouched; a
// missing or corrupted one is replaced.
func (s *diskStore) save(c Checksum, code []byte) error {
	if s.intact(c) {
		return nil
	}

	f, err := os.CreateTemp(s.dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()

	if _, err := f.Write(code); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write module: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync module: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close module: %w", err)
	}
	if err := os.Rename(tmp, s.path(c)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename module: %w", err)
	}
	return nil
}

func (s *diskStore) load(c Checksum) ([]byte, error) {
	return os.ReadFile(s.path(c))
}

// list returns the checksums of all stored modules. Files whose names are
// not checksums are skipped.
func (s *diskStore) list() ([]Checksum, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read wasm dir: %w", err)
	}

	out := make([]Checksum, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), tempPrefix) {
			continue
		}
		c, err := ParseChecksum(e.Name())
		if err != nil {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
