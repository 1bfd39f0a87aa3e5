package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// walSuffixes are the SQLite sidecar files written in WAL mode.
var walSuffixes = []string{"-wal", "-shm"}

// Usage is the on-disk footprint of the database and the catalog index.
type Usage struct {
	DatabaseBytes int64 `json:"database_bytes"`
	CatalogBytes  int64 `json:"catalog_bytes"`
}

// Total returns the combined size.
func (u Usage) Total() int64 {
	return u.DatabaseBytes + u.CatalogBytes
}

// MeasureUsage sizes the database file (including its WAL sidecars) and the catalog
// index directory. Missing paths count as zero, so a fresh install reports 0.
func MeasureUsage(dbPath, catalogPath string) (Usage, error) {
	var u Usage
	for _, p := range append([]string{dbPath}, sidecars(dbPath)...) {
		n, err := pathSize(p)
		if err != nil {
			return Usage{}, err
		}
		u.DatabaseBytes += n
	}
	n, err := pathSize(catalogPath)
	if err != nil {
		return Usage{}, err
	}
	u.CatalogBytes = n
	return u, nil
}

func sidecars(dbPath string) []string {
	if dbPath == "" {
		return nil
	}
	out := make([]string, len(walSuffixes))
	for i, s := range walSuffixes {
		out[i] = dbPath + s
	}
	return out
}

// pathSize returns the size of a file, or of every regular file under a directory.
func pathSize(p string) (int64, error) {
	if p == "" {
		return 0, nil
	}
	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		return info.Size(), nil
	}
	var total int64
	err = filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			fi, err := d.Info()
			if err != nil {
				return err
			}
			total += fi.Size()
		}
		return nil
	})
	return total, err
}
