package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
)

// maxZipEntryBytes bounds how much of a single archive member is read.
const maxZipEntryBytes = 64 << 20

func readAll(rc io.ReadCloser) ([]byte, error) {
	defer rc.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(io.LimitReader(rc, maxZipEntryBytes)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		data, err := readAll(rc)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%s not found", name)
}
