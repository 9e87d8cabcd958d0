package archive

import (
	"bytes"

	"github.com/klauspost/compress/zip"
)

// File is a name/content pair used to build archives
type File struct {
	Name string
	Body []byte
}

// Build writes files into a zip archive in the given order
func Build(files ...File) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		w, err := zw.Create(f.Name)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(f.Body); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
