// Package archive decodes an in-memory zip archive into lazily readable entries.
package archive

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/tendant/catalog-ingest-pipeline/pkg/pipeline"
)

// Entry is one file in the archive. Content is decompressed on demand.
type Entry struct {
	Path string
	file *zip.File
}

// Bytes decompresses the entry
func (e *Entry) Bytes() ([]byte, error) {
	rc, err := e.file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", e.Path, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", e.Path, err)
	}
	return data, nil
}

// Text decompresses the entry as a string
func (e *Entry) Text() (string, error) {
	data, err := e.Bytes()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Size returns the uncompressed size recorded in the archive
func (e *Entry) Size() int64 {
	return int64(e.file.UncompressedSize64)
}

// Archive is the decoded archive, in central directory order
type Archive struct {
	entries []*Entry
	byPath  map[string]*Entry
}

// Open decodes raw archive bytes. Directories and macOS resource-fork
// entries are not exposed.
func Open(data []byte) (*Archive, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pipeline.ErrArchiveFormat, err)
	}

	a := &Archive{byPath: make(map[string]*Entry, len(zr.File))}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		p := NormalizePath(f.Name)
		if p == "" || isResourceFork(p) {
			continue
		}
		if _, dup := a.byPath[p]; dup {
			continue
		}
		e := &Entry{Path: p, file: f}
		a.entries = append(a.entries, e)
		a.byPath[p] = e
	}
	return a, nil
}

// Entries returns every entry in archive order
func (a *Archive) Entries() []*Entry {
	return a.entries
}

// Get returns the entry at path
func (a *Archive) Get(path string) (*Entry, bool) {
	e, ok := a.byPath[NormalizePath(path)]
	return e, ok
}

// Len returns the number of entries
func (a *Archive) Len() int {
	return len(a.entries)
}

// NormalizePath converts an archive name to a forward-slash relative path
func NormalizePath(name string) string {
	p := strings.ReplaceAll(name, "\\", "/")
	p = strings.TrimPrefix(p, "./")
	return strings.TrimLeft(p, "/")
}

func isResourceFork(p string) bool {
	if strings.HasPrefix(p, "__MACOSX/") {
		return true
	}
	base := p[strings.LastIndex(p, "/")+1:]
	return strings.HasPrefix(base, "._")
}
