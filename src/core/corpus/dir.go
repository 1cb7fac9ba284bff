package corpus

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"pdfchat/src/fsutil"
)

const pdfExt = ".pdf"

// DirSource reads the PDF files under a local directory, recursively.
type DirSource struct {
	files fsutil.FileStore
	dir   string
}

func NewDirSource(files fsutil.FileStore, dir string) *DirSource {
	return &DirSource{files: files, dir: dir}
}

func (s *DirSource) Location() string {
	return s.dir
}

func (s *DirSource) List(_ context.Context) ([]Object, error) {
	if err := s.files.MakeDirectory(s.dir); err != nil {
		return nil, err
	}

	files, err := s.files.ListFiles(s.dir, pdfExt)
	if err != nil {
		return nil, err
	}

	objects := make([]Object, len(files))
	for i, f := range files {
		objects[i] = Object{Name: f.Path, Size: f.Size}
	}
	return objects, nil
}

func (s *DirSource) Open(_ context.Context, name string) (io.ReadCloser, error) {
	return s.files.ReadFileAsStream(name)
}

// Put stores r as a PDF in the directory and returns its corpus name.
func (s *DirSource) Put(_ context.Context, name string, r io.Reader, _ int64) (string, error) {
	base := filepath.Base(name)
	if base == "." || base == string(filepath.Separator) || !strings.EqualFold(filepath.Ext(base), pdfExt) {
		return "", fmt.Errorf("invalid file name %q: %w", name, ErrNotPDF)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read upload: %w", err)
	}

	path := filepath.Join(s.dir, base)
	if err := s.files.WriteFile(path, data); err != nil {
		return "", fmt.Errorf("failed to store %s: %w", path, err)
	}
	return path, nil
}
