package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"pdfchat/src/core/rag"
	"pdfchat/src/fsutil"
)

const (
	FileName       = "manifest.yaml"
	currentVersion = 1
)

var ErrNotFound = errors.New("index manifest not found")

// Manifest records how the vectors of an index were produced. It lives next to the
// index and is checked before the index is queried or extended.
type Manifest struct {
	Version   int       `json:"version" yaml:"version"`
	Embedding Embedding `json:"embedding" yaml:"embedding"`
	Backend   string    `json:"backend" yaml:"backend"`
	Chunking  Chunking  `json:"chunking" yaml:"chunking"`
	Chunks    int       `json:"chunks" yaml:"chunks"`
	LastRunID string    `json:"last_run_id,omitempty" yaml:"last_run_id,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

type Embedding struct {
	Provider   string `json:"provider" yaml:"provider"`
	Model      string `json:"model" yaml:"model"`
	Dimensions int    `json:"dimensions" yaml:"dimensions"`
}

type Chunking struct {
	Size    int `json:"size" yaml:"size"`
	Overlap int `json:"overlap" yaml:"overlap"`
}

// Check reports ErrManifestMismatch when the index was built by a different embedding
// configuration. A zero dims skips the dimension comparison.
func (m *Manifest) Check(provider, model string, dims int) error {
	if m.Embedding.Provider != provider || m.Embedding.Model != model {
		return fmt.Errorf("%w: index built with %s/%s, configured %s/%s",
			rag.ErrManifestMismatch, m.Embedding.Provider, m.Embedding.Model, provider, model)
	}
	if dims > 0 && m.Embedding.Dimensions > 0 && dims != m.Embedding.Dimensions {
		return fmt.Errorf("%w: index holds %d-dimensional vectors, model produced %d",
			rag.ErrManifestMismatch, m.Embedding.Dimensions, dims)
	}
	return nil
}

// Store persists a single manifest.
type Store interface {
	Load() (*Manifest, error)
	Save(m *Manifest) error
	Remove() error
}

// FileStore keeps the manifest as YAML in the index directory.
type FileStore struct {
	files fsutil.FileStore
	path  string
}

func NewFileStore(files fsutil.FileStore, dir string) *FileStore {
	return &FileStore{
		files: files,
		path:  filepath.Join(dir, FileName),
	}
}

func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Load() (*Manifest, error) {
	data, err := s.files.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", s.path, err)
	}
	return &m, nil
}

func (s *FileStore) Save(m *Manifest) error {
	if m.Version == 0 {
		m.Version = currentVersion
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := s.files.WriteFile(s.path, data); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

func (s *FileStore) Remove() error {
	if err := s.files.RemoveAll(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove manifest: %w", err)
	}
	return nil
}
