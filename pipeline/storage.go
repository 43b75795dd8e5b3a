package pipeline

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Artifact kinds double as subdirectories of the storage root.
const (
	ArtifactCertificateSource = "certificates/source"
	ArtifactCertificateFinal  = "certificates/final"
	ArtifactTranscriptSource  = "transcripts/source"
	ArtifactTranscriptFinal   = "transcripts/final"
	ArtifactTemplate          = "templates"
)

// Store abstracts where artifacts live so the pipeline never branches on
// the storage backend. A locator is whatever Resolve accepts back.
type Store interface {
	Persist(kind string, srcPath string) (string, error)
	PersistBytes(kind string, ext string, data []byte) (string, error)
	Resolve(locator string) (io.ReadCloser, error)
}

// LocalStore keeps artifacts on the local filesystem under Root. Writes go
// to a tmp area first and are renamed into place only after a full, synced
// write, so a recorded locator always points at a complete file.
type LocalStore struct {
	Root string
}

// NewLocalStore creates the storage root and tmp area if missing.
func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(filepath.Join(root, "tmp"), 0755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifactPersist, err)
	}
	return &LocalStore{Root: root}, nil
}

// Persist copies the file at srcPath into the store under kind and returns
// its locator.
func (s *LocalStore) Persist(kind string, srcPath string) (string, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrArtifactPersist, err)
	}
	defer src.Close()

	return s.publish(kind, filepath.Ext(srcPath), src)
}

// PersistBytes writes data into the store under kind and returns its locator.
func (s *LocalStore) PersistBytes(kind string, ext string, data []byte) (string, error) {
	return s.publish(kind, ext, bytes.NewReader(data))
}

// Resolve opens a locator previously returned by Persist for reading.
func (s *LocalStore) Resolve(locator string) (io.ReadCloser, error) {
	return os.Open(locator)
}

// publish streams src to a tmp file, syncs it, then renames it into its
// final location. The rename is the atomic publish step.
func (s *LocalStore) publish(kind string, ext string, src io.Reader) (string, error) {
	tmpPath := filepath.Join(s.Root, "tmp", uuid.NewString()+ext)

	dst, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrArtifactPersist, err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("%w: %v", ErrArtifactPersist, err)
	}
	if err := dst.Sync(); err != nil {
		dst.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("%w: %v", ErrArtifactPersist, err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("%w: %v", ErrArtifactPersist, err)
	}

	finalDir := filepath.Join(s.Root, kind)
	if err := os.MkdirAll(finalDir, 0755); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("%w: %v", ErrArtifactPersist, err)
	}

	finalPath := filepath.Join(finalDir, uuid.NewString()+ext)
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("%w: %v", ErrArtifactPersist, err)
	}

	return finalPath, nil
}
