package storage

import "time"

// FileMetadata describes one file in a tree walk.
type FileMetadata struct {
	Path      string
	Checksum  string
	UpdatedAt time.Time
}

// Provider abstracts the on-disk trees (posts, site output, attachment
// mirror) so the engine and its tests can swap implementations.
type Provider interface {
	List(dir string) ([]FileMetadata, error)
	Read(path string) ([]byte, error)
	Write(path string, content []byte) error
	Delete(path string) error
	Move(oldPath, newPath string) error
	Abs(path string) (string, error)
}

// Verify *FS satisfies Provider at compile time.
var _ Provider = (*FS)(nil)
