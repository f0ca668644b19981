package media

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"vidgen/utils"
)

// DiskStore writes each video to its own file under dir.
type DiskStore struct {
	*index
	dir string
}

func NewDiskStore(dir, prefix string) (*DiskStore, error) {
	abs, err := utils.SafeSubdir(dir, "")
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &DiskStore{index: newIndex(prefix), dir: abs}, nil
}

func (s *DiskStore) path(id string) (string, error) {
	return utils.SafeSubdir(s.dir, id+".bin")
}

func (s *DiskStore) Put(_ context.Context, obj Object) (Handle, error) {
	h := s.issue(obj)

	finalPath, err := s.path(h.ID)
	if err != nil {
		return Handle{}, err
	}
	tmpPath := finalPath + ".part"

	if err := os.WriteFile(tmpPath, obj.Data, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return Handle{}, fmt.Errorf("write media: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return Handle{}, fmt.Errorf("write media: %w", err)
	}

	s.add(h)
	return h, nil
}

func (s *DiskStore) Open(_ context.Context, id string) (Object, error) {
	h, ok := s.get(id)
	if !ok {
		return Object{}, ErrNotFound
	}
	p, err := s.path(id)
	if err != nil {
		return Object{}, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Object{}, ErrNotFound
		}
		return Object{}, fmt.Errorf("read media: %w", err)
	}
	return Object{Data: data, ContentType: h.ContentType, Filename: h.Filename}, nil
}

func (s *DiskStore) Release(_ context.Context, id string) error {
	if _, ok := s.remove(id); !ok {
		return ErrNotFound
	}
	p, err := s.path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove media: %w", err)
	}
	return nil
}

// Dir is where files land.
func (s *DiskStore) Dir() string {
	return filepath.Clean(s.dir)
}

var _ Store = (*DiskStore)(nil)
