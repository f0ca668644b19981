// Package media keeps downloaded video bytes addressable for the lifetime of
// the session, the way a browser blob URL would.
package media

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("media not found")

// Object is the payload handed to or read back from a store.
type Object struct {
	Data        []byte
	ContentType string
	Filename    string
}

// Handle is the playable reference returned to the UI.
type Handle struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
}

type Store interface {
	Put(ctx context.Context, obj Object) (Handle, error)
	Open(ctx context.Context, id string) (Object, error)
	Release(ctx context.Context, id string) error
}

// index tracks the handles a backend has issued.
type index struct {
	prefix string

	mu      sync.RWMutex
	handles map[string]Handle
}

func newIndex(prefix string) *index {
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = "/media"
	}
	return &index{prefix: prefix, handles: map[string]Handle{}}
}

func (i *index) issue(obj Object) Handle {
	id := uuid.NewString()
	ct := obj.ContentType
	if ct == "" {
		ct = "video/mp4"
	}
	return Handle{
		ID:          id,
		URL:         i.prefix + "/" + id,
		ContentType: ct,
		Filename:    obj.Filename,
		Size:        int64(len(obj.Data)),
	}
}

func (i *index) add(h Handle) {
	i.mu.Lock()
	i.handles[h.ID] = h
	i.mu.Unlock()
}

func (i *index) get(id string) (Handle, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	h, ok := i.handles[id]
	return h, ok
}

func (i *index) remove(id string) (Handle, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	h, ok := i.handles[id]
	if ok {
		delete(i.handles, id)
	}
	return h, ok
}
