package media

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestStores(t *testing.T) {
	disk, err := NewDiskStore(t.TempDir(), "/media/")
	if err != nil {
		t.Fatalf("disk store: %v", err)
	}

	stores := map[string]Store{
		"memory": NewMemoryStore(""),
		"disk":   disk,
	}

	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			h, err := s.Put(ctx, Object{Data: []byte("frames"), Filename: "clip.mp4"})
			if err != nil {
				t.Fatalf("put: %v", err)
			}
			if h.ID == "" || h.URL != "/media/"+h.ID {
				t.Fatalf("handle %+v", h)
			}
			if h.ContentType != "video/mp4" || h.Size != 6 {
				t.Fatalf("handle %+v", h)
			}

			obj, err := s.Open(ctx, h.ID)
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			if string(obj.Data) != "frames" || obj.Filename != "clip.mp4" {
				t.Fatalf("object %+v", obj)
			}

			if err := s.Release(ctx, h.ID); err != nil {
				t.Fatalf("release: %v", err)
			}
			if _, err := s.Open(ctx, h.ID); !errors.Is(err, ErrNotFound) {
				t.Fatalf("open after release: %v", err)
			}
			if err := s.Release(ctx, h.ID); !errors.Is(err, ErrNotFound) {
				t.Fatalf("double release: %v", err)
			}
		})
	}
}

func TestStoresIssueDistinctHandles(t *testing.T) {
	s := NewMemoryStore("/v")
	a, _ := s.Put(context.Background(), Object{Data: []byte("a"), ContentType: "video/webm"})
	b, _ := s.Put(context.Background(), Object{Data: []byte("b")})
	if a.ID == b.ID {
		t.Fatalf("duplicate ids")
	}
	if !strings.HasPrefix(a.URL, "/v/") || a.ContentType != "video/webm" {
		t.Fatalf("handle %+v", a)
	}
}
