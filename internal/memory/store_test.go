package memory

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nugget/helion/internal/database"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.Open("sqlite", filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s, err := NewStore(db, nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestStore_AddListCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	if _, err := s.Add(ctx, "alice", "likes coffee", "", []float32{1, 0}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Add(ctx, "alice", "name is Alice", ImportanceHigh, []float32{0, 1}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Add(ctx, "bob", "likes tea", ImportanceLow, nil); err != nil {
		t.Fatal(err)
	}

	list, err := s.List(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("len(List) = %d, want 2", len(list))
	}
	if list[0].Content != "name is Alice" {
		t.Errorf("List()[0] = %q, want newest first", list[0].Content)
	}
	if list[1].Importance != ImportanceMedium {
		t.Errorf("default importance = %q, want medium", list[1].Importance)
	}
	if len(list[1].Embedding) != 2 || list[1].Embedding[0] != 1 {
		t.Errorf("embedding round trip = %v", list[1].Embedding)
	}

	n, err := s.Count(ctx, "alice")
	if err != nil || n != 2 {
		t.Errorf("Count(alice) = %d, %v; want 2", n, err)
	}
	n, _ = s.Count(ctx, "nobody")
	if n != 0 {
		t.Errorf("Count(nobody) = %d, want 0", n)
	}
}

func TestStore_AddRejectsImportance(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Add(context.Background(), "u", "x", "urgent", nil); err == nil {
		t.Error("Add() error = nil, want invalid importance")
	}
}

func TestStore_Search(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Add(ctx, "u", "exact", "", []float32{1, 0, 0})
	s.Add(ctx, "u", "close", "", []float32{0.9, 0.1, 0})
	s.Add(ctx, "u", "far", "", []float32{0, 1, 0})
	s.Add(ctx, "other", "someone else", "", []float32{1, 0, 0})

	tests := []struct {
		name      string
		threshold float32
		topK      int
		want      []string
	}{
		{"ranked above threshold", 0.5, 5, []string{"exact", "close"}},
		{"top k", 0.5, 1, []string{"exact"}},
		{"threshold is strict", 1.0, 5, nil},
		{"everything", -1, 0, []string{"exact", "close", "far"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Search(ctx, []float32{1, 0, 0}, "u", tt.threshold, tt.topK)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d matches, want %d", len(got), len(tt.want))
			}
			for i, m := range got {
				if m.Content != tt.want[i] {
					t.Errorf("match %d = %q, want %q", i, m.Content, tt.want[i])
				}
			}
		})
	}
}

func TestStore_Delete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m, _ := s.Add(ctx, "u", "x", "", nil)

	ok, err := s.Delete(ctx, "someone-else", m.ID)
	if err != nil || ok {
		t.Errorf("Delete by other user = %v, %v; want false", ok, err)
	}
	ok, err = s.Delete(ctx, "u", m.ID)
	if err != nil || !ok {
		t.Errorf("Delete = %v, %v; want true", ok, err)
	}
}

func TestEmbeddingCodec(t *testing.T) {
	in := []float32{0.25, -1.5, 3}
	out := decodeEmbedding(encodeEmbedding(in))
	if len(out) != len(in) {
		t.Fatalf("len = %d", len(out))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], in[i])
		}
	}
	if encodeEmbedding(nil) != nil || decodeEmbedding(nil) != nil {
		t.Error("empty embedding should encode to nil")
	}
}
