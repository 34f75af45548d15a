package memstore

import (
	"context"
	"strings"
	"sync"
	"time"

	metav1 "seoaudit/pkg/meta/v1"
	"seoaudit/pkg/store"
)

// Storage is an in-memory implementation of the document store contract.
// It backs local runs and tests; the filter syntax mirrors the subset of
// the mongo query language the engine actually uses (exact match, dotted
// paths, $exists, $or, $in).
type Storage struct {
	mu          sync.Mutex
	collections map[string][]metav1.Document
	seq         int
	writes      int
}

func NewStorage() *Storage {
	return &Storage{
		collections: map[string][]metav1.Document{},
	}
}

// WriteCount returns the number of documents written so far. Tests use it
// to verify that empty batches issue no writes.
func (s *Storage) WriteCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.writes
}

func (s *Storage) HasCollection(ctx context.Context, collection string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.collections[collection]
	return ok, nil
}

func (s *Storage) InsertDocument(ctx context.Context, collection string, doc metav1.Document, opts ...*store.InsertOptions) error {
	return s.InsertDocuments(ctx, collection, []metav1.Document{doc}, opts...)
}

func (s *Storage) InsertDocuments(ctx context.Context, collection string, docs []metav1.Document, opts ...*store.InsertOptions) error {
	opt := store.MergeInsertOptions(opts)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[collection]; !ok {
		if !opt.AutoCreate {
			return store.ErrCollectionDoesNotExist
		}
		s.collections[collection] = nil
	}

	for _, doc := range docs {
		stored := metav1.Document{}
		for k, v := range doc {
			stored[k] = v
		}

		if _, ok := stored[metav1.FieldID]; !ok {
			s.seq++
			stored[metav1.FieldID] = s.seq
		}

		s.collections[collection] = append(s.collections[collection], stored)
		s.writes++
	}

	return nil
}

func (s *Storage) Find(ctx context.Context, collection string, filter metav1.Document, opts ...*store.FindOptions) ([]metav1.Document, error) {
	opt := store.MergeFindOptions(opts)

	s.mu.Lock()
	defer s.mu.Unlock()

	docs, ok := s.collections[collection]
	if !ok {
		return nil, store.ErrCollectionDoesNotExist
	}

	var result []metav1.Document
	var skipped int64

	for _, doc := range docs {
		if !match(doc, filter) {
			continue
		}

		if skipped < opt.Offset {
			skipped++
			continue
		}

		result = append(result, doc)

		if opt.Limit > 0 && int64(len(result)) >= opt.Limit {
			break
		}
	}

	return result, nil
}

func (s *Storage) FindCursor(ctx context.Context, collection string, filter metav1.Document, opts ...*store.FindOptions) (store.Cursor, error) {
	docs, err := s.Find(ctx, collection, filter, opts...)
	if err != nil {
		return nil, err
	}

	return &sliceCursor{docs: docs}, nil
}

func (s *Storage) FindOne(ctx context.Context, collection string, filter metav1.Document, opts ...*store.FindOptions) (metav1.Document, error) {
	docs, err := s.Find(ctx, collection, filter, opts...)
	if err != nil {
		return nil, err
	}

	if len(docs) == 0 {
		return nil, store.ErrNoDocuments
	}

	return docs[0], nil
}

func (s *Storage) FindLastSorted(ctx context.Context, collection string, filter metav1.Document, sort store.Sort) (metav1.Document, error) {
	docs, err := s.Find(ctx, collection, filter)
	if err != nil {
		return nil, err
	}

	if len(docs) == 0 {
		return nil, store.ErrNoDocuments
	}

	best := docs[0]

	for _, doc := range docs[1:] {
		bestVal, _ := lookup(best, sort.Field)
		docVal, _ := lookup(doc, sort.Field)

		if sort.Descending == less(bestVal, docVal) {
			best = doc
		}
	}

	return best, nil
}

func (s *Storage) UpdateOne(ctx context.Context, collection string, id interface{}, update metav1.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, ok := s.collections[collection]
	if !ok {
		return store.ErrCollectionDoesNotExist
	}

	for _, doc := range docs {
		if doc[metav1.FieldID] == id {
			for k, v := range update {
				doc[k] = v
			}
			s.writes++

			return nil
		}
	}

	return store.ErrNoDocuments
}

func (s *Storage) DeleteOne(ctx context.Context, collection string, id interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, ok := s.collections[collection]
	if !ok {
		return store.ErrCollectionDoesNotExist
	}

	for i, doc := range docs {
		if doc[metav1.FieldID] == id {
			s.collections[collection] = append(docs[:i:i], docs[i+1:]...)
			s.writes++

			return nil
		}
	}

	return store.ErrNoDocuments
}

type sliceCursor struct {
	docs []metav1.Document
	pos  int
}

func (c *sliceCursor) Next(ctx context.Context) bool {
	return c.pos < len(c.docs)
}

func (c *sliceCursor) Decode(doc *metav1.Document) error {
	*doc = c.docs[c.pos]
	c.pos++

	return nil
}

func (c *sliceCursor) Close(ctx context.Context) error {
	return nil
}

func match(doc metav1.Document, filter metav1.Document) bool {
	for key, want := range filter {
		if key == "$or" {
			if !matchOr(doc, want) {
				return false
			}
			continue
		}

		got, exists := lookup(doc, key)

		switch cond := want.(type) {
		case metav1.Document:
			if !matchCondition(got, exists, map[string]interface{}(cond)) {
				return false
			}
		case map[string]interface{}:
			if !matchCondition(got, exists, cond) {
				return false
			}
		default:
			if !exists || got != want {
				return false
			}
		}
	}

	return true
}

func matchOr(doc metav1.Document, alternatives interface{}) bool {
	var branches []metav1.Document

	switch v := alternatives.(type) {
	case []metav1.Document:
		branches = v
	case []interface{}:
		for _, b := range v {
			if m, ok := b.(metav1.Document); ok {
				branches = append(branches, m)
			} else if m, ok := b.(map[string]interface{}); ok {
				branches = append(branches, metav1.Document(m))
			}
		}
	}

	for _, branch := range branches {
		if match(doc, branch) {
			return true
		}
	}

	return false
}

func matchCondition(got interface{}, exists bool, cond map[string]interface{}) bool {
	for op, arg := range cond {
		switch op {
		case "$exists":
			want, _ := arg.(bool)
			if exists != want {
				return false
			}
		case "$in":
			if !in(got, arg) {
				return false
			}
		default:
			return false
		}
	}

	return true
}

func in(got interface{}, arg interface{}) bool {
	switch values := arg.(type) {
	case []string:
		for _, v := range values {
			if got == v {
				return true
			}
		}
	case []interface{}:
		for _, v := range values {
			if got == v {
				return true
			}
		}
	}

	return false
}

func lookup(doc metav1.Document, path string) (interface{}, bool) {
	parts := strings.Split(path, ".")

	var current interface{} = doc

	for _, part := range parts {
		switch v := current.(type) {
		case metav1.Document:
			next, ok := v[part]
			if !ok {
				return nil, false
			}
			current = next
		case map[string]interface{}:
			next, ok := v[part]
			if !ok {
				return nil, false
			}
			current = next
		case metav1.URL:
			switch part {
			case "protocol":
				current = v.Protocol
			case "domain":
				current = v.Domain
			case "path":
				current = v.Path
			case "query":
				current = v.Query
			default:
				return nil, false
			}
		default:
			return nil, false
		}
	}

	return current, true
}

func less(a, b interface{}) bool {
	switch av := a.(type) {
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Before(bv)
		}
	case int:
		if bv, ok := b.(int); ok {
			return av < bv
		}
	case int64:
		if bv, ok := b.(int64); ok {
			return av < bv
		}
	case float64:
		if bv, ok := b.(float64); ok {
			return av < bv
		}
	case string:
		if bv, ok := b.(string); ok {
			return av < bv
		}
	}

	return false
}
