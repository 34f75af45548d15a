package store

import (
	"context"
	"errors"

	metav1 "seoaudit/pkg/meta/v1"
)

var (
	ErrCollectionDoesNotExist = errors.New("collection does not exist")
	ErrNoDocuments            = errors.New("no documents found")
)

// FindOptions tune a Find call. Raw skips url re-hydration, Limit and
// Offset paginate in storage-native order.
type FindOptions struct {
	Raw    bool
	Limit  int64
	Offset int64
}

// Sort is a single-field sort order for FindLastSorted.
type Sort struct {
	Field      string
	Descending bool
}

// InsertOptions control collection auto-creation. The default is to create
// the collection on first write; with AutoCreate false the write fails with
// ErrCollectionDoesNotExist instead.
type InsertOptions struct {
	AutoCreate bool
}

// Cursor iterates a result set without materializing it.
type Cursor interface {
	Next(ctx context.Context) bool
	Decode(doc *metav1.Document) error
	Close(ctx context.Context) error
}

// Documents is the schemaless document store contract shared by the mongo
// backend and the in-memory backend. Connections are established once per
// module run via the backend constructor and released at run end.
type Documents interface {
	HasCollection(ctx context.Context, collection string) (bool, error)

	InsertDocument(ctx context.Context, collection string, doc metav1.Document, opts ...*InsertOptions) error
	InsertDocuments(ctx context.Context, collection string, docs []metav1.Document, opts ...*InsertOptions) error

	Find(ctx context.Context, collection string, filter metav1.Document, opts ...*FindOptions) ([]metav1.Document, error)
	FindCursor(ctx context.Context, collection string, filter metav1.Document, opts ...*FindOptions) (Cursor, error)
	FindOne(ctx context.Context, collection string, filter metav1.Document, opts ...*FindOptions) (metav1.Document, error)

	// FindLastSorted returns the single most recent document matching the
	// filter per the supplied sort. Used for historical diff lookups.
	FindLastSorted(ctx context.Context, collection string, filter metav1.Document, sort Sort) (metav1.Document, error)

	UpdateOne(ctx context.Context, collection string, id interface{}, update metav1.Document) error
	DeleteOne(ctx context.Context, collection string, id interface{}) error
}

func MergeFindOptions(opts []*FindOptions) *FindOptions {
	merged := &FindOptions{}

	for _, o := range opts {
		if o == nil {
			continue
		}
		if o.Raw {
			merged.Raw = true
		}
		if o.Limit > 0 {
			merged.Limit = o.Limit
		}
		if o.Offset > 0 {
			merged.Offset = o.Offset
		}
	}

	return merged
}

func MergeInsertOptions(opts []*InsertOptions) *InsertOptions {
	merged := &InsertOptions{AutoCreate: true}

	for _, o := range opts {
		if o == nil {
			continue
		}
		merged.AutoCreate = o.AutoCreate
	}

	return merged
}
