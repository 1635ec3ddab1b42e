// Package storage holds the backends patient records are persisted to.
//
// Two families exist. A Snapshot keeps the whole collection as one blob under
// a single key and supports an atomic read-modify-write. Documents keeps one
// document per record.
package storage

import (
	"context"
	"errors"
)

// DefaultKey is the well-known key the collection snapshot is stored under.
const DefaultKey = "mediTrackPatients"

var (
	// ErrDocumentNotFound is returned by Documents.Replace and Documents.Delete
	// when no document has the given id.
	ErrDocumentNotFound = errors.New("storage: document not found")

	// ErrDocumentExists is returned by Documents.Insert when the id is taken.
	ErrDocumentExists = errors.New("storage: document already exists")

	// ErrConflict is returned when an optimistic update kept losing races.
	ErrConflict = errors.New("storage: too many concurrent updates")
)

// Snapshot stores one opaque blob.
type Snapshot interface {
	// Read returns the stored blob, or nil when nothing has been written yet.
	Read(ctx context.Context) ([]byte, error)
	// Update atomically replaces the blob with fn(current). If fn returns an
	// error nothing is written and that error is returned.
	Update(ctx context.Context, fn func(current []byte) ([]byte, error)) error
	Ping(ctx context.Context) error
	Name() string
}

// Document is one stored record as a generic field map.
type Document = map[string]any

// Documents stores one document per record id.
type Documents interface {
	// All returns every document with its id under the "id" key.
	All(ctx context.Context) ([]Document, error)
	// Insert stores doc and returns the id it was stored under. Backends that
	// generate their own ids ignore the id argument.
	Insert(ctx context.Context, id string, doc Document) (string, error)
	Replace(ctx context.Context, id string, doc Document) error
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
	Name() string
}

// Closer is implemented by backends holding a client connection.
type Closer interface {
	Close(ctx context.Context) error
}

func withoutID(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		if k == "id" || k == "_id" {
			continue
		}
		out[k] = v
	}
	return out
}
