package patient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/meditrack/meditrack/internal/platform/dates"
	"github.com/meditrack/meditrack/internal/platform/storage"
)

// Backend is what the Store persists through. Load returns raw stored
// entries; the Store repairs them.
type Backend interface {
	Load(ctx context.Context) ([]any, error)
	Create(ctx context.Context, rec *Record) (string, error)
	Replace(ctx context.Context, rec *Record) error
	Remove(ctx context.Context, id string) error
	Ping(ctx context.Context) error
	Name() string
}

// CorruptDataError reports stored bytes that could not be parsed at all.
type CorruptDataError struct {
	Err error
}

func (e *CorruptDataError) Error() string { return "corrupt patient data: " + e.Err.Error() }
func (e *CorruptDataError) Unwrap() error { return e.Err }

// SnapshotBackend keeps the whole collection as a JSON array in one
// storage.Snapshot. New records are prepended.
type SnapshotBackend struct {
	snap storage.Snapshot
}

func NewSnapshotBackend(snap storage.Snapshot) *SnapshotBackend {
	return &SnapshotBackend{snap: snap}
}

func (b *SnapshotBackend) Name() string { return b.snap.Name() }

func (b *SnapshotBackend) Ping(ctx context.Context) error { return b.snap.Ping(ctx) }

func (b *SnapshotBackend) Load(ctx context.Context) ([]any, error) {
	raw, err := b.snap.Read(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := decodeSnapshot(raw)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(entries))
	for i, e := range entries {
		out[i] = []byte(e)
	}
	return out, nil
}

func (b *SnapshotBackend) Create(ctx context.Context, rec *Record) (string, error) {
	encoded, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}
	err = b.snap.Update(ctx, func(cur []byte) ([]byte, error) {
		entries, err := decodeSnapshot(cur)
		if err != nil {
			return nil, err
		}
		if indexOf(entries, rec.ID) >= 0 {
			return nil, ErrDuplicateID
		}
		return json.Marshal(append([]json.RawMessage{encoded}, entries...))
	})
	if err != nil {
		return "", err
	}
	return rec.ID, nil
}

func (b *SnapshotBackend) Replace(ctx context.Context, rec *Record) error {
	encoded, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	return b.snap.Update(ctx, func(cur []byte) ([]byte, error) {
		entries, err := decodeSnapshot(cur)
		if err != nil {
			return nil, err
		}
		i := indexOf(entries, rec.ID)
		if i < 0 {
			return nil, ErrNotFound
		}
		entries[i] = encoded
		return json.Marshal(entries)
	})
}

func (b *SnapshotBackend) Remove(ctx context.Context, id string) error {
	return b.snap.Update(ctx, func(cur []byte) ([]byte, error) {
		entries, err := decodeSnapshot(cur)
		if err != nil {
			return nil, err
		}
		i := indexOf(entries, id)
		if i < 0 {
			return nil, ErrNotFound
		}
		return json.Marshal(append(entries[:i:i], entries[i+1:]...))
	})
}

func decodeSnapshot(raw []byte) ([]json.RawMessage, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, &CorruptDataError{Err: err}
	}
	return entries, nil
}

func indexOf(entries []json.RawMessage, id string) int {
	for i, e := range entries {
		var probe struct {
			ID any `json:"id"`
		}
		if json.Unmarshal(e, &probe) == nil && asString(probe.ID) == id && id != "" {
			return i
		}
	}
	return -1
}

// DocumentBackend stores one document per record. The submission timestamp
// is written as a native time value; anything time-typed read back is turned
// into strings before the record is repaired.
type DocumentBackend struct {
	docs storage.Documents
}

func NewDocumentBackend(docs storage.Documents) *DocumentBackend {
	return &DocumentBackend{docs: docs}
}

func (b *DocumentBackend) Name() string { return b.docs.Name() }

func (b *DocumentBackend) Ping(ctx context.Context) error { return b.docs.Ping(ctx) }

func (b *DocumentBackend) Load(ctx context.Context) ([]any, error) {
	docs, err := b.docs.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(docs))
	for i, d := range docs {
		out[i] = normalizeDocument(d)
	}
	return out, nil
}

func (b *DocumentBackend) Create(ctx context.Context, rec *Record) (string, error) {
	doc, err := recordDocument(rec)
	if err != nil {
		return "", err
	}
	id, err := b.docs.Insert(ctx, rec.ID, doc)
	if errors.Is(err, storage.ErrDocumentExists) {
		return "", ErrDuplicateID
	}
	return id, err
}

func (b *DocumentBackend) Replace(ctx context.Context, rec *Record) error {
	doc, err := recordDocument(rec)
	if err != nil {
		return err
	}
	if err := b.docs.Replace(ctx, rec.ID, doc); err != nil {
		if errors.Is(err, storage.ErrDocumentNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (b *DocumentBackend) Remove(ctx context.Context, id string) error {
	if err := b.docs.Delete(ctx, id); err != nil {
		if errors.Is(err, storage.ErrDocumentNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func recordDocument(rec *Record) (storage.Document, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	doc := storage.Document{}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	if ts, ok := dates.ParseTimestamp(rec.SubmissionDate); ok {
		doc["submissionDate"] = ts
	}
	return doc, nil
}

// normalizeDocument converts backend-native timestamps: submissionDate to an
// ISO-8601 timestamp, every other time value to a canonical date.
func normalizeDocument(doc storage.Document) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		if t, ok := v.(time.Time); ok {
			if k == "submissionDate" {
				out[k] = dates.FormatTimestamp(t)
			} else {
				out[k] = dates.ToCanonicalString(t.UTC())
			}
			continue
		}
		out[k] = v
	}
	return out
}
