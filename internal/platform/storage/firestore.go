package storage

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreDocuments stores each record in a Firestore collection. Firestore
// generates document ids, so Insert ignores the id it is given.
type FirestoreDocuments struct {
	client *firestore.Client
	coll   *firestore.CollectionRef
}

// DialFirestore opens a client for projectID. FIRESTORE_EMULATOR_HOST is
// honoured by the client library.
func DialFirestore(ctx context.Context, projectID, collection string) (*FirestoreDocuments, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create firestore client: %w", err)
	}
	return NewFirestoreDocuments(client, collection), nil
}

func NewFirestoreDocuments(client *firestore.Client, collection string) *FirestoreDocuments {
	return &FirestoreDocuments{client: client, coll: client.Collection(collection)}
}

func (f *FirestoreDocuments) Name() string { return "firestore" }

func (f *FirestoreDocuments) All(ctx context.Context) ([]Document, error) {
	snaps, err := f.coll.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("list firestore documents: %w", err)
	}
	out := make([]Document, 0, len(snaps))
	for _, snap := range snaps {
		doc := snap.Data()
		if doc == nil {
			doc = Document{}
		}
		doc["id"] = snap.Ref.ID
		out = append(out, doc)
	}
	return out, nil
}

func (f *FirestoreDocuments) Insert(ctx context.Context, _ string, doc Document) (string, error) {
	ref, _, err := f.coll.Add(ctx, withoutID(doc))
	if err != nil {
		return "", fmt.Errorf("add firestore document: %w", err)
	}
	return ref.ID, nil
}

func (f *FirestoreDocuments) Replace(ctx context.Context, id string, doc Document) error {
	ref := f.coll.Doc(id)
	body := withoutID(doc)
	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(ref); err != nil {
			if status.Code(err) == codes.NotFound {
				return ErrDocumentNotFound
			}
			return err
		}
		return tx.Set(ref, body)
	})
	if err != nil && !errors.Is(err, ErrDocumentNotFound) {
		return fmt.Errorf("replace firestore document: %w", err)
	}
	return err
}

func (f *FirestoreDocuments) Delete(ctx context.Context, id string) error {
	if _, err := f.coll.Doc(id).Delete(ctx, firestore.Exists); err != nil {
		if status.Code(err) == codes.NotFound {
			return ErrDocumentNotFound
		}
		return fmt.Errorf("delete firestore document: %w", err)
	}
	return nil
}

func (f *FirestoreDocuments) Ping(ctx context.Context) error {
	_, err := f.coll.Limit(1).Documents(ctx).GetAll()
	return err
}

func (f *FirestoreDocuments) Close(ctx context.Context) error { return f.client.Close() }
