package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDocuments stores each record as one document whose _id is the record
// id. BSON datetimes come back as time.Time.
type MongoDocuments struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// DialMongo connects to uri and verifies the server answers.
func DialMongo(ctx context.Context, uri, database, collection string) (*MongoDocuments, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	return NewMongoDocuments(client, client.Database(database).Collection(collection)), nil
}

func NewMongoDocuments(client *mongo.Client, coll *mongo.Collection) *MongoDocuments {
	return &MongoDocuments{client: client, coll: coll}
}

func (m *MongoDocuments) Name() string { return "mongodb" }

func (m *MongoDocuments) All(ctx context.Context) ([]Document, error) {
	opts := options.Find().SetSort(bson.D{{Key: "submissionDate", Value: -1}})
	cur, err := m.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("find patient documents: %w", err)
	}
	defer cur.Close(ctx)

	var out []Document
	for cur.Next(ctx) {
		var raw bson.M
		if err := cur.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode patient document: %w", err)
		}
		doc, _ := fromBSON(raw).(Document)
		if id, ok := doc["_id"]; ok {
			doc["id"] = id
			delete(doc, "_id")
		}
		out = append(out, doc)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate patient documents: %w", err)
	}
	return out, nil
}

func (m *MongoDocuments) Insert(ctx context.Context, id string, doc Document) (string, error) {
	body := withoutID(doc)
	body["_id"] = id
	if _, err := m.coll.InsertOne(ctx, body); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", ErrDocumentExists
		}
		return "", fmt.Errorf("insert patient document: %w", err)
	}
	return id, nil
}

func (m *MongoDocuments) Replace(ctx context.Context, id string, doc Document) error {
	res, err := m.coll.ReplaceOne(ctx, bson.M{"_id": id}, withoutID(doc))
	if err != nil {
		return fmt.Errorf("replace patient document: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

func (m *MongoDocuments) Delete(ctx context.Context, id string) error {
	res, err := m.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete patient document: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

func (m *MongoDocuments) Ping(ctx context.Context) error { return m.client.Ping(ctx, nil) }

func (m *MongoDocuments) Close(ctx context.Context) error { return m.client.Disconnect(ctx) }

// fromBSON converts driver types into plain Go values.
func fromBSON(v any) any {
	switch t := v.(type) {
	case bson.M:
		out := make(Document, len(t))
		for k, val := range t {
			out[k] = fromBSON(val)
		}
		return out
	case bson.D:
		out := make(Document, len(t))
		for _, e := range t {
			out[e.Key] = fromBSON(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = fromBSON(val)
		}
		return out
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.Timestamp:
		return time.Unix(int64(t.T), 0).UTC()
	case primitive.ObjectID:
		return t.Hex()
	case int32:
		return int64(t)
	}
	return v
}
