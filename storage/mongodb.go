package storage

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/solindex/soltrace/document"
)

func timeFromUnixNano(nanos int64) time.Time {
	return time.Unix(0, nanos).UTC()
}

const (
	mongoDatabaseName   = "soltrace"
	mongoCollectionName = "events"
)

type mongoBackend struct {
	client *mongo.Client
	coll   *mongo.Collection
}

func newMongoBackend(ctx context.Context, databaseURL string) (*mongoBackend, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("storage(mongodb): connecting: %w", err)
	}
	coll := client.Database(mongoDatabaseName).Collection(mongoCollectionName)
	return &mongoBackend{client: client, coll: coll}, nil
}

// mongoDoc is the on-disk BSON shape of one event record. Data is stored
// as a raw JSON string rather than a native BSON sub-document so the
// document.Value tree (which may hold wide-integer text for u64/u128/i128)
// round-trips without Mongo's numeric type coercion altering precision.
type mongoDoc struct {
	ID            string `bson:"_id"`
	Slot          int64  `bson:"slot"`
	Signature     string `bson:"signature"`
	ProgramID     string `bson:"program_id"`
	EventName     string `bson:"event_name"`
	Discriminator string `bson:"discriminator"`
	Data          string `bson:"data"`
	Timestamp     int64  `bson:"timestamp_unix_nano"`
}

func (m *mongoBackend) Init(ctx context.Context) error {
	_, err := m.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "slot", Value: 1}}},
		{Keys: bson.D{{Key: "event_name", Value: 1}}},
		{Keys: bson.D{{Key: "timestamp_unix_nano", Value: 1}}},
		{Keys: bson.D{{Key: "signature", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("storage(mongodb): creating indexes: %w", err)
	}
	return nil
}

func (m *mongoBackend) Insert(ctx context.Context, r Record) error {
	data, err := json.Marshal(r.Data)
	if err != nil {
		return fmt.Errorf("storage(mongodb): marshaling event data: %w", err)
	}

	doc := mongoDoc{
		ID:            r.EventID,
		Slot:          int64(r.Slot),
		Signature:     r.Signature,
		ProgramID:     r.ProgramID,
		EventName:     r.EventName,
		Discriminator: r.Discriminator,
		Data:          string(data),
		Timestamp:     r.Timestamp.UTC().UnixNano(),
	}

	_, err = m.coll.InsertOne(ctx, doc)
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("storage(mongodb): inserting event %q: %w", r.EventID, err)
	}
	return nil
}

func (m *mongoBackend) SelectBySlotRange(ctx context.Context, startSlot, endSlot uint64) ([]Record, error) {
	cur, err := m.coll.Find(ctx, bson.D{
		{Key: "slot", Value: bson.D{{Key: "$gte", Value: int64(startSlot)}, {Key: "$lte", Value: int64(endSlot)}}},
	}, options.Find().SetSort(bson.D{{Key: "slot", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("storage(mongodb): querying slot range: %w", err)
	}
	defer cur.Close(ctx)
	return decodeMongoCursor(ctx, cur)
}

func (m *mongoBackend) SelectByName(ctx context.Context, eventName string) ([]Record, error) {
	cur, err := m.coll.Find(ctx, bson.D{{Key: "event_name", Value: eventName}},
		options.Find().SetSort(bson.D{{Key: "slot", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("storage(mongodb): querying by name: %w", err)
	}
	defer cur.Close(ctx)
	return decodeMongoCursor(ctx, cur)
}

func (m *mongoBackend) Exists(ctx context.Context, eventID string) (bool, error) {
	count, err := m.coll.CountDocuments(ctx, bson.D{{Key: "_id", Value: eventID}})
	if err != nil {
		return false, fmt.Errorf("storage(mongodb): checking existence of %q: %w", eventID, err)
	}
	return count > 0, nil
}

func (m *mongoBackend) ExistsSignature(ctx context.Context, signature string) (bool, error) {
	count, err := m.coll.CountDocuments(ctx, bson.D{{Key: "signature", Value: signature}})
	if err != nil {
		return false, fmt.Errorf("storage(mongodb): checking existence of signature %q: %w", signature, err)
	}
	return count > 0, nil
}

func (m *mongoBackend) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func decodeMongoCursor(ctx context.Context, cur *mongo.Cursor) ([]Record, error) {
	var out []Record
	for cur.Next(ctx) {
		var doc mongoDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("storage(mongodb): decoding document: %w", err)
		}
		dataValue, err := document.Parse([]byte(doc.Data))
		if err != nil {
			return nil, fmt.Errorf("storage(mongodb): parsing stored event data: %w", err)
		}
		out = append(out, Record{
			EventID:       doc.ID,
			Slot:          uint64(doc.Slot),
			Signature:     doc.Signature,
			ProgramID:     doc.ProgramID,
			EventName:     doc.EventName,
			Discriminator: doc.Discriminator,
			Data:          dataValue,
			Timestamp:     timeFromUnixNano(doc.Timestamp),
		})
	}
	return out, cur.Err()
}
