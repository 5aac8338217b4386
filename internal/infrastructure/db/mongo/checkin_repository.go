package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/99minutos/attendance-system/internal/core/domain"
	"github.com/99minutos/attendance-system/internal/core/ports"
)

const (
	collectionCheckIns = "checkins"
	collectionCounters = "counters"
	checkInSeqCounter  = "checkin_seq"
)

// CheckInRepository is the append-only ledger. A unique index on dedup_key
// turns InsertOne into the per-key conditional write.
type CheckInRepository struct {
	col      *mongo.Collection
	counters *mongo.Collection
}

func NewCheckInRepository(db *mongo.Database) *CheckInRepository {
	return &CheckInRepository{
		col:      db.Collection(collectionCheckIns),
		counters: db.Collection(collectionCounters),
	}
}

type checkInDoc struct {
	EventID    string `bson:"_id"`
	Seq        int64  `bson:"seq"`
	OwnerID    string `bson:"owner_id"`
	TokenID    string `bson:"token_id"`
	Subject    string `bson:"subject"`
	Room       string `bson:"room"`
	Method     string `bson:"method"`
	OccurredAt int64  `bson:"occurred_at"`
	DedupKey   string `bson:"dedup_key"`
	Status     string `bson:"status"`
	DeviceID   string `bson:"device_id,omitempty"`
}

func toCheckInDoc(e *domain.CheckInEvent) checkInDoc {
	return checkInDoc{
		EventID:    e.EventID,
		Seq:        e.Seq,
		OwnerID:    e.OwnerID,
		TokenID:    e.TokenID,
		Subject:    e.Subject,
		Room:       e.Room,
		Method:     string(e.Method),
		OccurredAt: e.OccurredAt.UnixMilli(),
		DedupKey:   e.DedupKey,
		Status:     string(e.Status),
		DeviceID:   e.DeviceID,
	}
}

func (d checkInDoc) toDomain() *domain.CheckInEvent {
	return &domain.CheckInEvent{
		EventID:    d.EventID,
		Seq:        d.Seq,
		OwnerID:    d.OwnerID,
		TokenID:    d.TokenID,
		Subject:    d.Subject,
		Room:       d.Room,
		Method:     domain.CheckInMethod(d.Method),
		OccurredAt: msToTime(d.OccurredAt),
		DedupKey:   d.DedupKey,
		Status:     domain.CheckInStatus(d.Status),
		DeviceID:   d.DeviceID,
	}
}

// Append assigns the next sequence number and inserts e. On a dedup_key
// collision the stored event is returned with domain.ErrDuplicateSubmission.
// A collision burns a sequence number; gaps are harmless.
func (r *CheckInRepository) Append(ctx context.Context, e *domain.CheckInEvent) (*domain.CheckInEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	seq, err := r.nextSeq(ctx)
	if err != nil {
		return nil, err
	}

	stored := *e
	stored.Seq = seq
	if _, err := r.col.InsertOne(ctx, toCheckInDoc(&stored)); err != nil {
		if !mongo.IsDuplicateKeyError(err) {
			return nil, classify("append check-in", err)
		}
		prior, findErr := r.findByDedupKey(ctx, e.DedupKey)
		if findErr != nil {
			return nil, fmt.Errorf("append check-in: load prior: %w", findErr)
		}
		return prior, domain.ErrDuplicateSubmission
	}
	return &stored, nil
}

func (r *CheckInRepository) nextSeq(ctx context.Context) (int64, error) {
	var counter struct {
		Value int64 `bson:"value"`
	}
	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": checkInSeqCounter},
		bson.M{"$inc": bson.M{"value": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, classify("next check-in seq", err)
	}
	return counter.Value, nil
}

func (r *CheckInRepository) findByDedupKey(ctx context.Context, key string) (*domain.CheckInEvent, error) {
	return r.findOne(ctx, bson.M{"dedup_key": key})
}

func (r *CheckInRepository) FindByID(ctx context.Context, eventID string) (*domain.CheckInEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	return r.findOne(ctx, bson.M{"_id": eventID})
}

func (r *CheckInRepository) findOne(ctx context.Context, filter bson.M) (*domain.CheckInEvent, error) {
	doc, err := retryRead(ctx, func() (checkInDoc, error) {
		var d checkInDoc
		err := r.col.FindOne(ctx, filter).Decode(&d)
		return d, err
	})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrCheckInNotFound
		}
		return nil, classify("find check-in", err)
	}
	return doc.toDomain(), nil
}

// ListByOwner pages newest first by (occurred_at, seq) using the compound
// owner index; the cursor is exclusive.
func (r *CheckInRepository) ListByOwner(ctx context.Context, f ports.ListCheckInsFilter) ([]*domain.CheckInEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{"owner_id": f.OwnerID}
	if !f.Before.IsZero() {
		before := f.Before.UnixMilli()
		filter["$or"] = bson.A{
			bson.M{"occurred_at": bson.M{"$lt": before}},
			bson.M{"occurred_at": before, "seq": bson.M{"$lt": f.BeforeSeq}},
		}
	}

	opts := options.Find().SetSort(bson.D{{Key: "occurred_at", Value: -1}, {Key: "seq", Value: -1}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}

	docs, err := retryRead(ctx, func() ([]checkInDoc, error) {
		cur, err := r.col.Find(ctx, filter, opts)
		if err != nil {
			return nil, err
		}
		var out []checkInDoc
		if err := cur.All(ctx, &out); err != nil {
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		return nil, classify("list check-ins", err)
	}

	events := make([]*domain.CheckInEvent, 0, len(docs))
	for _, d := range docs {
		events = append(events, d.toDomain())
	}
	return events, nil
}

func (r *CheckInRepository) CountByOwner(ctx context.Context, ownerID string, since time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{"owner_id": ownerID}
	if !since.IsZero() {
		filter["occurred_at"] = bson.M{"$gte": since.UnixMilli()}
	}

	n, err := retryRead(ctx, func() (int64, error) {
		return r.col.CountDocuments(ctx, filter)
	})
	if err != nil {
		return 0, classify("count check-ins", err)
	}
	return n, nil
}

// EnsureIndexes creates the dedup guard and the history index.
func (r *CheckInRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "dedup_key", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "occurred_at", Value: -1}, {Key: "seq", Value: -1}}},
	}

	_, err := r.col.Indexes().CreateMany(ctx, indexes)
	return err
}
