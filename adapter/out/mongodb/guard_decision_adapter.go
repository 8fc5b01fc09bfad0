package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"guard_server/core/domain"
	"guard_server/core/port/out"
)

// =============================================================================
// MongoDB Decision Adapter
// =============================================================================

const (
	collectionDecisions = "guard_decisions"

	// DefaultDecisionRetention is how long audit documents are kept.
	DefaultDecisionRetention = 30 * 24 * time.Hour
)

// DecisionAdapter implements out.DecisionRecorder using MongoDB.
type DecisionAdapter struct {
	collection *mongo.Collection
	retention  time.Duration
}

var _ out.DecisionRecorder = (*DecisionAdapter)(nil)

// NewDecisionAdapter creates a MongoDB decision adapter. retention <= 0
// uses DefaultDecisionRetention.
func NewDecisionAdapter(db *mongo.Database, retention time.Duration) *DecisionAdapter {
	if retention <= 0 {
		retention = DefaultDecisionRetention
	}
	return &DecisionAdapter{
		collection: db.Collection(collectionDecisions),
		retention:  retention,
	}
}

// EnsureIndexes creates necessary indexes for the collection.
func (a *DecisionAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "unit_id", Value: 1},
				{Key: "decided_at", Value: -1},
			},
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0), // TTL index
		},
	}

	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// =============================================================================
// Document Model
// =============================================================================

type labelDocument struct {
	Category string  `bson:"category"`
	Score    float64 `bson:"score"`
}

// decisionDocument represents the MongoDB document structure.
type decisionDocument struct {
	ID         string          `bson:"id"`
	UnitID     string          `bson:"unit_id"`
	Action     string          `bson:"action"`
	Category   string          `bson:"category,omitempty"`
	Score      float64         `bson:"score"`
	Labels     []labelDocument `bson:"labels"`
	Provenance string          `bson:"provenance"`
	Threshold  float64         `bson:"threshold"`
	DecidedAt  time.Time       `bson:"decided_at"`
	ExpiresAt  time.Time       `bson:"expires_at"`
}

func (a *DecisionAdapter) toDocument(rec domain.DecisionRecord) decisionDocument {
	labels := make([]labelDocument, len(rec.Labels))
	for i, l := range rec.Labels {
		labels[i] = labelDocument{Category: string(l.Category), Score: l.Score}
	}
	return decisionDocument{
		ID:         rec.ID.String(),
		UnitID:     string(rec.UnitID),
		Action:     string(rec.Action.Kind),
		Category:   string(rec.Action.Category),
		Score:      rec.Action.Score,
		Labels:     labels,
		Provenance: string(rec.Provenance),
		Threshold:  rec.Threshold,
		DecidedAt:  rec.DecidedAt,
		ExpiresAt:  rec.DecidedAt.Add(a.retention),
	}
}

func (d *decisionDocument) toDomain() domain.DecisionRecord {
	labels := make([]domain.Label, len(d.Labels))
	for i, l := range d.Labels {
		labels[i] = domain.Label{Category: domain.Category(l.Category), Score: l.Score}
	}
	rec := domain.DecisionRecord{
		UnitID: domain.UnitID(d.UnitID),
		Action: domain.Action{
			Kind:     domain.ActionKind(d.Action),
			Category: domain.Category(d.Category),
			Score:    d.Score,
		},
		Labels:     labels,
		Provenance: domain.Provenance(d.Provenance),
		Threshold:  d.Threshold,
		DecidedAt:  d.DecidedAt,
	}
	_ = rec.ID.UnmarshalText([]byte(d.ID))
	return rec
}

// =============================================================================
// Operations
// =============================================================================

// Record upserts one decision keyed by its id.
func (a *DecisionAdapter) Record(ctx context.Context, rec domain.DecisionRecord) error {
	doc := a.toDocument(rec)

	opts := options.Replace().SetUpsert(true)
	if _, err := a.collection.ReplaceOne(ctx, bson.M{"id": doc.ID}, doc, opts); err != nil {
		return fmt.Errorf("failed to save decision: %w", err)
	}
	return nil
}

// ListByUnit returns the most recent decisions for a unit, newest first.
func (a *DecisionAdapter) ListByUnit(ctx context.Context, unitID domain.UnitID, limit int) ([]domain.DecisionRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "decided_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := a.collection.Find(ctx, bson.M{"unit_id": string(unitID)}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []decisionDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode decisions: %w", err)
	}

	records := make([]domain.DecisionRecord, len(docs))
	for i := range docs {
		records[i] = docs[i].toDomain()
	}
	return records, nil
}

// Latest returns the newest decision for a unit, or nil.
func (a *DecisionAdapter) Latest(ctx context.Context, unitID domain.UnitID) (*domain.DecisionRecord, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "decided_at", Value: -1}})

	var doc decisionDocument
	err := a.collection.FindOne(ctx, bson.M{"unit_id": string(unitID)}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get decision: %w", err)
	}
	rec := doc.toDomain()
	return &rec, nil
}
