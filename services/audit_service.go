package services

import (
	"context"
	"fmt"
	"time"

	"filemanager/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// AuditSink is an append-only log of state changing operations.
type AuditSink interface {
	Append(ctx context.Context, record *models.AuditRecord) error
}

// AuditReader is implemented by sinks that can replay recent records.
type AuditReader interface {
	Recent(ctx context.Context, limit int) ([]models.AuditRecord, error)
}

// NewAuditRecord stamps a record with a fresh id and the current time.
func NewAuditRecord(actor *models.Actor, op models.OperationKind, meta models.RequestMeta, paths ...string) *models.AuditRecord {
	return &models.AuditRecord{
		ID:        uuid.NewString(),
		ActorID:   actor.ID,
		CompanyID: actor.CompanyID,
		Operation: op,
		Paths:     paths,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		Timestamp: time.Now().UTC(),
	}
}

// MongoAuditSink writes to the portal's activity_logs collection.
type MongoAuditSink struct {
	activityCollection *mongo.Collection
}

func NewMongoAuditSink(db *mongo.Database) *MongoAuditSink {
	return &MongoAuditSink{activityCollection: db.Collection("activity_logs")}
}

func (s *MongoAuditSink) Append(ctx context.Context, record *models.AuditRecord) error {
	if _, err := s.activityCollection.InsertOne(ctx, record); err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}
	return nil
}

func (s *MongoAuditSink) Recent(ctx context.Context, limit int) ([]models.AuditRecord, error) {
	opts := options.Find().SetSort(bson.M{"timestamp": -1}).SetLimit(int64(limit))
	cursor, err := s.activityCollection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}
	defer cursor.Close(ctx)

	var records []models.AuditRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode audit records: %w", err)
	}
	return records, nil
}
