package services

import (
	"context"
	"testing"
	"time"

	"filemanager/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBadgerAuditSink_RecentNewestFirst(t *testing.T) {
	sink, err := OpenInMemoryAuditSink()
	require.NoError(t, err)
	defer sink.Close()

	ctx := context.Background()
	actor := models.NewActor("emp-1", 2, "c-vsp")
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i, op := range []models.OperationKind{models.OpUpload, models.OpRename, models.OpDelete} {
		rec := NewAuditRecord(actor, op, testMeta, "public/VSP/a.txt")
		rec.Timestamp = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, sink.Append(ctx, rec))
	}

	records, err := sink.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, models.OpDelete, records[0].Operation)
	assert.Equal(t, models.OpRename, records[1].Operation)
	assert.Equal(t, "c-vsp", records[0].CompanyID)
	assert.Equal(t, []string{"public/VSP/a.txt"}, records[0].Paths)

	all, err := sink.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestBadgerAuditSink_CancelledAppend(t *testing.T) {
	sink, err := OpenInMemoryAuditSink()
	require.NoError(t, err)
	defer sink.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = sink.Append(ctx, NewAuditRecord(models.NewActor("e", 0, ""), models.OpDelete, testMeta))
	assert.ErrorIs(t, err, context.Canceled)

	records, err := sink.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestNewAuditRecord(t *testing.T) {
	rec := NewAuditRecord(models.NewActor("emp-9", 1, "c-acme"), models.OpMove, testMeta, "a", "b")

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "emp-9", rec.ActorID)
	assert.Equal(t, models.OpMove, rec.Operation)
	assert.Equal(t, []string{"a", "b"}, rec.Paths)
	assert.Equal(t, "filemanager-test", rec.UserAgent)
	assert.Equal(t, time.UTC, rec.Timestamp.Location())
}
