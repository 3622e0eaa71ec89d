package services

import (
	"context"
	"encoding/json"
	"fmt"

	"filemanager/models"

	"github.com/dgraph-io/badger/v4"
)

const auditKeyPrefix = "audit/"

// BadgerAuditSink keeps the audit log in an embedded badger database, for
// deployments that do not want audit writes on the portal's mongo.
//
// Keys are "audit/<unix nanos, zero padded>/<id>" so key order is time order.
type BadgerAuditSink struct {
	db *badger.DB
}

func OpenBadgerAuditSink(dir string) (*BadgerAuditSink, error) {
	opts := badger.DefaultOptions(dir).WithLoggingLevel(badger.WARNING)
	return openBadgerAuditSink(opts)
}

// OpenInMemoryAuditSink is for tests and throwaway runs.
func OpenInMemoryAuditSink() (*BadgerAuditSink, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.WARNING)
	return openBadgerAuditSink(opts)
}

func openBadgerAuditSink(opts badger.Options) (*BadgerAuditSink, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit store at %q: %w", opts.Dir, err)
	}
	return &BadgerAuditSink{db: db}, nil
}

func (s *BadgerAuditSink) Close() error {
	return s.db.Close()
}

func (s *BadgerAuditSink) Append(ctx context.Context, record *models.AuditRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode audit record: %w", err)
	}
	key := fmt.Sprintf("%s%020d/%s", auditKeyPrefix, record.Timestamp.UnixNano(), record.ID)

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

// Recent returns up to limit records, newest first.
func (s *BadgerAuditSink) Recent(ctx context.Context, limit int) ([]models.AuditRecord, error) {
	var records []models.AuditRecord

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(auditKeyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		// reverse iteration must start past the last key with the prefix
		for it.Seek([]byte(auditKeyPrefix + "\xff")); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if limit > 0 && len(records) >= limit {
				return nil
			}

			var rec models.AuditRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("failed to decode audit record %s: %w", it.Item().Key(), err)
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}
