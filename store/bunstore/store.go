// Package bunstore persists credential storage slots in a SQL table via
// Bun, so the last known token survives process restarts.
package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	credential "github.com/goliatone/go-credential"
)

// Slot is the persisted row: one storage slot per key.
type Slot struct {
	bun.BaseModel `bun:"table:credential_slots,alias:cs"`

	Key       string     `bun:"key,pk"`
	Value     string     `bun:"value,notnull"`
	UpdatedAt *time.Time `bun:"updated_at"`
}

// KeyValue implements credential.KeyValue over a Bun database handle.
type KeyValue struct {
	db *bun.DB
}

var _ credential.KeyValue = (*KeyValue)(nil)

// New creates the adapter. Call CreateTable once at startup if the schema
// is not managed elsewhere.
func New(db *bun.DB) *KeyValue {
	return &KeyValue{db: db}
}

// CreateTable creates the slots table if it does not exist.
func (s *KeyValue) CreateTable(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*Slot)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

func (s *KeyValue) Get(ctx context.Context, key string) (string, bool, error) {
	slot := new(Slot)
	err := s.db.NewSelect().
		Model(slot).
		Where("cs.key = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return slot.Value, true, nil
}

func (s *KeyValue) Set(ctx context.Context, key, value string) error {
	now := time.Now()
	slot := &Slot{Key: key, Value: value, UpdatedAt: &now}

	_, err := s.db.NewInsert().
		Model(slot).
		On("CONFLICT (key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *KeyValue) Delete(ctx context.Context, key string) error {
	_, err := s.db.NewDelete().
		Model((*Slot)(nil)).
		Where("key = ?", key).
		Exec(ctx)
	return err
}
