package credential

import (
	"context"
	"strconv"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// Storage slot keys. The persisted state is three independent keyed slots;
// a read that finds an incomplete triple is treated as no stored token.
const (
	SlotTokenValue  = "credential.token.value"
	SlotTokenExpiry = "credential.token.expiry"
	SlotTokenTier   = "credential.token.tier"
)

// KeyValue is the minimal persistence capability the slot store needs.
// Adapters exist for memory (here) and bun backed SQL (store/bunstore).
type KeyValue interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// TokenStore persists the last known token record. Write is only ever
// invoked with a complete triple, Clear removes all three slots; partial
// updates are forbidden.
type TokenStore interface {
	Read(ctx context.Context) (*TokenRecord, error)
	Write(ctx context.Context, record TokenRecord) error
	Clear(ctx context.Context) error
}

// NewTokenStore returns a TokenStore over the given KeyValue backend.
func NewTokenStore(kv KeyValue) TokenStore {
	return &slotStore{kv: kv}
}

type slotStore struct {
	kv KeyValue
}

func (s *slotStore) Read(ctx context.Context) (*TokenRecord, error) {
	value, ok, err := s.kv.Get(ctx, SlotTokenValue)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read token slot")
	}
	if !ok || value == "" {
		return nil, nil
	}

	tierTag, ok, err := s.kv.Get(ctx, SlotTokenTier)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read tier slot")
	}
	tier, valid := ParseTier(tierTag)
	if !ok || !valid {
		return nil, nil
	}

	expiryRaw, ok, err := s.kv.Get(ctx, SlotTokenExpiry)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read expiry slot")
	}
	if !ok {
		return nil, nil
	}

	record := &TokenRecord{Value: value, Tier: tier}
	if millis, err := strconv.ParseInt(expiryRaw, 10, 64); err == nil && millis > 0 {
		t := time.UnixMilli(millis)
		record.ExpiresAt = &t
	} else if tier != TierFallbackAnon {
		// scoped tokens always carry an expiry
		return nil, nil
	}

	return record, nil
}

func (s *slotStore) Write(ctx context.Context, record TokenRecord) error {
	expiry := "0"
	if record.ExpiresAt != nil {
		expiry = strconv.FormatInt(record.ExpiresAt.UnixMilli(), 10)
	}

	if err := s.setAll(ctx, record.Value, expiry, string(record.Tier)); err != nil {
		// drop the partial triple so a later read cannot see it
		_ = s.Clear(ctx)
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist token record")
	}

	return nil
}

func (s *slotStore) setAll(ctx context.Context, value, expiry, tier string) error {
	if err := s.kv.Set(ctx, SlotTokenValue, value); err != nil {
		return err
	}
	if err := s.kv.Set(ctx, SlotTokenExpiry, expiry); err != nil {
		return err
	}
	return s.kv.Set(ctx, SlotTokenTier, tier)
}

func (s *slotStore) Clear(ctx context.Context) error {
	var firstErr error
	for _, key := range []string{SlotTokenValue, SlotTokenExpiry, SlotTokenTier} {
		if err := s.kv.Delete(ctx, key); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return goerrors.Wrap(firstErr, goerrors.CategoryInternal, "failed to clear token record")
	}
	return nil
}

// MemoryKeyValue is a process local KeyValue backend.
type MemoryKeyValue struct {
	mu    sync.RWMutex
	items map[string]string
}

// NewMemoryKeyValue creates an empty in-memory backend.
func NewMemoryKeyValue() *MemoryKeyValue {
	return &MemoryKeyValue{items: map[string]string{}}
}

func (m *MemoryKeyValue) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.items[key]
	return value, ok, nil
}

func (m *MemoryKeyValue) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = value
	return nil
}

func (m *MemoryKeyValue) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}
