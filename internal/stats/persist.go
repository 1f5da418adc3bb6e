package stats

import (
	"context"
	"encoding/json"
	"fmt"
)

// Statistics document scopes as stored.
const (
	KindGlobal   = "global"
	KindResort   = "resort"
	KindMonthly  = "monthly"
	KindTrends   = "trends"
	KindSnapshot = "snapshot"

	KeyOverview    = "overview"
	KeyPriceTrends = "price_trends"
	KeyAll         = "all"
)

// Store is the slice of the storage interface Persist needs.
type Store interface {
	PutStats(ctx context.Context, kind, key string, payload []byte) error
}

// Persist writes every scope of a snapshot: the global document, one per
// resort, one per month, the price trends, and the snapshot as a whole.
func Persist(ctx context.Context, store Store, snap *Snapshot) error {
	put := func(kind, key string, v any) error {
		payload, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal %s/%s: %w", kind, key, err)
		}
		if err := store.PutStats(ctx, kind, key, payload); err != nil {
			return fmt.Errorf("store %s/%s: %w", kind, key, err)
		}
		return nil
	}

	if err := put(KindGlobal, KeyOverview, snap.Global); err != nil {
		return err
	}
	for code, rs := range snap.Resorts {
		if err := put(KindResort, code, rs); err != nil {
			return err
		}
	}
	for month, ms := range snap.Monthly {
		if err := put(KindMonthly, month, ms); err != nil {
			return err
		}
	}
	if err := put(KindTrends, KeyPriceTrends, snap.PriceTrends); err != nil {
		return err
	}
	return put(KindSnapshot, KeyAll, snap)
}
