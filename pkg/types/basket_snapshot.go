package types

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// BasketSnapshotVersion is the current serialized snapshot schema version.
const BasketSnapshotVersion = 1

// BasketSnapshot is the immutable copy of a buyer's reserved items captured
// when a payment intent is opened. It is serialized into the pending
// settlement row; version mismatches fail loudly at the boundary instead of
// surfacing as missing keys at finalization time.
type BasketSnapshot struct {
	Version int                  `json:"version"`
	Items   []BasketSnapshotItem `json:"items"`
}

// BasketSnapshotItem carries everything the finalizer needs for one unit.
type BasketSnapshotItem struct {
	ProductUnitID      uuid.UUID `json:"productUnitId"`
	BasketEntryID      uuid.UUID `json:"basketEntryId"`
	Name               string    `json:"name"`
	Category           string    `json:"category"`
	Variant            string    `json:"variant"`
	Location           string    `json:"location"`
	CatalogPriceCents  int64     `json:"catalogPriceCents"`
	ResellerPercentage int       `json:"resellerPercentage"`
}

// PricePaidCents applies the reseller percentage to the catalog price. It
// prices the purchase record only; the buyer is charged the catalog price.
func (i BasketSnapshotItem) PricePaidCents() int64 {
	if i.ResellerPercentage <= 0 {
		return i.CatalogPriceCents
	}
	return i.CatalogPriceCents - i.CatalogPriceCents*int64(i.ResellerPercentage)/100
}

// CatalogTotalCents sums the undiscounted catalog prices. This is the base a
// discount code applies to.
func (s BasketSnapshot) CatalogTotalCents() int64 {
	var total int64
	for _, item := range s.Items {
		total += item.CatalogPriceCents
	}
	return total
}

// MarshalSnapshot serializes a snapshot with the current schema version.
func MarshalSnapshot(items []BasketSnapshotItem) (json.RawMessage, error) {
	snapshot := BasketSnapshot{Version: BasketSnapshotVersion, Items: items}
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("marshal basket snapshot: %w", err)
	}
	return raw, nil
}

// UnmarshalSnapshot deserializes and checks the schema version.
func UnmarshalSnapshot(raw json.RawMessage) (*BasketSnapshot, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("basket snapshot is empty")
	}
	var snapshot BasketSnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal basket snapshot: %w", err)
	}
	if snapshot.Version != BasketSnapshotVersion {
		return nil, fmt.Errorf("unsupported basket snapshot version %d", snapshot.Version)
	}
	return &snapshot, nil
}
