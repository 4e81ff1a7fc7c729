package domain

import "time"

// BalanceSnapshot persisted portfolio state for one account.
type BalanceSnapshot struct {
	Timestamp time.Time      `json:"ts"`
	Account   string         `json:"account"`
	Entries   []BalanceEntry `json:"entries"`
	Degraded  bool           `json:"degraded,omitempty"`
}

// NewBalanceSnapshot creates a snapshot from a fetched portfolio.
func NewBalanceSnapshot(p Portfolio) BalanceSnapshot {
	entries := make([]BalanceEntry, len(p.Entries))
	copy(entries, p.Entries)

	return BalanceSnapshot{
		Timestamp: p.FetchedAt,
		Account:   p.Account,
		Entries:   entries,
		Degraded:  p.Degraded(),
	}
}

// BalanceSnapshotRecord bundles a snapshot with its WAL index.
type BalanceSnapshotRecord struct {
	Index    uint64
	Snapshot BalanceSnapshot
}
