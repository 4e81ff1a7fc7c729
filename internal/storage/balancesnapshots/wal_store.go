// Package balancesnapshots persists portfolio snapshots for the dashboard stream.
package balancesnapshots

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/vadiminshakov/truthboard/internal/domain"
)

const (
	defaultSnapshotDir   = "./wal/balance"
	snapshotSegmentLimit = 1000
	snapshotMaxSegments  = 100
	accountKeyPrefix     = "account/"
)

var errNotInitialized = errors.New("balance snapshot store is not initialized")

// WALStore keeps a WAL of balance snapshots keyed by account, plus an
// in-memory index of which WAL entries belong to which account.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex

	// account -> WAL indexes, ascending
	byAccount map[string][]uint64
}

// NewWALStore opens the snapshot WAL under dir and rebuilds the account index.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = defaultSnapshotDir
	}

	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           "snapshot_",
		SegmentThreshold: snapshotSegmentLimit,
		MaxSegments:      snapshotMaxSegments,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init balance snapshot WAL")
	}

	s := &WALStore{wal: wal, byAccount: make(map[string][]uint64)}
	for idx := uint64(1); idx <= wal.CurrentIndex(); idx++ {
		key, _, ok := wal.Get(idx)
		if account, isSnapshot := accountFromKey(key); ok && isSnapshot {
			s.byAccount[account] = append(s.byAccount[account], idx)
		}
	}

	return s, nil
}

func accountKey(account string) string {
	return accountKeyPrefix + account
}

func accountFromKey(key string) (string, bool) {
	account, ok := strings.CutPrefix(key, accountKeyPrefix)
	return account, ok && account != ""
}

// Save appends the snapshot under its account.
func (s *WALStore) Save(snapshot domain.BalanceSnapshot) error {
	if s == nil || s.wal == nil {
		return errNotInitialized
	}
	if snapshot.Account == "" {
		return errors.New("balance snapshot account is required")
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return errors.Wrap(err, "marshal balance snapshot")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.wal.CurrentIndex() + 1
	if err := s.wal.Write(idx, accountKey(snapshot.Account), payload); err != nil {
		return errors.Wrapf(err, "write balance snapshot for %s", snapshot.Account)
	}
	s.byAccount[snapshot.Account] = append(s.byAccount[snapshot.Account], idx)
	return nil
}

// SnapshotsAfter returns every snapshot written after the given WAL index.
func (s *WALStore) SnapshotsAfter(index uint64) ([]domain.BalanceSnapshotRecord, error) {
	if s == nil || s.wal == nil {
		return nil, errNotInitialized
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	records := make([]domain.BalanceSnapshotRecord, 0, current-index)
	for idx := index + 1; idx <= current; idx++ {
		record, ok, err := s.read(idx)
		if err != nil {
			return nil, err
		}
		if ok {
			records = append(records, record)
		}
	}
	return records, nil
}

// AccountSnapshotsAfter is SnapshotsAfter restricted to one account.
func (s *WALStore) AccountSnapshotsAfter(account string, index uint64) ([]domain.BalanceSnapshotRecord, error) {
	if s == nil || s.wal == nil {
		return nil, errNotInitialized
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []domain.BalanceSnapshotRecord
	for _, idx := range s.byAccount[account] {
		if idx <= index {
			continue
		}
		record, ok, err := s.read(idx)
		if err != nil {
			return nil, err
		}
		if ok {
			records = append(records, record)
		}
	}
	return records, nil
}

// Latest returns the most recent snapshot of account.
func (s *WALStore) Latest(account string) (domain.BalanceSnapshot, bool, error) {
	if s == nil || s.wal == nil {
		return domain.BalanceSnapshot{}, false, errNotInitialized
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	indexes := s.byAccount[account]
	if len(indexes) == 0 {
		return domain.BalanceSnapshot{}, false, nil
	}
	record, ok, err := s.read(indexes[len(indexes)-1])
	return record.Snapshot, ok, err
}

// read must be called with mu held.
func (s *WALStore) read(idx uint64) (domain.BalanceSnapshotRecord, bool, error) {
	key, payload, ok := s.wal.Get(idx)
	if !ok {
		return domain.BalanceSnapshotRecord{}, false, nil
	}
	if _, isSnapshot := accountFromKey(key); !isSnapshot {
		return domain.BalanceSnapshotRecord{}, false, nil
	}

	var snapshot domain.BalanceSnapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return domain.BalanceSnapshotRecord{}, false, errors.Wrapf(err, "decode balance snapshot %d", idx)
	}
	return domain.BalanceSnapshotRecord{Index: idx, Snapshot: snapshot}, true, nil
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errNotInitialized
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
