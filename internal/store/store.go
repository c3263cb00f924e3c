// Package store caches account snapshots in a bbolt database so a sync can
// seed its progress estimate when the snapshot endpoint is unreachable.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/Iron-Ham/finpace/internal/banksync"
)

// FileName is the database file created in the data directory.
const FileName = "finpace.db"

var bucketAccounts = []byte("accounts")

// AccountStore implements banksync.SnapshotStore using BoltDB.
type AccountStore struct {
	db *bolt.DB
	mu sync.RWMutex

	// memory holds every account when there is no database.
	memory map[string][]byte
}

var _ banksync.SnapshotStore = (*AccountStore)(nil)

// Open opens (creating if needed) the store in dir. An empty dir gives a
// memory-only store.
func Open(dir string) (*AccountStore, error) {
	if dir == "" {
		return &AccountStore{memory: make(map[string][]byte)}, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	db, err := bolt.Open(filepath.Join(dir, FileName), 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketAccounts)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &AccountStore{db: db}, nil
}

// Close closes the database.
func (s *AccountStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// GetAccount returns the cached snapshot of accountID.
func (s *AccountStore) GetAccount(accountID string) (banksync.AccountSnapshot, bool, error) {
	var snap banksync.AccountSnapshot

	data, err := s.get(accountID)
	if err != nil || data == nil {
		return snap, false, err
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, false, fmt.Errorf("corrupt snapshot for %s: %w", accountID, err)
	}
	return snap, true, nil
}

// PutAccounts stores the given snapshots in one transaction. A snapshot
// without SyncedAt keeps the previously cached one.
func (s *AccountStore) PutAccounts(accounts ...banksync.AccountSnapshot) error {
	if len(accounts) == 0 {
		return nil
	}

	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, a := range accounts {
			if err := putMemory(s.memory, a); err != nil {
				return err
			}
		}
		return nil
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAccounts)
		for _, a := range accounts {
			a = keepSyncedAt(a, b.Get([]byte(a.PlaidID)))
			data, err := json.Marshal(a)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(a.PlaidID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListAccounts returns every cached snapshot ordered by name, then ID.
func (s *AccountStore) ListAccounts() ([]banksync.AccountSnapshot, error) {
	var raw [][]byte

	if s.db == nil {
		s.mu.RLock()
		for _, v := range s.memory {
			raw = append(raw, v)
		}
		s.mu.RUnlock()
	} else {
		err := s.db.View(func(tx *bolt.Tx) error {
			return tx.Bucket(bucketAccounts).ForEach(func(_, v []byte) error {
				raw = append(raw, append([]byte(nil), v...))
				return nil
			})
		})
		if err != nil {
			return nil, err
		}
	}

	accounts := make([]banksync.AccountSnapshot, 0, len(raw))
	for _, data := range raw {
		var snap banksync.AccountSnapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return nil, fmt.Errorf("corrupt snapshot: %w", err)
		}
		accounts = append(accounts, snap)
	}
	sort.Slice(accounts, func(i, j int) bool {
		if accounts[i].Name != accounts[j].Name {
			return accounts[i].Name < accounts[j].Name
		}
		return accounts[i].PlaidID < accounts[j].PlaidID
	})
	return accounts, nil
}

// DeleteAccount removes accountID from the cache.
func (s *AccountStore) DeleteAccount(accountID string) error {
	if s.db == nil {
		s.mu.Lock()
		delete(s.memory, accountID)
		s.mu.Unlock()
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAccounts).Delete([]byte(accountID))
	})
}

func (s *AccountStore) get(accountID string) ([]byte, error) {
	if s.db == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return s.memory[accountID], nil
	}

	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketAccounts).Get([]byte(accountID)); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	return data, err
}

func putMemory(m map[string][]byte, a banksync.AccountSnapshot) error {
	a = keepSyncedAt(a, m[a.PlaidID])
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	m[a.PlaidID] = data
	return nil
}

// keepSyncedAt carries the previous SyncedAt into a snapshot read from the
// server, which does not report it.
func keepSyncedAt(a banksync.AccountSnapshot, prev []byte) banksync.AccountSnapshot {
	if !a.SyncedAt.IsZero() || prev == nil {
		return a
	}
	var old banksync.AccountSnapshot
	if json.Unmarshal(prev, &old) == nil {
		a.SyncedAt = old.SyncedAt
	}
	return a
}
