// Package session owns the shared per-session state: authenticated
// identity, selected network, and the transaction records appended by
// the executor. Records are append-only from the core's point of view;
// status updates arrive from the external confirmation watcher through
// UpdateStatus.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"cashier/pkg/types"
)

const DefaultFileName = ".cashier-session.json"

// Store persists session state as a JSON file with atomic writes.
type Store struct {
	filePath string

	mu               sync.RWMutex
	data             sessionData
	onBalanceRefresh func()
}

type sessionData struct {
	Identity string                     `json:"identity"`
	Network  string                     `json:"network"`
	ChainID  int64                      `json:"chain_id"`
	Records  []*types.TransactionRecord `json:"records"`
}

// NewStore opens (or lazily creates) the session file. An empty path
// defaults to the user's home directory.
func NewStore(filePath string) (*Store, error) {
	if filePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		filePath = filepath.Join(home, DefaultFileName)
	}

	s := &Store{filePath: filePath}
	if err := s.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load session: %w", err)
		}
	}
	return s, nil
}

func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		return fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return nil
}

// save must be called with at least a read lock held.
func (s *Store) save() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Write to a temp file, then rename for an atomic replace.
	tempFile := s.filePath + ".tmp"
	if err := os.WriteFile(tempFile, raw, 0600); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := os.Rename(tempFile, s.filePath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// SetIdentity records the authenticated username.
func (s *Store) SetIdentity(identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Identity = identity
	return s.save()
}

// Identity returns the authenticated username, empty when logged out.
func (s *Store) Identity() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Identity
}

// SetNetwork records the selected network and chain id.
func (s *Store) SetNetwork(network string, chainID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Network = network
	s.data.ChainID = chainID
	return s.save()
}

// Network returns the selected network name and chain id.
func (s *Store) Network() (string, int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Network, s.data.ChainID
}

// Append adds a freshly broadcast transaction record, assigning its id
// and creation time. The record starts pending.
func (s *Store) Append(rec types.TransactionRecord) (*types.TransactionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.ID = uuid.New().String()
	rec.Created = time.Now()
	if rec.Status == "" {
		rec.Status = types.TxPending
	}

	stored := rec
	s.data.Records = append(s.data.Records, &stored)
	if err := s.save(); err != nil {
		return nil, err
	}
	out := stored
	return &out, nil
}

// Record returns a copy of the record with the given hash.
func (s *Store) Record(hash string) (types.TransactionRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.data.Records {
		if r.Hash == hash {
			return *r, true
		}
	}
	return types.TransactionRecord{}, false
}

// Records returns copies of all records, newest last.
func (s *Store) Records() []types.TransactionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.TransactionRecord, 0, len(s.data.Records))
	for _, r := range s.data.Records {
		out = append(out, *r)
	}
	return out
}

// UpdateStatus is the entry point for the external confirmation
// watcher. The calculation/execution core never calls it.
func (s *Store) UpdateStatus(hash string, status types.TxStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.data.Records {
		if r.Hash == hash {
			r.Status = status
			return s.save()
		}
	}
	return fmt.Errorf("transaction %s not found", hash)
}

// OnBalanceRefresh registers the callback invoked after the settle
// delay once a transaction lands.
func (s *Store) OnBalanceRefresh(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onBalanceRefresh = fn
}

// RequestBalanceRefresh triggers the registered refetch hook, if any.
func (s *Store) RequestBalanceRefresh() {
	s.mu.RLock()
	fn := s.onBalanceRefresh
	s.mu.RUnlock()
	if fn != nil {
		fn()
	}
}
