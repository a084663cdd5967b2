package executor

import (
	"strings"
	"sync"
	"time"

	"cashier/pkg/session"
	"cashier/pkg/types"
	"cashier/pkg/wallet"
)

// ConfirmationTracker observes one submitted transaction by hash. It
// only reads the session record; status changes come from the external
// chain watcher.
type ConfirmationTracker struct {
	store     *session.Store
	connector wallet.Connector
	hash      string
	countdown time.Duration
	started   time.Time

	mu          sync.Mutex
	explorerURL string
	resolved    bool
}

// NewTracker starts tracking a transaction. The countdown is the
// caller's estimate of time to confirmation; it only drives display.
func NewTracker(store *session.Store, connector wallet.Connector, hash string, countdown time.Duration) *ConfirmationTracker {
	started := time.Now()
	if rec, ok := store.Record(hash); ok {
		started = rec.Created
	}
	return &ConfirmationTracker{
		store:     store,
		connector: connector,
		hash:      hash,
		countdown: countdown,
		started:   started,
	}
}

// Status returns the record's current lifecycle state.
func (t *ConfirmationTracker) Status() types.TxStatus {
	rec, ok := t.store.Record(t.hash)
	if !ok {
		return types.TxPending
	}
	return rec.Status
}

// Confirmed reports whether the transaction has landed.
func (t *ConfirmationTracker) Confirmed() bool {
	return t.Status() == types.TxConfirmed
}

// Failed reports whether the transaction was rejected or reverted.
func (t *ConfirmationTracker) Failed() bool {
	return t.Status() == types.TxFailed
}

// Remaining returns the countdown left at the given instant, floored
// at zero.
func (t *ConfirmationTracker) Remaining(now time.Time) time.Duration {
	left := t.countdown - now.Sub(t.started)
	if left < 0 {
		return 0
	}
	return left
}

// ExplorerURL returns the block-explorer link for the transaction,
// resolved from the connector once and cached.
func (t *ConfirmationTracker) ExplorerURL() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.resolved {
		t.resolved = true
		urls := t.connector.BlockExplorerURLs()
		if len(urls) > 0 {
			t.explorerURL = strings.TrimRight(urls[0], "/") + "/tx/" + t.hash
		}
	}
	return t.explorerURL
}
