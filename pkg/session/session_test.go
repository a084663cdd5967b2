package session

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"cashier/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "session.json"))
	require.NoError(t, err)
	return s
}

func TestAppendAssignsIdentityAndPendingStatus(t *testing.T) {
	s := newTestStore(t)

	rec, err := s.Append(types.TransactionRecord{
		Hash:        "0xabc",
		Kind:        types.TxDeposit,
		Amount:      "10",
		TokenSymbol: "USDT",
		Network:     "arbitrum",
	})
	require.NoError(t, err)
	require.NotEmpty(t, rec.ID)
	require.Equal(t, types.TxPending, rec.Status)
	require.False(t, rec.Created.IsZero())
}

func TestPersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	s, err := NewStore(path)
	require.NoError(t, err)

	require.NoError(t, s.SetIdentity("alice"))
	require.NoError(t, s.SetNetwork("arbitrum", 42161))
	_, err = s.Append(types.TransactionRecord{Hash: "0xabc", Kind: types.TxSwap})
	require.NoError(t, err)

	reopened, err := NewStore(path)
	require.NoError(t, err)
	require.Equal(t, "alice", reopened.Identity())
	network, chainID := reopened.Network()
	require.Equal(t, "arbitrum", network)
	require.Equal(t, int64(42161), chainID)

	rec, ok := reopened.Record("0xabc")
	require.True(t, ok)
	require.Equal(t, types.TxSwap, rec.Kind)
}

func TestUpdateStatusFromWatcher(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Append(types.TransactionRecord{Hash: "0xabc", Kind: types.TxWithdraw})
	require.NoError(t, err)

	require.NoError(t, s.UpdateStatus("0xabc", types.TxConfirmed))
	rec, ok := s.Record("0xabc")
	require.True(t, ok)
	require.Equal(t, types.TxConfirmed, rec.Status)
	require.True(t, rec.Terminal())

	require.Error(t, s.UpdateStatus("0xmissing", types.TxFailed))
}

func TestRecordReturnsCopy(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Append(types.TransactionRecord{Hash: "0xabc"})
	require.NoError(t, err)

	rec, _ := s.Record("0xabc")
	rec.Status = types.TxFailed // must not leak into the store

	stored, _ := s.Record("0xabc")
	require.Equal(t, types.TxPending, stored.Status)
}

func TestBalanceRefreshHook(t *testing.T) {
	s := newTestStore(t)
	called := 0
	s.OnBalanceRefresh(func() { called++ })
	s.RequestBalanceRefresh()
	s.RequestBalanceRefresh()
	require.Equal(t, 2, called)

	// No hook registered is a no-op, not a panic.
	s2 := newTestStore(t)
	s2.RequestBalanceRefresh()
}
