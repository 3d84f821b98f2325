package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperbtc/turntrader/internal/models"
)

func sampleSnapshot() models.SessionSnapshot {
	return models.SessionSnapshot{
		SessionID:    "test-session",
		Phase:        models.PhaseAwaitingIntent,
		Portfolio:    models.Portfolio{Cash: 9000, Asset: 0.02},
		CurrentPrice: 50000,
		Valuation:    10000,
		Turn:         3,
		Anchor:       time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC),
		Interval:     models.Interval5m,
		Ledger:       3,
	}
}

func TestSnapshotStore_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	store, err := NewSnapshotStore(path)
	require.NoError(t, err)

	entries := []models.LedgerEntry{
		{ID: "a", Turn: 1, Action: models.ActionBuy, RequestedAmount: 1000, SettledPrice: 50000},
		{ID: "b", Turn: 2, Action: models.ActionHold},
		{ID: "c", Turn: 3, Action: models.ActionSellFailed, FailureReason: "insufficient asset balance"},
	}
	require.NoError(t, store.Save(sampleSnapshot(), entries))

	dump, err := store.Load()
	require.NoError(t, err)

	assert.Equal(t, "test-session", dump.Snapshot.SessionID)
	assert.Equal(t, 3, dump.Snapshot.Turn)
	assert.InDelta(t, 9000.0, dump.Snapshot.Portfolio.Cash, 1e-9)
	require.Len(t, dump.Ledger, 3)
	assert.Equal(t, models.ActionBuy, dump.Ledger[0].Action)
	assert.Equal(t, "insufficient asset balance", dump.Ledger[2].FailureReason)
	assert.False(t, dump.SavedAt.IsZero())
}

func TestSnapshotStore_SaveLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.json")
	store, err := NewSnapshotStore(path)
	require.NoError(t, err)

	require.NoError(t, store.Save(sampleSnapshot(), nil))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must be renamed away")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestSnapshotStore_SaveOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	store, err := NewSnapshotStore(path)
	require.NoError(t, err)

	first := sampleSnapshot()
	require.NoError(t, store.Save(first, nil))

	second := sampleSnapshot()
	second.Turn = 10
	require.NoError(t, store.Save(second, nil))

	dump, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 10, dump.Snapshot.Turn)
}

func TestNewSnapshotStore_EmptyPath(t *testing.T) {
	_, err := NewSnapshotStore("")
	assert.Error(t, err)
}

func TestSnapshotStore_LoadMissingFile(t *testing.T) {
	store, err := NewSnapshotStore(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)

	_, err = store.Load()
	assert.Error(t, err)
}

func TestSnapshotStore_LoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	store, err := NewSnapshotStore(path)
	require.NoError(t, err)

	_, err = store.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing session dump")
}
