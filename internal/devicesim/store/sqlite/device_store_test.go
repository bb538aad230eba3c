package sqlite_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elid/devicesim/internal/devicesim/store"
	sqlitestore "github.com/elid/devicesim/internal/devicesim/store/sqlite"
	"github.com/elid/devicesim/internal/devicesim/types"
)

// ═══════════════════════════════════════════════════════════════════════════
// ListActive
// ═══════════════════════════════════════════════════════════════════════════

func TestDeviceStore_ListActive_OnlyActiveSortedByID(t *testing.T) {
	conn := openTestDB(t)
	ds := sqlitestore.NewDeviceStore(conn, newTestWriter(t, conn))

	seedDevice(t, conn, "dev-c", "anpr", "active")
	seedDevice(t, conn, "dev-a", "access_controller", "active")
	seedDevice(t, conn, "dev-b", "face_reader", "inactive")

	got, err := ds.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "dev-a", got[0].ID)
	assert.Equal(t, types.DeviceTypeAccessController, got[0].Type)
	assert.Equal(t, "dev-c", got[1].ID)
	assert.Equal(t, types.DeviceTypeANPR, got[1].Type)
	for _, d := range got {
		assert.Equal(t, types.StatusActive, d.Status)
	}
}

func TestDeviceStore_ListActive_EmptyTable(t *testing.T) {
	conn := openTestDB(t)
	ds := sqlitestore.NewDeviceStore(conn, newTestWriter(t, conn))

	got, err := ds.ListActive(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

// ═══════════════════════════════════════════════════════════════════════════
// Get
// ═══════════════════════════════════════════════════════════════════════════

func TestDeviceStore_Get_ReturnsColumns(t *testing.T) {
	conn := openTestDB(t)
	ds := sqlitestore.NewDeviceStore(conn, newTestWriter(t, conn))
	seedDevice(t, conn, "face-01", "face_reader", "inactive")

	d, err := ds.Get(context.Background(), "  face-01 ")
	require.NoError(t, err)

	assert.Equal(t, "face-01", d.ID)
	assert.Equal(t, "Device face-01", d.Name)
	assert.Equal(t, types.DeviceTypeFaceReader, d.Type)
	assert.Equal(t, "10.0.0.1", d.IPAddress)
	assert.Equal(t, types.StatusInactive, d.Status)
	assert.False(t, d.CreatedAt.IsZero())
}

func TestDeviceStore_Get_UnknownDevice(t *testing.T) {
	conn := openTestDB(t)
	ds := sqlitestore.NewDeviceStore(conn, newTestWriter(t, conn))

	_, err := ds.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrDeviceNotFound))
}

// ═══════════════════════════════════════════════════════════════════════════
// SetStatus
// ═══════════════════════════════════════════════════════════════════════════

func TestDeviceStore_SetStatus_PersistsAndBumpsUpdatedAt(t *testing.T) {
	conn := openTestDB(t)
	ds := sqlitestore.NewDeviceStore(conn, newTestWriter(t, conn))
	seedDevice(t, conn, "acc-01", "access_controller", "inactive")

	before, err := ds.Get(context.Background(), "acc-01")
	require.NoError(t, err)

	require.NoError(t, ds.SetStatus(context.Background(), "acc-01", types.StatusActive))

	after, err := ds.Get(context.Background(), "acc-01")
	require.NoError(t, err)
	assert.Equal(t, types.StatusActive, after.Status)
	assert.True(t, after.UpdatedAt.After(before.UpdatedAt))

	active, err := ds.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "acc-01", active[0].ID)
}

func TestDeviceStore_SetStatus_UnknownDevice(t *testing.T) {
	conn := openTestDB(t)
	ds := sqlitestore.NewDeviceStore(conn, newTestWriter(t, conn))

	err := ds.SetStatus(context.Background(), "ghost", types.StatusActive)
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrDeviceNotFound))
}

func TestDeviceStore_SetStatus_RejectsInvalidStatus(t *testing.T) {
	conn := openTestDB(t)
	ds := sqlitestore.NewDeviceStore(conn, newTestWriter(t, conn))
	seedDevice(t, conn, "acc-01", "access_controller", "inactive")

	err := ds.SetStatus(context.Background(), "acc-01", types.DeviceStatus("paused"))
	require.Error(t, err)

	d, err := ds.Get(context.Background(), "acc-01")
	require.NoError(t, err)
	assert.Equal(t, types.StatusInactive, d.Status)
}
