package store

import (
	"context"

	"github.com/pkg/errors"

	"github.com/elid/devicesim/internal/devicesim/types"
)

var ErrDeviceNotFound = errors.New("device not found")

// DeviceStore is the device directory the orchestrator reads active devices
// from and commits toggled status to.
type DeviceStore interface {
	ListActive(ctx context.Context) ([]types.Device, error)
	// Get returns ErrDeviceNotFound when no device has the given id.
	Get(ctx context.Context, id string) (types.Device, error)
	SetStatus(ctx context.Context, id string, status types.DeviceStatus) error
}
