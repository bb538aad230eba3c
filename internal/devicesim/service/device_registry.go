package service

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/elid/devicesim/internal/devicesim/store"
	"github.com/elid/devicesim/internal/devicesim/types"
)

// DeviceRegistry normalises device ids before they reach the directory.
type DeviceRegistry struct {
	store store.DeviceStore
}

func NewDeviceRegistry(st store.DeviceStore) *DeviceRegistry {
	return &DeviceRegistry{store: st}
}

func (r *DeviceRegistry) ListActive(ctx context.Context) ([]types.Device, error) {
	return r.store.ListActive(ctx)
}

func (r *DeviceRegistry) Get(ctx context.Context, id string) (types.Device, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return types.Device{}, errors.Wrap(store.ErrDeviceNotFound, "empty device id")
	}
	return r.store.Get(ctx, id)
}

func (r *DeviceRegistry) SetStatus(ctx context.Context, id string, status types.DeviceStatus) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.Wrap(store.ErrDeviceNotFound, "empty device id")
	}
	return r.store.SetStatus(ctx, id, status)
}
