package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/elid/devicesim/internal/devicesim/store"
	"github.com/elid/devicesim/internal/devicesim/types"
)

type DeviceStore struct {
	mu      sync.RWMutex
	devices map[string]types.Device
}

func NewDeviceStore(devices ...types.Device) *DeviceStore {
	s := &DeviceStore{devices: make(map[string]types.Device, len(devices))}
	for _, d := range devices {
		s.Put(d)
	}
	return s
}

// Put inserts or replaces a device. Blank ids are ignored.
func (s *DeviceStore) Put(d types.Device) {
	d.ID = strings.TrimSpace(d.ID)
	if d.ID == "" {
		return
	}
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = now
	}
	if d.Status == "" {
		d.Status = types.StatusInactive
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[d.ID] = d
}

func (s *DeviceStore) ListActive(_ context.Context) ([]types.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Device, 0, len(s.devices))
	for _, d := range s.devices {
		if d.Active() {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *DeviceStore) Get(_ context.Context, id string) (types.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devices[strings.TrimSpace(id)]
	if !ok {
		return types.Device{}, errors.Wrapf(store.ErrDeviceNotFound, "device %s", id)
	}
	return d, nil
}

func (s *DeviceStore) SetStatus(_ context.Context, id string, status types.DeviceStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id = strings.TrimSpace(id)
	d, ok := s.devices[id]
	if !ok {
		return errors.Wrapf(store.ErrDeviceNotFound, "device %s", id)
	}
	d.Status = status
	d.UpdatedAt = time.Now().UTC()
	s.devices[id] = d
	return nil
}
