package service

import "github.com/pkg/errors"

var (
	ErrUnknownDeviceType   = errors.New("unknown device type")
	ErrSupervisorClosed    = errors.New("worker supervisor closed")
	ErrNotReady            = errors.New("orchestrator not bootstrapped")
	ErrAlreadyBootstrapped = errors.New("orchestrator already bootstrapped")
	ErrStatusNotPersisted  = errors.New("device status not persisted")
	ErrInvalidStatus       = errors.New("invalid device status")
)
