package types

import (
	"strings"
	"time"
)

type DeviceType string

const (
	DeviceTypeAccessController DeviceType = "access_controller"
	DeviceTypeFaceReader       DeviceType = "face_reader"
	DeviceTypeANPR             DeviceType = "anpr"
)

// DeviceTypes lists the closed set of supported device types.
var DeviceTypes = []DeviceType{
	DeviceTypeAccessController,
	DeviceTypeFaceReader,
	DeviceTypeANPR,
}

func (t DeviceType) Valid() bool {
	switch t {
	case DeviceTypeAccessController, DeviceTypeFaceReader, DeviceTypeANPR:
		return true
	}
	return false
}

// ParseDeviceType accepts either the stored lowercase form or the
// upper-case enum name ("ACCESS_CONTROLLER").
func ParseDeviceType(s string) (DeviceType, bool) {
	t := DeviceType(strings.ToLower(strings.TrimSpace(s)))
	return t, t.Valid()
}

type DeviceStatus string

const (
	StatusActive   DeviceStatus = "active"
	StatusInactive DeviceStatus = "inactive"
)

func (s DeviceStatus) Valid() bool {
	return s == StatusActive || s == StatusInactive
}

func ParseDeviceStatus(s string) (DeviceStatus, bool) {
	st := DeviceStatus(strings.ToLower(strings.TrimSpace(s)))
	return st, st.Valid()
}

type Device struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Type      DeviceType   `json:"device_type"`
	IPAddress string       `json:"ip_address"`
	Status    DeviceStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func (d Device) Active() bool { return d.Status == StatusActive }
