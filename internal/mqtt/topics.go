package mqtt

import (
	"fmt"
	"strings"
)

// Topics builds topic names under a configurable prefix.
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	p := strings.Trim(t.Prefix, "/")
	if p == "" {
		return "devicesim"
	}
	return p
}

// Transaction is where simulated transactions are mirrored:
// <prefix>/transactions/<device_id>/<event_type>
func (t Topics) Transaction(deviceID, eventType string) string {
	return fmt.Sprintf("%s/transactions/%s/%s", t.prefix(), segment(deviceID), segment(eventType))
}

// Status carries the retained online/offline marker and the LWT.
func (t Topics) Status() string {
	return t.prefix() + "/status"
}

var segmentReplacer = strings.NewReplacer("/", "_", "+", "_", "#", "_")

// segment makes s safe to use as a single topic level.
func segment(s string) string {
	s = segmentReplacer.Replace(strings.TrimSpace(s))
	if s == "" {
		return "_"
	}
	return s
}
