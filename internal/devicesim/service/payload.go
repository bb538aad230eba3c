package service

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/elid/devicesim/internal/devicesim/types"
)

var sampleUsernames = []string{
	"john.doe",
	"jane.smith",
	"bob.jones",
	"alice.williams",
	"charlie.brown",
	"diana.prince",
	"evan.davis",
	"fiona.garcia",
}

var eventTypesByDevice = map[types.DeviceType][]string{
	types.DeviceTypeAccessController: {
		"access_granted", "access_denied", "door_opened", "door_closed", "access_timeout",
	},
	types.DeviceTypeFaceReader: {
		"face_match", "face_no_match", "face_detected", "multiple_faces", "face_recognition_error",
	},
	types.DeviceTypeANPR: {
		"plate_read", "plate_match", "plate_no_match", "invalid_plate", "vehicle_detected",
	},
}

var vehicleTypes = []string{"car", "truck", "motorcycle", "van"}

// GeneratePayload returns a fresh payload for one transaction of the given
// device type. Field names are fixed per type; only values vary. It panics
// on a type outside types.DeviceTypes, which StartWorker rejects upstream.
func GeneratePayload(t types.DeviceType) map[string]any {
	p := map[string]any{
		"confidence":         round2(uniform(0.75, 0.99)),
		"processing_time_ms": 50 + rand.IntN(451),
	}

	switch t {
	case types.DeviceTypeAccessController:
		p["card_number"] = fmt.Sprintf("%04d-%04d", rand.IntN(10000), rand.IntN(10000))
		p["reader_id"] = fmt.Sprintf("READER-%d", 1+rand.IntN(10))
	case types.DeviceTypeFaceReader:
		p["face_id"] = fmt.Sprintf("FACE-%04d", rand.IntN(10000))
		p["image_quality"] = round2(uniform(0.60, 1.00))
	case types.DeviceTypeANPR:
		p["plate_number"] = fmt.Sprintf("%s-%04d", randomLetters(3), rand.IntN(10000))
		p["camera_id"] = fmt.Sprintf("CAM-%d", 1+rand.IntN(5))
		p["vehicle_type"] = vehicleTypes[rand.IntN(len(vehicleTypes))]
	default:
		panic(fmt.Sprintf("service: no payload schema for device type %q", t))
	}

	return p
}

func eventTypeFor(t types.DeviceType) string {
	events, ok := eventTypesByDevice[t]
	if !ok {
		panic(fmt.Sprintf("service: no event types for device type %q", t))
	}
	return events[rand.IntN(len(events))]
}

func pickUsername() string {
	return sampleUsernames[rand.IntN(len(sampleUsernames))]
}

func uniform(lo, hi float64) float64 {
	return lo + rand.Float64()*(hi-lo)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func randomLetters(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('A' + rand.IntN(26))
	}
	return string(b)
}
