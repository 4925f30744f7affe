package aisstream

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

const MSG_AIVDM = "AIVDM"

// Control commands accepted by the simulator bus.
const (
	CMD_START            = "start"
	CMD_STOP             = "stop"
	CMD_SET_SPEED_FACTOR = "set_speed_factor"
)

const (
	STATUS_STARTED       = "simulation_started"
	STATUS_STOPPED       = "simulation_stopped"
	STATUS_SPEED_UPDATED = "speed_factor_updated"
)

const (
	DEFAULT_INTERVAL_MIN = 5.0
	DEFAULT_SPEED_FACTOR = 1.0

	NAIVE_TIMESTAMP_FORMAT = "2006-01-02T15:04:05.999999"
)

var (
	ErrInvalidJSON    = errors.New("message is not valid json")
	ErrMissingField   = errors.New("message is missing a required field")
	ErrInvalidPayload = errors.New("payload is neither a string nor a list of strings")
)

// WireMessage is one position report as it travels from producer to ingester.
type WireMessage struct {
	Message   string   `json:"message"`
	MMSI      int      `json:"mmsi"`
	Timestamp string   `json:"timestamp"`
	Payload   []string `json:"payload"`
}

func NewWireMessage(mmsi int, ts time.Time, sentences []string) WireMessage {
	return WireMessage{
		Message:   MSG_AIVDM,
		MMSI:      mmsi,
		Timestamp: ts.UTC().Format(time.RFC3339Nano),
		Payload:   sentences,
	}
}

// Report is a wire message reduced to the fields the pipeline needs.
type Report struct {
	MMSI      int64
	Timestamp time.Time
	Payload   string
	// TimestampValid is false when Timestamp was substituted with the
	// receive time.
	TimestampValid bool
}

type inbound struct {
	MMSI      *int64          `json:"mmsi"`
	Timestamp *string         `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// ParseReport extracts mmsi, timestamp and the first payload sentence.
// An unparseable timestamp is replaced by now.
func ParseReport(b []byte, now time.Time) (Report, error) {
	var in inbound
	if err := json.Unmarshal(b, &in); err != nil {
		return Report{}, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}

	if in.MMSI == nil || *in.MMSI == 0 {
		return Report{}, fmt.Errorf("%w: mmsi", ErrMissingField)
	}
	if in.Timestamp == nil || *in.Timestamp == "" {
		return Report{}, fmt.Errorf("%w: timestamp", ErrMissingField)
	}

	payload, err := firstPayload(in.Payload)
	if err != nil {
		return Report{}, err
	}

	r := Report{MMSI: *in.MMSI, Payload: payload}
	r.Timestamp, r.TimestampValid = ParseTimestamp(*in.Timestamp)
	if !r.TimestampValid {
		r.Timestamp = now
	}

	return r, nil
}

func firstPayload(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", fmt.Errorf("%w: payload", ErrMissingField)
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		if single == "" {
			return "", fmt.Errorf("%w: payload", ErrMissingField)
		}
		return single, nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return "", ErrInvalidPayload
	}
	if len(list) == 0 || list[0] == "" {
		return "", fmt.Errorf("%w: payload", ErrMissingField)
	}
	return list[0], nil
}

// ParseTimestamp accepts RFC 3339 and zone-less ISO-8601 timestamps. Zone-less
// values are taken as UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), true
	}
	for _, layout := range []string{NAIVE_TIMESTAMP_FORMAT, "2006-01-02 15:04:05.999999", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Command is a control message sent by a subscriber to the simulator.
type Command struct {
	Command     string   `json:"command"`
	Interval    *float64 `json:"interval,omitempty"`
	SpeedFactor *float64 `json:"speed_factor,omitempty"`
}

func (c Command) IntervalOrDefault() float64 {
	if c.Interval == nil {
		return DEFAULT_INTERVAL_MIN
	}
	return *c.Interval
}

func (c Command) SpeedFactorOrDefault() float64 {
	if c.SpeedFactor == nil {
		return DEFAULT_SPEED_FACTOR
	}
	return *c.SpeedFactor
}

type Ack struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}
