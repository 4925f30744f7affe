// Package aiscodec is the boundary between structured position fields and
// raw AIVDM sentences. Bit packing and NMEA framing are delegated to go-ais.
package aiscodec

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	ais "github.com/BertoldVdb/go-ais"
	"github.com/BertoldVdb/go-ais/aisnmea"
)

var (
	ErrNotSentence = errors.New("payload is not an NMEA VDM/VDO sentence")
	ErrIncomplete  = errors.New("sentence is a fragment of an incomplete multi-part message")
	ErrUndecodable = errors.New("ais payload could not be decoded")
)

const (
	// NMEA fields in !AIVDM,frag-count,frag-num,seq-id,channel,payload,fill*cs
	MIN_SENTENCE_FIELDS = 6

	HEADING_NOT_AVAILABLE   = 511
	TIMESTAMP_NOT_AVAILABLE = 60
)

// Fields is the decoded view of one AIS message. Pointers are nil when the
// message type does not carry that field.
type Fields struct {
	Type    *int
	MMSI    *int64
	Lat     *float64
	Lon     *float64
	Speed   *float64
	Course  *float64
	Heading *int
	Status  *int
}

// PositionFields is the input for encoding a class A position report.
type PositionFields struct {
	MMSI     int
	Lat      float64
	Lon      float64
	Course   float64
	Heading  int
	Speed    float64
	Status   int
	Turn     int
	Acc      bool
	Maneuver int
	Raim     bool
	Radio    uint32
}

// Codec decodes and encodes AIVDM sentences. The underlying NMEA codec keeps
// fragment state, so access is serialised.
type Codec struct {
	mu   sync.Mutex
	nmea *aisnmea.NMEACodec
}

func New() *Codec {
	return &Codec{nmea: aisnmea.NMEACodecNew(ais.CodecNew(false, false))}
}

// Decode parses one raw sentence into Fields.
func (c *Codec) Decode(raw string) (Fields, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "!") || len(strings.Split(raw, ",")) < MIN_SENTENCE_FIELDS {
		return Fields{}, ErrNotSentence
	}

	c.mu.Lock()
	vdm, err := c.nmea.ParseSentence(raw)
	c.mu.Unlock()
	if err != nil {
		return Fields{}, fmt.Errorf("could not parse sentence: %w", err)
	}
	if vdm == nil {
		return Fields{}, ErrIncomplete
	}
	if vdm.Packet == nil {
		return Fields{}, ErrUndecodable
	}

	return fieldsFromPacket(vdm.Packet)
}

func fieldsFromPacket(p ais.Packet) (Fields, error) {
	h := p.GetHeader()
	f := Fields{
		Type: ptr(int(h.MessageID)),
		MMSI: ptr(int64(h.UserID)),
	}

	// go-ais hands back packets by value
	switch m := p.(type) {
	case ais.PositionReport:
		f.Lat = ptr(float64(m.Latitude))
		f.Lon = ptr(float64(m.Longitude))
		f.Speed = ptr(float64(m.Sog))
		f.Course = ptr(float64(m.Cog))
		f.Heading = ptr(int(m.TrueHeading))
		f.Status = ptr(int(m.NavigationalStatus))
	case ais.StandardClassBPositionReport:
		f.Lat = ptr(float64(m.Latitude))
		f.Lon = ptr(float64(m.Longitude))
		f.Speed = ptr(float64(m.Sog))
		f.Course = ptr(float64(m.Cog))
		f.Heading = ptr(int(m.TrueHeading))
	case ais.ExtendedClassBPositionReport:
		f.Lat = ptr(float64(m.Latitude))
		f.Lon = ptr(float64(m.Longitude))
		f.Speed = ptr(float64(m.Sog))
		f.Course = ptr(float64(m.Cog))
		f.Heading = ptr(int(m.TrueHeading))
	case ais.BaseStationReport:
		f.Lat = ptr(float64(m.Latitude))
		f.Lon = ptr(float64(m.Longitude))
	}
	// Other types decode without coordinates; validation flags them.

	return f, nil
}

// EncodePosition builds the AIVDM sentences for a type 1 position report.
func (c *Codec) EncodePosition(pf PositionFields) ([]string, error) {
	if pf.MMSI <= 0 || pf.MMSI > 999999999 {
		return nil, fmt.Errorf("mmsi %d out of range", pf.MMSI)
	}

	// the encoder only accepts packets by value
	report := ais.PositionReport{
		Header: ais.Header{
			MessageID: 1,
			UserID:    uint32(pf.MMSI),
		},
		Valid:                     true,
		NavigationalStatus:        uint8(pf.Status),
		RateOfTurn:                int16(pf.Turn),
		Sog:                       ais.Field10(pf.Speed),
		PositionAccuracy:          pf.Acc,
		Longitude:                 ais.FieldLatLonFine(pf.Lon),
		Latitude:                  ais.FieldLatLonFine(pf.Lat),
		Cog:                       ais.Field10(pf.Course),
		TrueHeading:               uint16(pf.Heading),
		Timestamp:                 TIMESTAMP_NOT_AVAILABLE,
		SpecialManoeuvreIndicator: uint8(pf.Maneuver),
		Raim:                      pf.Raim,
		CommunicationStateNoItdma: ais.CommunicationStateNoItdma{CommunicationState: pf.Radio},
	}

	c.mu.Lock()
	sentences := c.nmea.EncodeSentence(aisnmea.VdmPacket{
		Channel:     'A',
		TalkerID:    "AI",
		MessageType: "VDM",
		Packet:      report,
	})
	c.mu.Unlock()

	if len(sentences) == 0 {
		return nil, fmt.Errorf("encoder produced no sentence for mmsi %d", pf.MMSI)
	}
	return sentences, nil
}

func ptr[T any](v T) *T { return &v }
