package aiscodec

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	c := New()
	in := PositionFields{
		MMSI:    244123456,
		Lat:     51.9225,
		Lon:     4.47917,
		Course:  87.5,
		Heading: 88,
		Speed:   12.3,
	}

	sentences, err := c.EncodePosition(in)
	if err != nil {
		t.Fatalf("EncodePosition: %v", err)
	}
	if len(sentences) != 1 {
		t.Fatalf("got %d sentences, want 1", len(sentences))
	}
	if !strings.HasPrefix(sentences[0], "!AIVDM,1,1,") {
		t.Errorf("unexpected framing: %q", sentences[0])
	}

	f, err := c.Decode(sentences[0])
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if f.Type == nil || *f.Type != 1 {
		t.Errorf("type = %v, want 1", f.Type)
	}
	if f.MMSI == nil || *f.MMSI != 244123456 {
		t.Errorf("mmsi = %v", f.MMSI)
	}
	// 1/10000 minute resolution
	if f.Lat == nil || math.Abs(*f.Lat-in.Lat) > 1e-5 {
		t.Errorf("lat = %v, want %v", f.Lat, in.Lat)
	}
	if f.Lon == nil || math.Abs(*f.Lon-in.Lon) > 1e-5 {
		t.Errorf("lon = %v, want %v", f.Lon, in.Lon)
	}
	if f.Speed == nil || math.Abs(*f.Speed-12.3) > 0.05 {
		t.Errorf("speed = %v", f.Speed)
	}
	if f.Heading == nil || *f.Heading != 88 {
		t.Errorf("heading = %v", f.Heading)
	}
	if f.Status == nil || *f.Status != 0 {
		t.Errorf("status = %v", f.Status)
	}
}

func TestDecodeRejectsNonSentences(t *testing.T) {
	t.Parallel()

	c := New()
	for _, raw := range []string{"", "hello", "!AIVDM,1,1", "AIVDM,1,1,,A,13u?etPv2;0n:dDPwUM1U1Cb069D,0*24"} {
		if _, err := c.Decode(raw); !errors.Is(err, ErrNotSentence) {
			t.Errorf("Decode(%q) err = %v, want ErrNotSentence", raw, err)
		}
	}
}

func TestDecodeBadChecksum(t *testing.T) {
	t.Parallel()

	c := New()
	sentences, err := c.EncodePosition(PositionFields{MMSI: 244000001, Lat: 10, Lon: 10})
	if err != nil {
		t.Fatal(err)
	}
	s := sentences[0]
	broken := s[:len(s)-2] + "00"
	if strings.HasSuffix(s, "00") {
		broken = s[:len(s)-2] + "FF"
	}
	if _, err := c.Decode(broken); err == nil {
		t.Error("expected checksum failure")
	}
}

func TestEncodeRejectsBadMMSI(t *testing.T) {
	t.Parallel()

	c := New()
	for _, mmsi := range []int{0, -5, 1000000000} {
		if _, err := c.EncodePosition(PositionFields{MMSI: mmsi}); err == nil {
			t.Errorf("EncodePosition(mmsi=%d) should fail", mmsi)
		}
	}
}

func TestDecodeKnownSentence(t *testing.T) {
	t.Parallel()

	f, err := New().Decode("!AIVDM,1,1,,A,13u?etPv2;0n:dDPwUM1U1Cb069D,0*24")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if f.Type == nil || *f.Type != 1 {
		t.Errorf("type = %v, want 1", f.Type)
	}
	if f.MMSI == nil || *f.MMSI != 265547250 {
		t.Errorf("mmsi = %v, want 265547250", f.MMSI)
	}
	if f.Lat == nil || math.Abs(*f.Lat-57.660353) > 1e-5 {
		t.Errorf("lat = %v, want 57.660353", f.Lat)
	}
	if f.Lon == nil || math.Abs(*f.Lon-11.832977) > 1e-5 {
		t.Errorf("lon = %v, want 11.832977", f.Lon)
	}
	if f.Speed == nil || math.Abs(*f.Speed-13.9) > 0.05 {
		t.Errorf("speed = %v, want 13.9", f.Speed)
	}
	if f.Course == nil || math.Abs(*f.Course-40.4) > 0.05 {
		t.Errorf("course = %v, want 40.4", f.Course)
	}
	if f.Heading == nil || *f.Heading != 41 {
		t.Errorf("heading = %v, want 41", f.Heading)
	}
}
