package simulator

import (
	"context"
	"fmt"
	"io"
	"sync"

	"go.bug.st/serial"

	"github.com/abhinesh-kourav/maritime-route-simulation/aisstream"
	"github.com/abhinesh-kourav/maritime-route-simulation/logging"
)

// LineSink writes each AIVDM sentence, CRLF terminated, to an NMEA stream
// such as a serial port.
type LineSink struct {
	mu sync.Mutex
	w  io.Writer
	c  io.Closer
}

func NewLineSink(w io.Writer) *LineSink {
	return &LineSink{w: w}
}

// OpenSerial opens port at baud 8N1 and returns a sink writing to it.
func OpenSerial(port string, baud int) (*LineSink, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}

	p, err := serial.Open(port, mode)
	if err != nil {
		return nil, fmt.Errorf("could not open serial port %s: %w", port, err)
	}

	logging.Info().Str("port", port).Int("baud", baud).Msg("opened serial port")
	return &LineSink{w: p, c: p}, nil
}

func (s *LineSink) Publish(_ context.Context, msg aisstream.WireMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sentence := range msg.Payload {
		if _, err := io.WriteString(s.w, sentence+"\r\n"); err != nil {
			logging.Warn().Err(err).Int("mmsi", msg.MMSI).Msg("serial write failed")
			return
		}
	}
}

func (s *LineSink) Close() error {
	if s.c == nil {
		return nil
	}
	return s.c.Close()
}
