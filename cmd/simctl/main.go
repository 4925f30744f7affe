// Command simctl drives a running simulator over its websocket bus: it
// starts a run, prints the first messages and stops it again.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/goccy/go-json"
	"nhooyr.io/websocket"

	"github.com/abhinesh-kourav/maritime-route-simulation/aisstream"
	"github.com/abhinesh-kourav/maritime-route-simulation/logging"
)

func main() {
	url := flag.String("url", "ws://localhost:8765", "simulator bus url")
	interval := flag.Float64("interval", aisstream.DEFAULT_INTERVAL_MIN, "simulated minutes per tick")
	speed := flag.Float64("speed", aisstream.DEFAULT_SPEED_FACTOR, "speed factor, 0 or less runs without delay")
	count := flag.Int("n", 10, "position reports to print before stopping, 0 to run until interrupted")
	noStop := flag.Bool("leave-running", false, "do not send stop on exit")
	retune := flag.Float64("set-speed", 0, "send set_speed_factor with this value once half the messages have arrived")
	flag.Parse()

	var setSpeed *float64
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "set-speed" {
			setSpeed = retune
		}
	})

	logging.Init(logging.Config{Level: "info", Format: "console", Timestamp: true})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, *url, *interval, *speed, setSpeed, *count, !*noStop); err != nil && !errors.Is(err, context.Canceled) {
		logging.Fatal().Err(err).Msg("simctl failed")
	}
}

func run(ctx context.Context, url string, interval, speed float64, setSpeed *float64, count int, sendStop bool) error {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	conn, _, err := websocket.Dial(dialCtx, url, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("could not dial %s: %w", url, err)
	}
	defer conn.CloseNow()

	err = send(ctx, conn, aisstream.Command{Command: aisstream.CMD_START, Interval: &interval, SpeedFactor: &speed})
	if err != nil {
		return err
	}

	seen := 0
	for count == 0 || seen < count {
		_, b, err := conn.Read(ctx)
		if err != nil {
			break
		}

		var ack aisstream.Ack
		if json.Unmarshal(b, &ack) == nil && ack.Status != "" {
			logging.Info().Str("status", ack.Status).Str("detail", ack.Detail).Msg("ack")
			continue
		}

		var msg aisstream.WireMessage
		if err := json.Unmarshal(b, &msg); err != nil {
			logging.Warn().Err(err).Msg("could not decode message")
			continue
		}
		seen++
		fmt.Printf("%d %s %v\n", msg.MMSI, msg.Timestamp, msg.Payload)

		if setSpeed != nil && seen == max(count/2, 1) {
			err := send(ctx, conn, aisstream.Command{Command: aisstream.CMD_SET_SPEED_FACTOR, SpeedFactor: setSpeed})
			if err != nil {
				return err
			}
			setSpeed = nil
		}
	}

	// an interrupted read has already torn the connection down
	if sendStop && ctx.Err() == nil {
		stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := send(stopCtx, conn, aisstream.Command{Command: aisstream.CMD_STOP}); err != nil {
			return err
		}
	}
	return conn.Close(websocket.StatusNormalClosure, "")
}

func send(ctx context.Context, conn *websocket.Conn, cmd aisstream.Command) error {
	b, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("could not marshal command: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		return fmt.Errorf("could not send %s: %w", cmd.Command, err)
	}
	return nil
}
