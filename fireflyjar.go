// Package fireflyjar drives a strip of addressable LEDs as a jar of
// simulated fireflies. The daemon owns the firefly scheduler and ships pixel
// frames to a microcontroller over a serial line.
package fireflyjar

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"time"

	"github.com/photinus/fireflyjar/firefly"
	"github.com/photinus/fireflyjar/internal/led"
	"github.com/photinus/fireflyjar/ledserial"
	"github.com/pkg/errors"
	"go.bug.st/serial"
	"golang.org/x/sync/errgroup"
)

// Daemon is the main fireflyjar daemon.
type Daemon struct {
	cfg    *Config
	logger *slog.Logger
}

// NewDaemon creates a new fireflyjar daemon.
func NewDaemon(cfg *Config, logger *slog.Logger) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	return &Daemon{
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Run starts the daemon. It blocks until the given context is canceled or
// the controller reports an unrecoverable error.
func (d *Daemon) Run(ctx context.Context) error {
	return (&internalDaemon{Daemon: d}).Run(ctx)
}

type internalDaemon struct {
	*Daemon
	port serial.Port
}

func (d *internalDaemon) Run(ctx context.Context) error {
	port, err := serial.Open(d.cfg.Device, &serial.Mode{
		BaudRate: d.cfg.Baud,
	})
	if err != nil {
		return errors.Wrap(err, "failed to open serial port")
	}
	defer port.Close()

	d.port = port

	errg, ctx := errgroup.WithContext(ctx)
	errg.Go(func() error {
		<-ctx.Done()
		d.logger.Debug("closing serial port")
		if err := port.Close(); err != nil {
			return errors.Wrap(err, "failed to close serial port")
		}
		return ctx.Err()
	})

	packets := make(chan ledserial.ControllerPacket)
	errg.Go(func() error {
		return d.scheduleLoop(ctx, packets)
	})
	errg.Go(func() error {
		return d.readPackets(ctx, packets)
	})

	return errg.Wait()
}

func (d *internalDaemon) scheduleLoop(ctx context.Context, packets <-chan ledserial.ControllerPacket) error {
	d.logger.Debug("waiting 100ms for the read loop to start...")
	time.Sleep(100 * time.Millisecond)

	d.logger.Debug("sending initialize packet")
	if !d.writePacket(ledserial.InitializePacket{
		NumLEDs: uint16(d.cfg.Count),
	}) {
		return errors.New("failed to initialize LEDs")
	}

	surface := &serialSurface{
		daemon: d,
		leds:   led.NewLEDs(d.cfg.Count),
	}

	// All slots start dark. Fireflies repaint only their own slot, so this
	// is the one write that covers the whole strip.
	if err := surface.Clear(); err != nil {
		return err
	}

	seed := d.cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	d.logger.Debug("seeding randomness", "seed", seed)

	jar := firefly.NewJar(
		d.cfg.Count, surface,
		rand.New(rand.NewSource(seed)),
		d.cfg.Profile(),
	)

	d.logger.Info(
		"jar ready",
		"fireflies", jar.Len(),
		"flush", d.cfg.Flush)

	// One timer paces the whole jar: after each sweep it is re-armed to the
	// earliest firefly deadline. Sweeping later than that is still correct,
	// just late.
	sweep := time.NewTimer(0)
	defer sweep.Stop()

	var flushInterval time.Duration
	if d.cfg.Flush == FlushSweep {
		flushInterval = time.Second / time.Duration(d.cfg.Rate)
	}

	var dirty bool
	var nextFlush time.Time

eventLoop:
	for {
		select {
		case <-ctx.Done():
			break eventLoop

		case p := <-packets:
			if err := d.handlePacket(p); err != nil {
				return err
			}

		case <-sweep.C:
			now := time.Now()
			if jar.Sweep(now) > 0 {
				dirty = true
			}

			if dirty && flushInterval > 0 && !now.Before(nextFlush) {
				if err := surface.Flush(); err == nil {
					nextFlush = now.Add(flushInterval)
					dirty = false
				}
			}

			wake := jar.NextDue()
			if dirty && flushInterval > 0 && nextFlush.Before(wake) {
				wake = nextFlush
			}

			delay := time.Until(wake)
			if delay < 0 {
				delay = 0
			}
			sweep.Reset(delay)
		}
	}

	return nil
}

func (d *internalDaemon) handlePacket(p ledserial.ControllerPacket) error {
	switch p := p.(type) {
	case ledserial.AckPacket:
		d.logger.Debug(
			"received ack packet from controller",
			"acked_for", p.HostPacketType)

	case ledserial.ErrorPacket:
		d.logger.Warn(
			"received error packet from controller",
			"message", p.Message)
		return errors.New("controller reported error")

	case ledserial.PanicPacket:
		d.logger.Error(
			"controller unrecoverably panicked",
			"message", p.Message)
		return errors.New("controller panicked")

	case ledserial.LogPacket:
		d.logger.Info(
			"received log packet from controller",
			"message", p.Message)

	default:
		return errors.Errorf("received unknown packet from controller: %s", p.Type())
	}

	return nil
}

func (d *internalDaemon) readPackets(ctx context.Context, dst chan<- ledserial.ControllerPacket) error {
	if err := d.port.SetReadTimeout(serial.NoTimeout); err != nil {
		return errors.Wrap(err, "failed to reset read timeout")
	}

	for ctx.Err() == nil {
		p, err := ledserial.ReadControllerPacket(d.port)
		if err != nil {
			// A short read indicates a timeout. This is expected.
			// Ignore the error and try again.
			if errors.Is(err, io.EOF) {
				continue
			}
			return errors.Wrap(err, "failed to read packet")
		}

		d.logger.Debug(
			"received packet from controller",
			"type", p.Type())

		select {
		case <-ctx.Done():
			return ctx.Err()
		case dst <- p:
			// ok
		}
	}

	return ctx.Err()
}

func (d *internalDaemon) writePacket(p ledserial.HostPacket) bool {
	d.logger.Debug(
		"writing packet",
		"type", p.Type())

	if err := ledserial.WriteHostPacket(d.port, p); err != nil {
		d.logger.Warn(
			"failed to write packet",
			"packet", p.Type(),
			"error", err)
		return false
	}

	return true
}

// serialSurface is the firefly.Surface backed by the serial link. Fireflies
// paint into the local buffer; Flush ships the whole buffer as one SetPacket.
type serialSurface struct {
	daemon *internalDaemon
	leds   led.LEDs
}

var _ firefly.Surface = (*serialSurface)(nil)

func (s *serialSurface) Set(index int, c led.RGBColor) {
	s.leds.Set(index, c)
}

func (s *serialSurface) Flush() error {
	if !s.daemon.writePacket(ledserial.SetPacket{Pix: s.leds.AsPixels()}) {
		return errors.New("failed to write pixel data")
	}
	return nil
}

// Clear darkens the local buffer and the strip together, keeping the two in
// sync before the fireflies start painting.
func (s *serialSurface) Clear() error {
	s.leds.Clear()
	if !s.daemon.writePacket(ledserial.ClearPacket{}) {
		return errors.New("failed to clear LEDs")
	}
	return nil
}
