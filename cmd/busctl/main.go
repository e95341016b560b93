// Command busctl opens a fieldbus and runs a discovery operation
// (enumerate or scan) against it, adapted from
// sagostin-goefidash/cmd/goefidash's flag parsing, context+signal
// handling, and connect-with-retry loop — retargeted from driving a
// dashboard server to driving bus enumeration.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"busmaster/internal/busio"
	"busmaster/internal/busstat"
	"busmaster/internal/config"
	"busmaster/internal/enum"
	"busmaster/internal/locator"
	"busmaster/internal/serialport"
)

func main() {
	configPath := flag.String("config", "/etc/busmaster/config.yaml", "Path to config file")
	portOverride := flag.String("port", "", "Override serial port device")
	command := flag.String("cmd", "enumerate", "Operation to run: enumerate or scan")
	useSeq := flag.Bool("seq", true, "Enumerate: use sequential neighbor-chaining")
	useBin := flag.Bool("bin", true, "Enumerate: fall back to (or use exclusively) binary UUID search")
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("[main] busctl starting")

	cfg := config.LoadConfig(*configPath)
	if *portOverride != "" {
		cfg.Bus.Port = *portOverride
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("[main] received %v, shutting down", sig)
		cancel()
	}()

	port, err := connectWithRetry(ctx, cfg.Bus, 10)
	if err != nil {
		log.Fatalf("[main] giving up connecting to %s: %v", cfg.Bus.Port, err)
	}
	defer port.Close()

	arb := busio.NewArbiter(cfg.Bus.Baud, time.Duration(cfg.Bus.DeviceProcessingTimeMs)*time.Millisecond)
	transport := busio.NewTransport(port, arb)
	loc := locator.New(transport)

	rec := busstat.New(busstat.Config{
		Enabled:    cfg.Logging.Enabled,
		Path:       cfg.Logging.Path,
		IntervalMs: cfg.Logging.IntervalMs,
	})
	defer rec.Close()

	switch *command {
	case "scan":
		runScan(ctx, loc, cfg)
	default:
		runEnumerate(ctx, loc, *useSeq, *useBin)
	}

	rec.Record(0, transport.Stats())
}

func runScan(ctx context.Context, loc *locator.Locator, cfg *config.Config) {
	found, kind := loc.ScanBusAddresses(ctx, byte(cfg.Locator.ScanFirst), byte(cfg.Locator.ScanLast), cfg.Locator.StopOnMissing)
	if kind != busio.Success {
		log.Fatalf("[main] scan failed: %v", kind)
	}
	for _, addr := range found {
		fmt.Printf("address %d responded\n", addr)
	}
}

func runEnumerate(ctx context.Context, loc *locator.Locator, useSeq, useBin bool) {
	report, kind := enum.EnumerateDevices(ctx, loc, useSeq, useBin)
	if kind != busio.Success {
		log.Fatalf("[main] enumerate failed: %v", kind)
	}
	log.Printf("[main] enumerated %d devices (order_known=%v)", len(report.Results), report.OrderKnown)
	for _, r := range report.Results {
		fmt.Printf("uuid=%#010x address=%d\n", r.UUID, r.Address)
	}
}

// connectWithRetry opens the serial port with exponential backoff,
// starting at 1s and doubling up to 60s, and gives up after maxAttempts
// failed attempts, returning the last open error (mirrors the teacher's
// connectWithRetry loop, adapted from "keep a provider alive" to "open a
// port that may not exist yet").
func connectWithRetry(ctx context.Context, cfg config.BusConfig, maxAttempts int) (*serialport.Port, error) {
	delay := time.Second
	maxDelay := 60 * time.Second
	attempt := 0

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		port, err := serialport.Open(serialport.Config{
			Device:    cfg.Port,
			Baud:      cfg.Baud,
			TimeoutMs: cfg.TimeoutMs,
		})
		if err == nil {
			log.Printf("[main] connected to %s (attempt %d)", cfg.Port, attempt+1)
			return port, nil
		}

		attempt++
		log.Printf("[main] connect attempt %d failed: %v (retry in %v)", attempt, err, delay)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
		if attempt >= maxAttempts {
			return nil, err
		}
	}
}
