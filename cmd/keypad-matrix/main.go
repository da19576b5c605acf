// Command keypad-matrix scans a GPIO switch matrix and publishes key
// press/release events to MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/sweeney/keypad-matrix/internal/gpio"
	"github.com/sweeney/keypad-matrix/internal/logic"
	"github.com/sweeney/keypad-matrix/internal/matrix"
	"github.com/sweeney/keypad-matrix/internal/mqtt"
	"github.com/sweeney/keypad-matrix/internal/notify"
	"github.com/sweeney/keypad-matrix/internal/status"
	"github.com/sweeney/keypad-matrix/internal/web"
)

// DefaultScanPeriod is the interval between full matrix passes.
const DefaultScanPeriod = 10 * time.Millisecond

// eventQueue bounds key events waiting for the drive loop.
const eventQueue = 64

func main() {
	broker := flag.String("broker", "tcp://192.168.1.200:1883", "MQTT broker address (empty to disable)")
	heartbeat := flag.Duration("heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	printOnly := flag.Bool("print-state", false, "Scan once, print pressed keys and exit")
	httpAddr := flag.String("http", ":80", "HTTP status address (empty to disable)")
	wsBroker := flag.String("ws-broker", "=broker", `MQTT websocket URL for live UI ("=broker" derives from --broker, "off" disables)`)
	envFile := flag.String("env-file", "/run/pi-helper.env", "pi-helper network env file (empty to use process env only)")

	flag.Parse()

	ws := ""
	if *broker != "" {
		ws = resolveWSBroker(*wsBroker, *broker)
	}
	if err := run(*broker, *heartbeat, *printOnly, *httpAddr, ws, *envFile); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(broker string, heartbeat time.Duration, printOnly bool, httpAddr, wsBroker, envFile string) error {
	bank, err := gpio.NewRealBank(gpio.RowPins[:], gpio.ColPins[:])
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer bank.Close()

	m := matrix.New(bank.Inputs(), bank.Outputs())

	if printOnly {
		return printState(os.Stdout, os.Stderr, m)
	}

	bootID := uuid.NewString()

	var publisher mqtt.Publisher = mqtt.Discard{}
	var mqttStatus mqtt.ConnectionStatus
	if broker != "" {
		p, err := mqtt.NewRealPublisher(broker, bootID)
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		publisher, mqttStatus = p, p
	} else {
		log.Printf("mqtt disabled")
	}
	defer publisher.Close()

	rows, cols := m.Dims()
	tracker := status.NewTracker(time.Now(), bootID, logic.DefaultKeys, status.Config{
		Rows:         rows,
		Cols:         cols,
		ScanPeriodMs: DefaultScanPeriod.Milliseconds(),
		SettleUs:     matrix.DefaultSettleDelay.Microseconds(),
		HeartbeatMs:  heartbeat.Milliseconds(),
		Broker:       broker,
		HTTPPort:     httpAddr,
		WSBroker:     wsBroker,
	})
	if net := readNetworkInfo(envFile); net != nil {
		tracker.SetNetwork(net)
	}

	// Startup event carries the full snapshot so retained subscribers see config.
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		BootID:     bootID,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	if httpAddr != "" {
		srv := web.New(httpAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", httpAddr)
	}

	events := make(chan logic.Event, eventQueue)
	if err := watchKeys(m, logic.DefaultKeys, events); err != nil {
		return err
	}

	log.Printf("started: grid=%dx%d keys=%d scan=%v broker=%q heartbeat=%v boot=%s",
		rows, cols, len(logic.DefaultKeys), DefaultScanPeriod, broker, heartbeat, bootID)

	ticker := time.NewTicker(DefaultScanPeriod)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(m, events, publisher, mqttStatus, tracker, heartbeat, func() *status.NetworkInfo {
		return readNetworkInfo(envFile)
	}, time.Now, ticker.C, sigCh)
}

// watchKeys binds every key and starts its consumer goroutine. The goroutines
// run for the life of the process.
func watchKeys(m *matrix.Matrix, keys []logic.KeySpec, events chan<- logic.Event) error {
	for _, spec := range keys {
		key, err := m.Bind(spec.Row, spec.Col, notify.New())
		if err != nil {
			return fmt.Errorf("key %d: %w", spec.ID, err)
		}
		go logic.Watch(spec, key, time.Now, func(e logic.Event) { events <- e })
	}
	return nil
}

// scanner is the part of the matrix the drive loop uses.
type scanner interface {
	Scan()
	Stats() matrix.Stats
	Pressed(row, col int) bool
}

// runLoop is the drive loop: one full pass per tick and nothing that can block
// on the broker. Key events and due heartbeats go to a dispatcher goroutine.
func runLoop(m scanner, events <-chan logic.Event, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, heartbeat time.Duration, network func() *status.NetworkInfo, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	hb := logic.NewHeartbeat(now())
	beats := make(chan logic.HeartbeatData, 1)
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		newDispatcher(publisher, mqttStatus, tracker, network).run(events, beats, stop)
		close(done)
	}()

	var lastStats matrix.Stats
	refreshMQTT := func() {
		if tracker != nil && mqttStatus != nil {
			tracker.SetMQTTConnected(mqttStatus.IsConnected())
		}
	}

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			close(stop)
			<-done

			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			if tracker != nil {
				refreshMQTT()
				snap := tracker.Snapshot()
				event.BootID = snap.BootID
				event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", signalName)
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case <-tick:
			m.Scan()
			stats := m.Stats()
			if stats.ReadFaults > lastStats.ReadFaults || stats.WriteFaults > lastStats.WriteFaults {
				log.Printf("gpio faults: read=%d write=%d (total read=%d write=%d)",
					stats.ReadFaults-lastStats.ReadFaults, stats.WriteFaults-lastStats.WriteFaults,
					stats.ReadFaults, stats.WriteFaults)
			}
			if tracker != nil {
				tracker.SetScanStats(stats)
				if lastStats.Passes == 0 {
					tracker.SetReady(func(k logic.KeySpec) bool { return m.Pressed(k.Row, k.Col) })
				}
			}
			lastStats = stats
			refreshMQTT()

			if data := hb.Check(now(), heartbeat, nil); data != nil {
				select {
				case beats <- *data:
				default:
					log.Printf("heartbeat skipped: previous heartbeat still publishing")
				}
			}
		}
	}
}

// printState binds every cell, runs a single pass and prints the positions
// that read as pressed. Line faults count as released, as in normal scanning,
// and are reported on errOut.
func printState(out, errOut io.Writer, m *matrix.Matrix) error {
	pressed, stats, err := pressedCells(m)
	if err != nil {
		return err
	}
	printPressed(out, pressed)
	if stats.ReadFaults > 0 || stats.WriteFaults > 0 {
		fmt.Fprintf(errOut, "warning: %d read faults, %d write faults; faulted keys read as released\n",
			stats.ReadFaults, stats.WriteFaults)
	}
	return nil
}

// pressedCells binds every cell, runs a single pass and returns the
// positions that read as pressed, in row-major order, with the pass's stats.
func pressedCells(m *matrix.Matrix) ([][2]int, matrix.Stats, error) {
	rows, cols := m.Dims()
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if _, err := m.Bind(r, c, notify.New()); err != nil {
				return nil, matrix.Stats{}, fmt.Errorf("bind (%d,%d): %w", r, c, err)
			}
		}
	}
	m.Scan()
	var pressed [][2]int
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if m.Pressed(r, c) {
				pressed = append(pressed, [2]int{r, c})
			}
		}
	}
	return pressed, m.Stats(), nil
}

func printPressed(w io.Writer, pressed [][2]int) {
	if len(pressed) == 0 {
		fmt.Fprintln(w, "pressed: none")
		return
	}
	fmt.Fprint(w, "pressed:")
	for _, p := range pressed {
		fmt.Fprintf(w, " (%d,%d)", p[0], p[1])
	}
	fmt.Fprintln(w)
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

// readNetworkInfo reads the pi-helper network variables from envFile, with
// the process environment taking precedence. A missing file is not an error.
// Returns nil when no network status is known.
func readNetworkInfo(envFile string) *status.NetworkInfo {
	file := map[string]string{}
	if envFile != "" {
		if vals, err := godotenv.Read(envFile); err == nil {
			file = vals
		} else if !errors.Is(err, os.ErrNotExist) {
			log.Printf("read %s: %v", envFile, err)
		}
	}
	get := func(key string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return file[key]
	}

	s := get(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       get(envNetworkType),
		IP:         get(envNetworkIP),
		Status:     s,
		Gateway:    get(envNetworkGateway),
		WifiStatus: get(envNetworkWifiStatus),
		SSID:       get(envNetworkWifiSSID),
	}
}

// resolveWSBroker converts the --ws-broker flag value into a concrete URL.
// "=broker" derives ws://host:9001 from the TCP broker address; empty disables.
func resolveWSBroker(ws, broker string) string {
	if ws == "off" {
		return ""
	}
	if ws != "=broker" {
		return ws
	}
	u, err := url.Parse(broker)
	if err != nil {
		log.Printf("ws-broker: cannot parse --broker %q: %v", broker, err)
		return ""
	}
	u.Scheme = "ws"
	u.Host = u.Hostname() + ":9001"
	return u.String()
}
