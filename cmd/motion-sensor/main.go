// Command motion-sensor runs the presence detector: it filters a PIR input,
// drives the alarm state machine and serves the HTTP and MQTT surfaces.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/miswired/esp32-radar-sub000/internal/app"
	"github.com/miswired/esp32-radar-sub000/internal/config"
	"github.com/miswired/esp32-radar-sub000/internal/device"
	"github.com/miswired/esp32-radar-sub000/internal/eventlog"
	"github.com/miswired/esp32-radar-sub000/internal/gpio"
	"github.com/miswired/esp32-radar-sub000/internal/logger"
	"github.com/miswired/esp32-radar-sub000/internal/status"
	"github.com/miswired/esp32-radar-sub000/internal/store"
	"github.com/miswired/esp32-radar-sub000/internal/web"
)

// restartExitCode tells the service supervisor to start the daemon again.
const restartExitCode = 3

// shutdownTimeout bounds the HTTP drain on exit.
const shutdownTimeout = 5 * time.Second

var version = "dev"

type options struct {
	poll          time.Duration
	store         string
	provision     string
	httpAddr      string
	chip          string
	pinMotion     int
	pinLED        int
	activeLow     bool
	logLevel      string
	watchdog      time.Duration
	pidFile       string
	printState    bool
	clearPassword bool
}

func main() {
	_ = godotenv.Load()

	var o options
	flag.DurationVar(&o.poll, "poll", envDuration("POLL_INTERVAL", 50*time.Millisecond), "sensor polling interval")
	flag.StringVar(&o.store, "store", env("STORE", "file:/var/lib/motion-sensor"), `config store ("file:<dir>", "sqlite:<path>" or "mem:")`)
	flag.StringVar(&o.provision, "provision", env("PROVISION_FILE", ""), "YAML provisioning file applied when no config is stored")
	flag.StringVar(&o.httpAddr, "http", env("HTTP_ADDR", ":80"), "HTTP listen address (empty to disable)")
	flag.StringVar(&o.chip, "chip", env("GPIO_CHIP", gpio.DefaultChip), "GPIO character device")
	flag.IntVar(&o.pinMotion, "pin-motion", envInt("PIN_MOTION", gpio.DefaultPinMotion), "BCM pin of the motion sensor output")
	flag.IntVar(&o.pinLED, "pin-led", envInt("PIN_LED", gpio.DefaultPinLED), "BCM pin of the status LED (-1 to disable)")
	flag.BoolVar(&o.activeLow, "active-low", envBool("MOTION_ACTIVE_LOW", false), "treat a low motion input as motion")
	flag.StringVar(&o.logLevel, "log-level", env("LOG_LEVEL", "INFO"), "DEBUG, INFO, NOTICE, WARN or ERROR")
	flag.DurationVar(&o.watchdog, "watchdog", envDuration("WATCHDOG", app.DefaultWatchdog), "restart when a loop iteration stalls this long (0 to disable)")
	flag.StringVar(&o.pidFile, "pid-file", env("PID_FILE", "/run/motion-sensor.pid"), "daemon pid file used by -clear-password (empty to disable)")
	flag.BoolVar(&o.printState, "print-state", false, "print the sensor state as JSON and exit")
	flag.BoolVar(&o.clearPassword, "clear-password", false, "remove the web password and exit; a running daemon is signalled to do it")
	flag.Parse()

	code, err := run(o)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	os.Exit(code)
}

func run(o options) (int, error) {
	logger.SetLevel(o.logLevel)
	if o.clearPassword {
		return 0, clearPassword(os.Stdout, o)
	}
	ring := eventlog.New(eventlog.DefaultCapacity)
	logger.SetSink(ring.Add)

	id, err := device.ID()
	if err != nil {
		return 0, fmt.Errorf("device id: %w", err)
	}

	st, cfg, err := openConfig(o)
	if err != nil {
		return 0, err
	}
	defer st.Close()

	reader, err := gpio.NewRealReader(o.chip, o.pinMotion, o.activeLow)
	if err != nil {
		return 0, fmt.Errorf("init gpio: %w", err)
	}
	defer reader.Close()

	statusCfg := status.Config{
		PollMs:   o.poll.Milliseconds(),
		HTTPAddr: o.httpAddr,
		Store:    o.store,
		DeviceID: id,
		Version:  version,
	}
	if o.printState {
		motion, err := reader.Read()
		if err != nil {
			return 0, fmt.Errorf("read gpio: %w", err)
		}
		printState(os.Stdout, motion, statusCfg, time.Now())
		return 0, nil
	}

	var led gpio.LED = gpio.NopLED{}
	if o.pinLED >= 0 {
		l, err := gpio.NewRealLED(o.chip, o.pinLED)
		if err != nil {
			logger.Warnf("gpio: status led disabled: %v", err)
		} else {
			led = l
		}
	}

	watchdog := o.watchdog
	if watchdog == 0 {
		watchdog = -1
	}
	tracker := status.NewTracker(time.Now(), statusCfg)
	dev, err := app.New(app.Options{
		Config:   cfg,
		Reader:   reader,
		LED:      led,
		DeviceID: id,
		Version:  version,
		Watchdog: watchdog,
		Tracker:  tracker,
		Network:  readNetworkInfo,
	})
	if err != nil {
		return 0, err
	}

	var httpSrv shutdowner
	if o.httpAddr != "" {
		srv := web.New(o.httpAddr, dev, tracker, ring)
		httpSrv = srv
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorf("http: server error: %v", err)
			}
		}()
		logger.Infof("http: listening on %s", o.httpAddr)
	}

	logger.Infof("started: device=%s%s poll=%v store=%s version=%s", device.Prefix, id, o.poll, o.store, version)

	ticker := time.NewTicker(o.poll)
	defer ticker.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The handler must be in place before the pid file names this process
	clearReq := make(chan os.Signal, 1)
	if recoverSignal != nil {
		signal.Notify(clearReq, recoverSignal)
		defer signal.Stop(clearReq)
	}
	if o.pidFile != "" {
		if err := writePIDFile(o.pidFile); err != nil {
			logger.Warnf("pidfile: %v", err)
		} else {
			defer os.Remove(o.pidFile)
		}
	}

	return supervise(ctx, dev, ticker.C, httpSrv, clearReq), nil
}

// openConfig opens the store and loads the configuration record, applying
// the provisioning file to the defaults.
func openConfig(o options) (store.Store, *config.Manager, error) {
	var defaults func() config.Config
	if o.provision != "" {
		p, err := config.LoadProvisioning(o.provision)
		if err != nil {
			return nil, nil, err
		}
		if defaults, err = p.DefaultsFunc(); err != nil {
			return nil, nil, err
		}
	}

	st, err := store.Open(o.store)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	cfg := config.NewManager(st, defaults)
	outcome, err := cfg.Load()
	if err != nil {
		// Defaults are live even when they could not be persisted
		logger.Errorf("config: %v", err)
	}
	logger.Infof("config: %s", outcome)
	return st, cfg, nil
}

// clearPassword removes the web password. A running daemon owns the record
// and the session, so it is signalled to clear both; only when none is
// running is the stored record edited here.
func clearPassword(w io.Writer, o options) error {
	if pid, ok := daemonPID(o.pidFile); ok {
		if err := signalDaemon(pid); err != nil {
			return fmt.Errorf("signal daemon %d: %w", pid, err)
		}
		fmt.Fprintf(w, "asked running daemon (pid %d) to clear the web password\n", pid)
		return nil
	}

	st, cfg, err := openConfig(o)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := cfg.ClearPassword(); err != nil {
		return fmt.Errorf("clear password: %w", err)
	}
	fmt.Fprintln(w, "web password cleared")
	return nil
}

// printState writes the raw sensor reading and a status document for a
// device that has just started.
func printState(w io.Writer, motion bool, cfg status.Config, now time.Time) {
	tracker := status.NewTracker(now, cfg)
	tracker.SetClock(func() time.Time { return now })
	snap := tracker.Snapshot()
	snap.Filter = status.Filter{Raw: motion}

	fmt.Fprintf(w, "motion: %s\n", stateString(motion))
	fmt.Fprintf(w, "%s\n", status.FormatJSON(snap))
}

// shutdowner is the part of web.Server supervise needs.
type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// supervise runs the device loop until ctx is done or a restart is
// requested, then drains HTTP before stopping the loop so in-flight
// requests can still reach it. Each value on clearReq clears the web
// password and session. It returns the process exit code.
func supervise(ctx context.Context, dev *app.Device, tick <-chan time.Time, srv shutdowner, clearReq <-chan os.Signal) int {
	loopCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- dev.Run(loopCtx, tick) }()

	code := 0
wait:
	for {
		select {
		case <-ctx.Done():
			logger.Infof("shutting down")
			break wait
		case <-clearReq:
			logger.Noticef("clear-password requested")
			if err := dev.ClearPassword(ctx); err != nil {
				logger.Errorf("auth: %v", err)
			}
		case <-dev.RestartRequested():
			logger.Warnf("restarting: %s", dev.RestartReason())
			code = restartExitCode
			break wait
		case err := <-done:
			logger.Errorf("control loop exited: %v", err)
			return 1
		}
	}

	if srv != nil {
		sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := srv.Shutdown(sctx); err != nil {
			logger.Warnf("http: shutdown: %v", err)
		}
		scancel()
	}
	cancel()
	<-done
	return code
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

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}

func stateString(on bool) string {
	if on {
		return "MOTION"
	}
	return "CLEAR"
}

func env(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if n, err := strconv.Atoi(env(key, "")); err == nil {
		return n
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	switch strings.ToLower(env(key, "")) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(env(key, "")); err == nil {
		return d
	}
	return fallback
}
