// Vigil is a single-camera motion detection daemon: it watches a
// webcam, records footage while motion persists, and serves status over
// HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/emiller/vigil/internal/app"
	"github.com/emiller/vigil/internal/capture"
	"github.com/emiller/vigil/internal/config"
)

// Exit codes.
const (
	exitOK       = 0
	exitStartup  = 1
	exitNoDevice = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "vigil.json", "path to JSON config file")
	deviceID := flag.Int("device-id", -1, "camera device index")
	threshold := flag.Float64("threshold", 0, "motion threshold, percent of changed pixels")
	tick := flag.Duration("tick", 0, "interval between analysis passes")
	recordingWindow := flag.Duration("recording-window", 0, "how long a session outlives the last motion")
	stabilityWindow := flag.Duration("stability-window", 0, "calm time before the background adapts")
	disableExposureGuard := flag.Bool("disable-exposure-guard", false, "treat exposure shifts as motion")
	disableAutoExposure := flag.Bool("disable-exposure", false, "lock camera exposure instead of auto")
	listenAddr := flag.String("listen", "", "HTTP listen address, empty disables the server")
	capturePath := flag.String("captures", "", "root directory for recorded footage")
	dbPath := flag.String("db", "", "path to the sqlite event database")
	logLevel := flag.String("log-level", "", "debug, info, warn, or error")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vigil: %v\n", err)
		return exitStartup
	}
	applyFlags(cfg, *deviceID, *threshold, *tick, *recordingWindow, *stabilityWindow,
		*disableExposureGuard, *disableAutoExposure, *listenAddr, *capturePath, *dbPath, *logLevel)

	logger, err := buildLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vigil: %v\n", err)
		return exitStartup
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	a, err := app.New(cfg, sugar)
	if err != nil {
		sugar.Errorw("startup failed", "error", err)
		return exitStartup
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil {
		if errors.Is(err, capture.ErrDeviceUnavailable) {
			sugar.Errorw("camera unavailable", "device_id", cfg.DeviceID, "error", err)
			return exitNoDevice
		}
		sugar.Errorw("pipeline failed", "error", err)
		return exitStartup
	}

	return exitOK
}

// applyFlags overlays explicitly set flags onto the file config. Zero
// values mean the flag was left at its default and the file wins.
func applyFlags(cfg *config.Config, deviceID int, threshold float64,
	tick, recordingWindow, stabilityWindow time.Duration,
	disableExposureGuard, disableAutoExposure bool,
	listenAddr, capturePath, dbPath, logLevel string) {

	if deviceID >= 0 {
		cfg.DeviceID = deviceID
	}
	if threshold > 0 {
		cfg.MotionThreshold = threshold
	}
	if tick > 0 {
		cfg.TickInterval = config.Duration(tick)
	}
	if recordingWindow > 0 {
		cfg.RecordingWindow = config.Duration(recordingWindow)
	}
	if stabilityWindow > 0 {
		cfg.StabilityWindow = config.Duration(stabilityWindow)
	}
	if disableExposureGuard {
		cfg.ExposureGuard = false
	}
	if disableAutoExposure {
		cfg.AutoExposure = false
	}
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}
	if capturePath != "" {
		cfg.CapturePath = capturePath
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zcfg.Build()
}
