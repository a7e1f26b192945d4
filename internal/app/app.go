// Package app assembles the capture, detection, recording, and
// reporting pieces into one daemon and owns its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/emiller/vigil/internal/capture"
	"github.com/emiller/vigil/internal/config"
	"github.com/emiller/vigil/internal/detect"
	"github.com/emiller/vigil/internal/record"
	"github.com/emiller/vigil/internal/server"
	"github.com/emiller/vigil/internal/storage"
	"github.com/emiller/vigil/internal/store"
)

// App wires the whole pipeline: one capture loop feeding the frame
// slot, one detector draining it, the session manager consuming
// verdicts, and the HTTP server reporting on all of it.
type App struct {
	cfg    *config.Config
	logger *zap.SugaredLogger

	camera   capture.Camera
	slot     *capture.FrameSlot
	loop     *capture.Loop
	model    *detect.BackgroundModel
	detector *detect.Detector
	manager  *record.Manager
	store    *store.Store
	server   *server.Server

	recording atomic.Bool
	completed atomic.Uint64
	start     time.Time
}

// New builds the pipeline from configuration. The camera is not opened
// here; Run opens it so a missing device surfaces as a runtime error,
// not a construction error.
func New(cfg *config.Config, logger *zap.SugaredLogger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening event store: %w", err)
	}

	writer, err := buildWriter(cfg, logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	a := &App{
		cfg:    cfg,
		logger: logger.Named("app"),
		camera: capture.NewCamera(cfg.DeviceID),
		slot:   capture.NewFrameSlot(),
		store:  st,
		start:  time.Now(),
	}

	a.loop = capture.NewLoop(a.camera, a.slot, cfg.FailureThreshold, logger)
	a.model = detect.NewBackgroundModel(cfg.StabilityEpsilon, cfg.StabilityWindow.Std(), cfg.TickInterval.Std())
	a.manager = record.NewManager(writer, cfg.RecordingWindow.Std(), (*sessionRecorder)(a), logger)

	guard := detect.NewExposureGuard(cfg.ExposureGuard)
	a.detector = detect.NewDetector(a.slot, a.model, guard, (*eventSink)(a),
		cfg.MotionThreshold, cfg.TickInterval.Std(), logger)

	a.server = server.New(server.Config{
		Store:  st,
		Slot:   a.slot,
		Status: a.status,
		Logger: logger,
	})

	return a, nil
}

// buildWriter selects the footage backend.
func buildWriter(cfg *config.Config, logger *zap.SugaredLogger) (record.FootageWriter, error) {
	switch cfg.StorageBackend {
	case config.BackendMinIO:
		return storage.NewMinIOWriter(storage.MinIOConfig{
			Endpoint:        cfg.MinIO.Endpoint,
			AccessKeyID:     cfg.MinIO.AccessKey,
			SecretAccessKey: cfg.MinIO.SecretKey,
			UseSSL:          cfg.MinIO.UseSSL,
			Bucket:          cfg.MinIO.Bucket,
			Prefix:          cfg.MinIO.Prefix,
		}, logger)
	default:
		return storage.NewFSWriter(cfg.CapturePath, logger)
	}
}

// Run opens the camera and drives the pipeline until ctx is cancelled
// or the device fails persistently. The returned error wraps
// capture.ErrDeviceUnavailable when the camera is the cause.
func (a *App) Run(ctx context.Context) error {
	if err := a.camera.Open(); err != nil {
		return fmt.Errorf("%w: %v", capture.ErrDeviceUnavailable, err)
	}
	a.camera.SetAutoExposure(a.cfg.AutoExposure)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg      sync.WaitGroup
		loopErr error
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.loop.Run(ctx); err != nil {
			loopErr = err
			cancel()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.detector.Run(ctx)
	}()

	httpSrv := a.serveHTTP(ctx, &wg)

	a.logger.Infow("pipeline running",
		"device_id", a.cfg.DeviceID,
		"tick_interval", a.cfg.TickInterval.Std(),
		"storage_backend", a.cfg.StorageBackend)

	<-ctx.Done()
	wg.Wait()

	// The detection goroutine has exited, so the manager is safe to
	// touch from here.
	a.manager.CloseCurrent()

	if err := a.camera.Close(); err != nil {
		a.logger.Warnw("closing camera failed", "error", err)
	}
	a.model.Close()
	if httpSrv != nil {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		httpSrv.Shutdown(shutdownCtx)
		stop()
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warnw("closing event store failed", "error", err)
	}

	if loopErr != nil {
		return loopErr
	}
	a.logger.Info("pipeline stopped")
	return nil
}

// serveHTTP starts the reporting server when a listen address is
// configured. Server failures are logged, never fatal to capture.
func (a *App) serveHTTP(ctx context.Context, wg *sync.WaitGroup) *http.Server {
	if a.cfg.ListenAddr == "" {
		return nil
	}

	srv := &http.Server{Addr: a.cfg.ListenAddr, Handler: a.server}

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.logger.Infow("http server listening", "addr", a.cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Errorw("http server failed", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		srv.Shutdown(shutdownCtx)
	}()

	return srv
}

// status snapshots the pipeline for /api/status.
func (a *App) status() server.Status {
	snap := a.detector.Snapshot()

	state := record.StateIdle
	if a.recording.Load() {
		state = record.StateRecording
	}

	return server.Status{
		State:             state.String(),
		Uptime:            time.Since(a.start).String(),
		FramesCaptured:    a.loop.Published(),
		Ticks:             snap.Ticks,
		LastTick:          snap.LastTick,
		LastMagnitude:     snap.LastMagnitude,
		LastRawMagnitude:  snap.LastRaw,
		SessionsCompleted: a.completed.Load(),
	}
}

// eventSink adapts App into the detector's sink: verdicts go to the
// session manager, detected ones are persisted and broadcast. Runs on
// the detection goroutine.
type eventSink App

func (s *eventSink) HandleEvent(ev detect.Event, frame *capture.Frame) {
	a := (*App)(s)

	a.manager.HandleEvent(ev, frame)

	if ev.Detected {
		// SessionID is read after HandleEvent so the event links to
		// the session it opened or extended.
		if err := a.store.Events().Create(a.manager.SessionID(), ev.Timestamp, ev.Magnitude, ev.RawMagnitude); err != nil {
			a.logger.Errorw("persisting motion event failed", "error", err)
		}
	}

	a.server.Events().Broadcast(ev)
}

func (s *eventSink) Recording() bool {
	return (*App)(s).manager.Recording()
}

// sessionRecorder adapts App into the session manager's listener,
// mirroring session lifecycle into the store and the status atomics.
type sessionRecorder App

func (r *sessionRecorder) SessionStarted(sess record.Session) {
	a := (*App)(r)
	a.recording.Store(true)

	if err := a.store.Sessions().Create(sess.ID, sess.StartedAt, sess.Destination); err != nil {
		a.logger.Errorw("persisting session start failed",
			"session_id", sess.ID,
			"error", err)
	}
}

func (r *sessionRecorder) SessionEnded(sess record.Session) {
	a := (*App)(r)
	a.recording.Store(false)
	a.completed.Add(1)

	if err := a.store.Sessions().Finish(sess.ID, sess.EndedAt, sess.Frames, sess.CloseReason); err != nil {
		a.logger.Errorw("persisting session end failed",
			"session_id", sess.ID,
			"error", err)
	}
}
