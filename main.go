// SPDX-License-Identifier: MIT
package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"peakbeat/cmd"
	"peakbeat/internal/analysis"
	"peakbeat/internal/audio"
	"peakbeat/internal/config"
	"peakbeat/internal/domain"
	applog "peakbeat/internal/log"
	"peakbeat/internal/source"
	"peakbeat/internal/transport"
	"peakbeat/internal/transport/udp"
	"peakbeat/internal/tui"
	"peakbeat/pkg/build"
)

// The pipeline restarts its clock whenever the engine starts a new source.
var _ audio.PlaybackStartListener = (*analysis.Pipeline)(nil)

// main runs in three phases:
//
// 1. Startup: build info, arguments, configuration, PortAudio.
// 2. Playback: the engine feeds spectra to the mapper on its dispatcher
//    goroutine while the transports publish peaks and bar heights.
// 3. Shutdown: on a signal or when the track ends, everything is closed in
//    reverse order.
func main() {
	if err := run(); err != nil {
		applog.Errorf("%v", err)
		os.Exit(1)
	}
}

func run() error {
	// ==================== STARTUP PHASE ====================

	if err := build.Initialize(); err != nil {
		applog.Debugf("Build: Using development build info: %v", err)
	}

	opts, err := cmd.ParseArgs(os.Args[1:])
	if err != nil {
		return err
	}
	if opts.Command == cmd.CommandNone {
		return nil
	}

	cfg, err := config.LoadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}
	opts.Apply(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	level, _ := applog.ParseLevel(cfg.LogLevel)
	applog.SetLevel(level)

	if err := audio.Initialize(); err != nil {
		return err
	}
	defer audio.Terminate()

	switch opts.Command {
	case cmd.CommandDevices:
		return runDevices(opts)
	case cmd.CommandPlay:
		return runPlay(opts, cfg)
	}
	return nil
}

func runDevices(opts *cmd.Options) error {
	if !opts.TUI {
		return audio.ListDevices(os.Stdout)
	}
	id, ok, err := tui.PickOutputDevice()
	if err != nil || !ok {
		return err
	}
	fmt.Printf("Selected device %d. Play with: %s play --device %d <file>\n", id, build.Get().Name, id)
	return nil
}

func runPlay(opts *cmd.Options, cfg *config.Config) error {
	deviceID := cfg.Audio.OutputDevice
	if opts.Pick {
		id, ok, err := tui.PickOutputDevice()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		deviceID = id
	}

	provider := source.NewFileProvider(cfg.Audio.AssetDir)
	if meta, err := provider.Describe(opts.Handle); err == nil {
		applog.Infof("Track: %s %s (%s)", meta.Title, byline(meta.Artist), meta.FileType)
	}

	// ==================== PLAYBACK PHASE ====================

	transports := transport.Multi{transport.NewLoggingTransport()}
	if cfg.Transport.WebSocketEnabled {
		wst := transport.NewWebSocketTransport(cfg.Transport.WebSocketAddr)
		if err := wst.Start(); err != nil {
			wst.Close()
			return fmt.Errorf("websocket transport: %w", err)
		}
		transports = append(transports, wst)
	}
	defer transports.Close()
	peaks := transport.NewPeakPublisher(transports)

	mapper, err := analysis.NewMapper(cfg.Spectrum.MapperConfig(), peaks)
	if err != nil {
		return err
	}
	snapshot := analysis.NewSnapshot(mapper.BarCount())

	finished := make(chan struct{}, 1)
	pipeline := analysis.NewPipeline(mapper,
		analysis.WithSnapshot(snapshot),
		analysis.WithFinishedHandler(func() {
			peaks.PublishFinished()
			select {
			case finished <- struct{}{}:
			default:
			}
		}),
	)

	if cfg.Transport.UDPEnabled {
		sender, err := udp.NewUDPSender(cfg.Transport.UDPTargetAddress)
		if err != nil {
			return err
		}
		defer sender.Close()
		publisher, err := udp.NewUDPPublisher(cfg.Transport.UDPSendInterval, sender, snapshot)
		if err != nil {
			return err
		}
		publisher.Start()
		defer publisher.Close()
	}

	engine, err := audio.New(audio.Config{
		FFTSize:         cfg.Audio.FFTSize,
		Window:          cfg.Audio.Window(),
		PrefetchBuffers: cfg.Audio.PrefetchBuffers,
		QueueDepth:      cfg.Audio.QueueDepth,
	}, audio.NewPortAudioDevice(deviceID, cfg.Audio.LowLatency), provider, pipeline)
	if err != nil {
		return err
	}
	defer engine.Close()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)

	pipeline.Restart()
	if err := engine.LoadAndPlay(opts.Handle); err != nil {
		switch {
		case errors.Is(err, domain.ErrSourceNotFound):
			return fmt.Errorf("%w (check the path or --asset-dir)", err)
		case errors.Is(err, domain.ErrDeviceUnavailable):
			return fmt.Errorf("%w (try another --device, see '%s devices')", err, build.Get().Name)
		}
		return err
	}

	select {
	case <-signals:
		applog.Infof("Shutdown: Signal received, stopping playback")
		engine.Stop()
	case <-finished:
	}

	// ==================== SHUTDOWN PHASE ====================

	sent, failed := peaks.Stats()
	applog.Infof("Shutdown: %d spectra analysed, %d peak messages sent, %d failed", pipeline.Frames(), sent, failed)
	return nil
}

func byline(artist string) string {
	if artist == "" {
		return ""
	}
	return "by " + artist
}
