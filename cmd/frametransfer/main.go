package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/nkusongzhichao/PlusLib/pkg/config"
	"github.com/nkusongzhichao/PlusLib/pkg/engine"
	"github.com/nkusongzhichao/PlusLib/pkg/logger"
	"github.com/nkusongzhichao/PlusLib/pkg/monitoring"
	xos "github.com/nkusongzhichao/PlusLib/pkg/os"
	"github.com/nkusongzhichao/PlusLib/pkg/service"
	"github.com/nkusongzhichao/PlusLib/pkg/thread"
	"github.com/nkusongzhichao/PlusLib/pkg/transfer"
	flag "github.com/spf13/pflag"
)

var Version = "?"

func main() {
	conf, err := loadConfig(os.Args[1:])
	log := logger.NewConsole(conf.Debug, "frametransfer", false)
	if err != nil {
		log.Fatal().Err(err).Msg("Config")
	}
	log.Info().Msgf("version: %v", Version)
	log.Debug().Msgf("conf: %+v", conf)

	if err := conf.Transfer.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Config")
	}

	lock, err := xos.NewFileLock(conf.LockFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Device lock")
	}
	if err := lock.TryLock(); err != nil {
		log.Fatal().Err(err).Str("path", lock.Path()).Msg("Device lock")
	}
	defer func() { _ = lock.Unlock() }()

	var services service.Group
	if conf.Monitoring.IsEnabled() {
		mon, err := monitoring.New(conf.Monitoring, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Monitoring")
		}
		services.Add(mon)
	}
	services.Start()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-xos.ExpectTermination()
		log.Info().Msg("Shutting down")
		cancel()
	}()

	var runErr error
	thread.Wrap(func() {
		runErr = thread.CallErr(func() error { return run(ctx, conf, log) })
	})
	cancel()

	sctx, sCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer sCancel()
	if err := services.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("Shutdown")
	}

	switch {
	case errors.Is(runErr, transfer.ErrCapabilityUnavailable):
		log.Warn().Err(runErr).Msg("No fast path on this machine")
	case runErr != nil && !errors.Is(runErr, context.Canceled):
		log.Error().Err(runErr).Msg("Transfer failed")
		_ = lock.Unlock()
		os.Exit(1)
	}
}

// loadConfig reads the config, the flags override it.
// A --conf directory reloads the file from there.
func loadConfig(args []string) (config.Config, error) {
	conf, err := config.NewConfig()
	if err != nil {
		return conf, err
	}
	fs := flag.NewFlagSet("frametransfer", flag.ExitOnError)
	conf.WithFlags(fs)
	if err := fs.Parse(args); err != nil {
		return conf, err
	}
	if config.ConfigPath() == "" {
		return conf, nil
	}
	if err := config.LoadConfig(&conf, config.ConfigPath()); err != nil {
		return conf, err
	}
	// flags win over the file
	return conf, fs.Parse(args)
}

// run owns the GL context, it must be called on the main thread.
func run(ctx context.Context, conf config.Config, log *logger.Logger) error {
	p, err := newPlatform(conf, log)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	e := engine.New(conf.Transfer, p, log)
	if err := e.Open(); err != nil {
		return err
	}
	defer func() {
		if err := e.Close(); err != nil {
			log.Error().Err(err).Msg("Engine close")
		}
	}()
	log.Info().Stringer("backend", e.Kind()).Bool("conventional", e.Conventional()).Msg("Engine is open")

	r, err := e.Run(ctx, conf.Transfer.Frames, testPattern)
	capture, playback := e.Stats()
	log.Info().
		Int("frames", r.Frames).
		Int("missed", r.Missed).
		Int("failed", r.Failed).
		Dur("elapsed", r.Elapsed).
		Float64("fps", r.FPS()).
		Interface("capture", capture).
		Interface("playback", playback).
		Msg("Done")
	return err
}

// testPattern is a moving gray ramp of 4:2:2 texels.
func testPattern(frame int, buf []byte) {
	for i := 0; i+4 <= len(buf); i += 4 {
		y := byte(frame + i/4)
		buf[i], buf[i+1], buf[i+2], buf[i+3] = 0x80, y, 0x80, y
	}
}
