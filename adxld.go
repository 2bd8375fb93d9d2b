package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"lautenbacher.net/adxld/adxl"
	c "lautenbacher.net/adxld/config"
	"lautenbacher.net/adxld/logging"
	pl "lautenbacher.net/adxld/platform"
	"lautenbacher.net/adxld/web"
)

const shutdownTimeout = 5 * time.Second

// ossignal receives OS signals as well as quit and reload requests from the
// sample viewer.
var ossignal = make(chan os.Signal, 1)

func main() {
	cfile := flag.String("config", c.CONFILE, "Path to the config file")
	realp := flag.Bool("real", false, "Set to true if program runs on the real hardware")
	showSamples := flag.Bool("show-samples", false, "Show a live TUI of the sampled accelerometer data")
	flag.Parse()

	signal.Notify(ossignal, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	if err := adxl.Default.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise device namespace: %v\n", err)
		os.Exit(1)
	}

	exitCode := 0
	for {
		conf, err := c.ReadConfig(*cfile)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			exitCode = 2
			break
		}
		conf.RealHW = *realp
		conf.ShowSamples = *showSamples

		lc := conf.LogConfigFor(conf.ShowSamples)
		if err := logging.Init(logging.Options{
			Buffer: conf.ShowSamples,
			Level:  lc.Level,
			Format: lc.Format,
			File:   lc.File,
		}); err != nil {
			fmt.Fprintf(os.Stderr, "failed to initialise logging: %v\n", err)
			exitCode = 2
			break
		}

		restart, err := run(conf)
		if err != nil {
			slog.Error("Exiting", "error", err)
			exitCode = 1
		}
		logging.Close()
		if !restart || err != nil {
			break
		}
	}

	adxl.Default.Teardown()
	os.Exit(exitCode)
}

func newPlatform(conf *c.Config) pl.Platform {
	if conf.RealHW {
		return pl.NewRaspberryPiPlatform(conf, adxl.Default)
	}
	return pl.NewSimulationPlatform(conf, adxl.Default)
}

// run starts the platform and web server for one configuration and blocks
// until a signal or a config file change. It reports whether the caller
// should reload the configuration and run again.
func run(conf *c.Config) (bool, error) {
	platform := newPlatform(conf)
	if conf.ShowSamples {
		platform.SetSampleViewer(pl.NewSampleViewer(ossignal))
	}

	watcher, err := watchConfig(conf.Configfile)
	if err != nil {
		// Reload through SIGHUP still works.
		slog.Warn("Config file watch disabled", "file", conf.Configfile, "error", err)
	} else {
		defer watcher.Close()
	}

	if err := platform.Start(); err != nil {
		return false, fmt.Errorf("failed to start platform: %w", err)
	}
	<-platform.Ready()
	slog.Info("Platform ready", "real", conf.RealHW, "devices", len(platform.Devices()))

	var srv *http.Server
	if conf.Web.Enabled {
		srv = &http.Server{
			Addr:    conf.Web.Address,
			Handler: web.NewHandler(adxl.Default, platform.Samples(), conf.Configfile),
		}
		go func() {
			slog.Info("Starting web server", "address", conf.Web.Address)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Web server failed", "error", err)
			}
		}()
	}

	restart := wait(watcher, conf.Configfile)

	// In-flight requests hold sessions; drain them before detaching.
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("Web server shutdown failed", "error", err)
		}
		cancel()
	}
	platform.Stop()
	if conf.ShowSamples {
		if err := logging.SetOutput(os.Stderr); err != nil {
			slog.Error("Failed to restore log output", "error", err)
		}
	}
	return restart, nil
}

// wait blocks until the process should stop or restart.
func wait(watcher *fsnotify.Watcher, cfile string) bool {
	var events <-chan fsnotify.Event
	var errs <-chan error
	if watcher != nil {
		events = watcher.Events
		errs = watcher.Errors
	}

	for {
		select {
		case sig := <-ossignal:
			if restartRequested(sig) {
				slog.Info("Reloading configuration", "signal", sig.String())
				return true
			}
			slog.Info("Shutting down", "signal", sig.String())
			return false
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if isConfigEvent(ev, cfile) {
				slog.Info("Config file changed, restarting", "file", ev.Name, "op", ev.Op.String())
				return true
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			slog.Error("Config watcher error", "error", err)
		}
	}
}

// watchConfig watches the directory of cfile, so editors that replace the
// file instead of writing it in place are noticed too.
func watchConfig(cfile string) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(cfile)); err != nil {
		watcher.Close()
		return nil, err
	}
	return watcher, nil
}

func isConfigEvent(ev fsnotify.Event, cfile string) bool {
	if filepath.Clean(ev.Name) != filepath.Clean(cfile) {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)
}

func restartRequested(sig os.Signal) bool {
	return sig == syscall.SIGHUP
}
