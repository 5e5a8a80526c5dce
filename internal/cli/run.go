package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"github.com/stigoleg/middleclick/internal/config"
	"github.com/stigoleg/middleclick/internal/platform"
	"github.com/stigoleg/middleclick/internal/service"
	"github.com/stigoleg/middleclick/internal/supervisor"
	"github.com/stigoleg/middleclick/internal/ui"
)

var log = logrus.WithField("component", "cli")

const stopTimeout = 5 * time.Second

func run(ctx context.Context, opts *config.Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}

	if opts.Daemon {
		logPath, err := filepath.Abs(opts.LogFile)
		if err != nil {
			return err
		}
		child, release, err := service.Daemonize(logPath)
		if err != nil {
			return err
		}
		if child != nil {
			fmt.Printf("%s daemon started (pid %d), logging to %s\n", appName, child.Pid, logPath)
			return nil
		}
		defer release()
	}

	closeLog, err := setupLogging(opts)
	if err != nil {
		return err
	}
	defer closeLog()
	if service.IsChild() {
		log.WithField("pid", os.Getpid()).Info("Running as daemon")
	}

	store, err := openStore(opts)
	if err != nil {
		return err
	}
	if err := applyOverrides(store, opts); err != nil {
		return err
	}

	backend, err := platform.NewBackend()
	if err != nil {
		return fmt.Errorf("failed to initialize %s backend: %w", runtime.GOOS, err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			log.WithError(err).Warn("Failed to close backend")
		}
	}()

	if capab := backend.Permissions(); capab.Degraded() {
		log.WithField("problem", capab.ErrorMessage).Warn("Clicks cannot be intercepted yet, retrying in the background")
	}

	svc := service.New(store, backend, service.Options{
		Delays:        supervisor.NewDelays(opts.FastRestart, opts.ImmediateRestart),
		FilterTimeout: platform.FilterTimeout,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := svc.StopWithTimeout(stopTimeout); err != nil {
			log.WithError(err).Warn("Error stopping service")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, append(getSignalsForPlatform(), getReloadSignals()...)...)
	defer signal.Stop(sigChan)

	if opts.Headless {
		handleSignals(ctx, sigChan, store, func() {})
		return nil
	}
	return runTUI(ctx, sigChan, store, svc)
}

func runTUI(ctx context.Context, sigChan <-chan os.Signal, store *config.Store, svc *service.Service) error {
	model := ui.NewModel(svc)
	p := tea.NewProgram(
		model,
		tea.WithAltScreen(),
		tea.WithoutSignalHandler(),
	)

	go handleSignals(ctx, sigChan, store, p.Kill)

	final, err := p.Run()
	if m, ok := final.(ui.Model); ok {
		m.Close()
	}
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("error running program: %w", err)
	}
	return nil
}

// handleSignals reloads settings on the reload signal and calls stop on
// any other signal. It returns after stop or when ctx ends. The caller stops
// the service.
func handleSignals(ctx context.Context, sigChan <-chan os.Signal, store *config.Store, stop func()) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigChan:
			if isReloadSignal(sig) {
				log.WithField("signal", sig.String()).Info("Reloading settings")
				if err := store.Load(); err != nil {
					log.WithError(err).Warn("Failed to reload settings, keeping the current ones")
				}
				continue
			}
			if isSIGTSTPForPlatform(sig) {
				log.Info("Suspend requested, shutting down so input devices are not left grabbed")
			} else {
				log.WithField("signal", sig.String()).Info("Received signal")
			}
			stop()
			return
		}
	}
}
