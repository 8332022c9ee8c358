package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tendant/teamspace/internal/app"
	"github.com/tendant/teamspace/internal/config"
	"github.com/tendant/teamspace/internal/logging"
	"github.com/tendant/teamspace/pkg/cache"
	"github.com/tendant/teamspace/pkg/domain"
	"github.com/tendant/teamspace/pkg/shell"
	"go.uber.org/zap"
)

// deviceSession is one CLI invocation acting as a device: the backend, the
// durable cache, and the started shell.
type deviceSession struct {
	ctx     context.Context
	stop    context.CancelFunc
	cfg     *config.Config
	logger  *zap.Logger
	backend *app.Backend
	cache   *cache.Bolt
	device  *app.Device
	out     io.Writer
}

// openSession loads configuration, opens the backend and the cache file,
// and starts the device shell. Session check failures are logged and the
// device continues unauthenticated.
func openSession(cmd *cobra.Command) (*deviceSession, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	logger, err := logging.New(cfg.LogLevel, logging.Console)
	if err != nil {
		return nil, err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	backend, err := app.Open(ctx, cfg, logger, app.Options{})
	if err != nil {
		stop()
		return nil, err
	}
	c, err := cache.OpenBolt(cfg.CachePath)
	if err != nil {
		stop()
		_ = backend.Close()
		return nil, err
	}

	s := &deviceSession{
		ctx:     ctx,
		stop:    stop,
		cfg:     cfg,
		logger:  logger,
		backend: backend,
		cache:   c,
		device:  backend.Device(c),
		out:     cmd.OutOrStdout(),
	}
	if err := s.device.Start(ctx); err != nil {
		logger.Warn("session check failed", zap.Error(err))
	}
	return s, nil
}

// waitSettled waits for background profile reconciliation and the
// workspace resolution it triggers.
func (s *deviceSession) waitSettled() {
	s.device.Session().Wait()
	if _, err := s.device.Workspace().Resolve(s.ctx); err != nil {
		s.logger.Warn("workspace resolution failed", zap.Error(err))
	}
}

func (s *deviceSession) Close() {
	s.device.Close()
	if err := s.cache.Close(); err != nil {
		s.logger.Warn("close cache", zap.Error(err))
	}
	if err := s.backend.Close(); err != nil {
		s.logger.Warn("close backend", zap.Error(err))
	}
	s.stop()
	_ = s.logger.Sync()
}

func (s *deviceSession) printf(format string, args ...interface{}) {
	fmt.Fprintf(s.out, format, args...)
}

func (s *deviceSession) printIdentity(identity *domain.Identity) {
	if identity == nil {
		s.printf("signed out\n")
		return
	}
	s.printf("signed in as %s <%s>\n", identity.Name, identity.Email)
}

func (s *deviceSession) printWorkspace(ws *domain.Workspace) {
	if ws == nil {
		s.printf("no workspace\n")
		return
	}
	s.printf("workspace %s (join code %s)\n", ws.Name, ws.JoinCode)
}

func (s *deviceSession) printView() {
	view := s.device.View()
	s.printf("view: %s\n", view)
	if view == shell.ViewProfileSetup {
		s.printf("profile setup pending: display name was derived from the email address\n")
	}
}

// runWithSession wraps a command body that needs a started device.
func runWithSession(fn func(s *deviceSession, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()
		return fn(s, args)
	}
}
