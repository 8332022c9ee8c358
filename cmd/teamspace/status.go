package main

import (
	"github.com/spf13/cobra"
	"github.com/tendant/teamspace/pkg/session"
	"github.com/tendant/teamspace/pkg/workspace"
	"go.uber.org/zap"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the signed-in identity, workspace, and view",
	RunE: runWithSession(func(s *deviceSession, args []string) error {
		s.waitSettled()
		s.printIdentity(s.device.Session().Identity())
		s.printWorkspace(s.device.Workspace().Workspace())
		s.printView()
		return nil
	}),
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow session and workspace changes until interrupted",
	RunE: runWithSession(func(s *deviceSession, args []string) error {
		go func() {
			if err := s.backend.Listen(s.ctx); err != nil {
				s.logger.Error("membership listener stopped", zap.Error(err))
			}
		}()

		sessSub := s.device.Session().Subscribe()
		defer s.device.Session().Unsubscribe(sessSub)
		wsSub := s.device.Workspace().Subscribe()
		defer s.device.Workspace().Unsubscribe(wsSub)

		s.printView()
		last := s.device.View()
		for {
			select {
			case <-s.ctx.Done():
				return nil
			case snap, ok := <-sessSub.Events():
				if !ok {
					return nil
				}
				if snap.State == session.StateResolved || snap.State == session.StateUnauthenticated {
					s.printIdentity(snap.Identity)
				}
			case snap, ok := <-wsSub.Events():
				if !ok {
					return nil
				}
				switch snap.State {
				case workspace.StateHasWorkspace:
					s.printWorkspace(snap.Workspace)
					s.printf("%d members\n", len(snap.Members))
				case workspace.StateNoWorkspace:
					s.printWorkspace(nil)
				}
			}
			if view := s.device.View(); view != last {
				last = view
				s.printView()
			}
		}
	}),
}

func init() {
	rootCmd.AddCommand(statusCmd, watchCmd)
}
