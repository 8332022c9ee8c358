package main

import (
	"github.com/spf13/cobra"
)

var workspaceDescription string

var workspaceCmd = &cobra.Command{
	Use:   "workspace",
	Short: "Join, create, or leave a workspace",
}

var workspaceJoinCmd = &cobra.Command{
	Use:   "join CODE",
	Short: "Join a workspace by its join code",
	Args:  cobra.ExactArgs(1),
	RunE: runWithSession(func(s *deviceSession, args []string) error {
		s.waitSettled()
		ws, err := s.device.Workspace().JoinWorkspace(s.ctx, args[0])
		if err != nil {
			return err
		}
		s.printWorkspace(ws)
		return nil
	}),
}

var workspaceCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a workspace and become its admin",
	Args:  cobra.ExactArgs(1),
	RunE: runWithSession(func(s *deviceSession, args []string) error {
		s.waitSettled()
		ws, err := s.device.Workspace().CreateWorkspace(s.ctx, args[0], workspaceDescription)
		if err != nil {
			return err
		}
		s.printWorkspace(ws)
		return nil
	}),
}

var workspaceLeaveCmd = &cobra.Command{
	Use:   "leave",
	Short: "Leave the current workspace",
	RunE: runWithSession(func(s *deviceSession, args []string) error {
		s.waitSettled()
		if err := s.device.Workspace().LeaveWorkspace(s.ctx); err != nil {
			return err
		}
		s.printWorkspace(nil)
		return nil
	}),
}

var workspaceMembersCmd = &cobra.Command{
	Use:   "members",
	Short: "List members of the current workspace",
	RunE: runWithSession(func(s *deviceSession, args []string) error {
		s.waitSettled()
		ws := s.device.Workspace().Workspace()
		s.printWorkspace(ws)
		if ws == nil {
			return nil
		}
		for _, m := range s.device.Workspace().Members() {
			s.printf("  %-8s %s <%s>\n", m.Membership.Role, m.Profile.Name, m.Profile.Email)
		}
		return nil
	}),
}

var workspaceSkipCmd = &cobra.Command{
	Use:   "skip",
	Short: "Continue without a workspace on this device",
	RunE: runWithSession(func(s *deviceSession, args []string) error {
		if err := s.device.SkipWorkspace(); err != nil {
			return err
		}
		s.waitSettled()
		s.printView()
		return nil
	}),
}

func init() {
	workspaceCreateCmd.Flags().StringVarP(&workspaceDescription, "description", "d", "", "Workspace description")
	workspaceCmd.AddCommand(workspaceJoinCmd, workspaceCreateCmd, workspaceLeaveCmd, workspaceMembersCmd, workspaceSkipCmd)
	rootCmd.AddCommand(workspaceCmd)
}
