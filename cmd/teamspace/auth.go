package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	email       string
	password    string
	displayName string
	oauthCode   string
	redirectURL string
)

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account and sign in",
	RunE: runWithSession(func(s *deviceSession, args []string) error {
		identity, err := s.device.Session().SignUp(s.ctx, email, password, displayName)
		if err != nil {
			return err
		}
		if identity == nil {
			s.printf("account created; confirm %s before signing in\n", email)
			return nil
		}
		s.waitSettled()
		s.printIdentity(s.device.Session().Identity())
		s.printView()
		return nil
	}),
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with email and password",
	RunE: runWithSession(func(s *deviceSession, args []string) error {
		if _, err := s.device.Session().SignIn(s.ctx, email, password); err != nil {
			return err
		}
		s.waitSettled()
		s.printIdentity(s.device.Session().Identity())
		s.printWorkspace(s.device.Workspace().Workspace())
		s.printView()
		return nil
	}),
}

var loginGoogleCmd = &cobra.Command{
	Use:   "login-google",
	Short: "Sign in with Google",
	Long: `Prints the Google consent URL. After consenting, pass the code from the
callback with --code, or paste it when prompted.`,
	RunE: runWithSession(func(s *deviceSession, args []string) error {
		url, err := s.device.Session().SignInWithGoogle(s.ctx, redirectURL)
		if err != nil {
			return err
		}

		code := oauthCode
		if code == "" {
			s.printf("open this URL to sign in:\n\n  %s\n\ncode: ", url)
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read code: %w", err)
			}
			code = strings.TrimSpace(line)
		}
		if code == "" {
			return errors.New("no authorization code given")
		}

		if _, err := s.device.Auth.ExchangeOAuthCode(s.ctx, code); err != nil {
			return err
		}
		s.waitSettled()
		s.printIdentity(s.device.Session().Identity())
		s.printView()
		return nil
	}),
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out of this device",
	RunE: runWithSession(func(s *deviceSession, args []string) error {
		if err := s.device.Session().SignOut(s.ctx); err != nil {
			return err
		}
		s.printIdentity(nil)
		return nil
	}),
}

func init() {
	for _, cmd := range []*cobra.Command{signupCmd, loginCmd} {
		cmd.Flags().StringVarP(&email, "email", "e", "", "Email address")
		cmd.Flags().StringVarP(&password, "password", "p", "", "Password")
		_ = cmd.MarkFlagRequired("email")
		_ = cmd.MarkFlagRequired("password")
	}
	signupCmd.Flags().StringVarP(&displayName, "name", "n", "", "Display name (defaults to the email local part)")

	loginGoogleCmd.Flags().StringVar(&oauthCode, "code", "", "Authorization code from the callback")
	loginGoogleCmd.Flags().StringVar(&redirectURL, "redirect-url", "", "Override the configured callback URL")

	rootCmd.AddCommand(signupCmd, loginCmd, loginGoogleCmd, logoutCmd)
}
