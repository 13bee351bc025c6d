package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newLoginCmd(o *rootOptions) *cobra.Command {
	var email, code string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in with a verification code sent to your email",
		Args:  cobra.NoArgs,
		RunE: o.run(func(ctx context.Context, a *app, _ []string) error {
			if err := a.client.SendEmailCode(ctx, email); err != nil {
				return fmt.Errorf("send verification code: %w", err)
			}
			fmt.Fprintf(a.out, "Verification code sent to %s\n", email)

			if code == "" {
				fmt.Fprint(a.out, "Code: ")
				line, err := a.in.ReadString('\n')
				if err != nil && !(errors.Is(err, io.EOF) && line != "") {
					return fmt.Errorf("read verification code: %w", err)
				}
				code = strings.TrimSpace(line)
			}

			token, err := a.client.VerifyEmailCode(ctx, email, code)
			if err != nil {
				return fmt.Errorf("verify code: %w", err)
			}
			if err := a.sess.Set(token); err != nil {
				return err
			}

			p, err := a.client.Profile(ctx)
			if err != nil {
				a.logger.Warn("fetch profile after login", zap.Error(err))
				fmt.Fprintln(a.out, "Logged in")
				return nil
			}
			if err := a.db.SaveProfile(p); err != nil {
				a.logger.Warn("cache profile", zap.Error(err))
			}
			name := p.DisplayName
			if name == "" {
				name = email
			}
			fmt.Fprintf(a.out, "Logged in as %s\n", name)
			return nil
		}),
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&code, "code", "", "verification code (prompted when empty)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLogoutCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session and profile snapshot",
		Args:  cobra.NoArgs,
		RunE: o.run(func(ctx context.Context, a *app, _ []string) error {
			if !a.sess.LoggedIn() {
				fmt.Fprintln(a.out, "Not logged in")
				return nil
			}
			if err := a.sess.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Logged out")
			return nil
		}),
	}
}
