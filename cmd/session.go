package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dtroode/puricare-client/internal/model"
	"github.com/dtroode/puricare-client/internal/service"
)

func loginCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "login <id-token>",
		Short: "Sign in with an identity provider token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				a.sessions.Bootstrap(ctx, force)

				sess, err := a.auth.Login(ctx, args[0])
				if err != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), service.RetryMessage)
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", sess.DisplayName())
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "drop any stored session before signing in")

	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and clear the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				a.sessions.Load(ctx)
				a.auth.SignOut(ctx)
				fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
				return nil
			})
		},
	}
}

func whoamiCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				sess := a.sessions.Bootstrap(ctx, force)
				out := cmd.OutOrStdout()

				if !sess.Authenticated() {
					fmt.Fprintln(out, "Not signed in")
					return nil
				}
				if name, ok := a.auth.ConsumeWelcome(ctx); ok {
					fmt.Fprintf(out, "Hello, %s 님\n", name)
				}

				fmt.Fprintf(out, "Name:    %s\n", sess.DisplayName())
				if sess.Profile != nil && sess.Profile.Email != nil {
					fmt.Fprintf(out, "Email:   %s\n", *sess.Profile.Email)
				}
				if claims, err := a.codec.Decode(*sess.Token); err == nil && claims.ExpiresAt != nil {
					state := "valid"
					if claims.Expired(time.Now()) {
						state = "expired"
					}
					fmt.Fprintf(out, "Expires: %s (%s)\n", claims.ExpiresAt.Local().Format(time.RFC1123), state)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "force re-authentication by clearing the stored session")

	return cmd
}

func profileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Edit the signed-in profile",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set-name <name>",
		Short: "Change the display name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				a.sessions.Load(ctx)

				sess, err := a.auth.UpdateDisplayName(ctx, args[0])
				if errors.Is(err, model.ErrNotAuthenticated) {
					return errors.New("not signed in")
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Display name set to %s\n", sess.DisplayName())
				return nil
			})
		},
	})

	return cmd
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print session changes made by other contexts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				out := cmd.OutOrStdout()
				unsubscribe := a.sessions.Subscribe(func(sess model.Session) {
					if sess.Authenticated() {
						fmt.Fprintf(out, "%s signed in as %s\n", time.Now().Format(time.TimeOnly), sess.DisplayName())
						return
					}
					fmt.Fprintf(out, "%s signed out\n", time.Now().Format(time.TimeOnly))
				})
				defer unsubscribe()

				events, _, err := a.sync.Attach(ctx, a.kv, false)
				if err != nil {
					return err
				}

				err = a.sync.Consume(ctx, events)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		},
	}
}
