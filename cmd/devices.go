package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dtroode/puricare-client/internal/model"
)

func devicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List and register purifiers",
	}

	cmd.AddCommand(
		devicesListCmd(),
		devicesAddQRCmd(),
		devicesAddSerialCmd(),
		devicesRemoveCmd(),
	)

	return cmd
}

func devicesListCmd() *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the resolved device list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				a.sessions.Load(ctx)
				if !offline {
					a.devices.Refresh(ctx)
				}

				listing := a.devices.List(ctx)
				if listing.UsingFallback {
					fmt.Fprintln(cmd.ErrOrStderr(), "Showing example devices")
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tROOM\tAQI\tSTATUS")
				for _, d := range listing.Devices {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%g\t%s\n", d.ID, d.Name, d.RoomType.Label(), d.AQI, d.AQILabel)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "skip the remote fetch")

	return cmd
}

func devicesAddQRCmd() *cobra.Command {
	var room string

	cmd := &cobra.Command{
		Use:   "add-qr",
		Short: "Register a device scanned by QR code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			roomType, err := model.ParseRoomType(room)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				a.sessions.Load(ctx)

				rec, err := a.devices.RegisterQR(ctx, roomType)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s)\n", rec.ID, rec.RoomType.Label())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&room, "room", "", "room type (living, master, small, small2, toilet, bath)")

	return cmd
}

func devicesAddSerialCmd() *cobra.Command {
	var room string

	cmd := &cobra.Command{
		Use:   "add-serial <serial>",
		Short: "Register a device by serial number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roomType, err := model.ParseRoomType(room)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				a.sessions.Load(ctx)

				rec, err := a.devices.RegisterSerial(ctx, args[0], roomType)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s)\n", rec.ID, rec.RoomType.Label())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&room, "room", "", "room type (living, master, small, small2, toilet, bath)")

	return cmd
}

func devicesRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <device-id>",
		Short: "Remove a locally registered device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.devices.Remove(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
				return nil
			})
		},
	}
}
