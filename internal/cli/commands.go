package cli

import (
	"fmt"
	"time"

	"kasabot/internal/model"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newListCommand(opts *RootOptions) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored kasas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadRegistry(cmd.Context(), opts)
			if err != nil {
				return err
			}
			users := reg.Users()
			if userID != "" {
				users = []string{userID}
			}
			views := []kasaView{}
			for _, u := range users {
				for _, k := range reg.List(u) {
					views = append(views, viewOf(k))
				}
			}
			return render(cmd.OutOrStdout(), opts.Format, views)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "only this user's kasas")
	return cmd
}

func newResetWatermarkCommand(opts *RootOptions) *cobra.Command {
	var to string
	cmd := &cobra.Command{
		Use:   "reset-watermark <kasa-id>",
		Short: "Clear or move a kasa's receipt watermark",
		Long: `Clear the receipt watermark of a kasa. With no --to the watermark becomes
absent and the next tick seeds it from the newest receipt without sending
anything. With --to every receipt after that instant is delivered again.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid kasa id: %w", err)
			}
			wm := model.Watermark{}
			if to != "" {
				t, err := time.Parse(time.RFC3339, to)
				if err != nil {
					return fmt.Errorf("invalid --to: %w", err)
				}
				wm.Time = t.UTC()
			}

			reg, err := loadRegistry(cmd.Context(), opts)
			if err != nil {
				return err
			}
			k, err := reg.Update(cmd.Context(), id, func(k *model.Kasa) { k.Watermark = wm })
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s watermark of %s\n", color.New(color.FgGreen).Sprint("reset"), k.DisplayName())
			return nil
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "RFC 3339 instant to restart delivery from")
	return cmd
}

func newRemoveCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <user-id> <kasa-id>",
		Short: "Remove a kasa",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[1])
			if err != nil {
				return fmt.Errorf("invalid kasa id: %w", err)
			}
			reg, err := loadRegistry(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if err := reg.Remove(cmd.Context(), args[0], id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.New(color.FgRed).Sprint("removed"), id)
			return nil
		},
	}
	return cmd
}

func newMigrateCommand(opts *RootOptions) *cobra.Command {
	var target RootOptions
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy every kasa into another store",
		Long: `Copy the whole collection from the store selected by the global flags into
the target store. The target is overwritten.

  kasactl migrate --driver file --file data/kasas.json --to-driver postgres --to-dsn "$DATABASE_URL"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := opts.open(opts)
			if err != nil {
				return fmt.Errorf("open source store: %w", err)
			}
			dst, err := opts.open(&target)
			if err != nil {
				return fmt.Errorf("open target store: %w", err)
			}

			users, err := src.LoadAll(cmd.Context())
			if err != nil {
				return fmt.Errorf("load source: %w", err)
			}
			if err := dst.SaveAll(cmd.Context(), users); err != nil {
				return fmt.Errorf("save target: %w", err)
			}

			n := 0
			for _, list := range users {
				n += len(list)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d kasas of %d users\n", color.New(color.FgGreen).Sprint("copied"), n, len(users))
			return nil
		},
	}
	cmd.Flags().StringVar(&target.Driver, "to-driver", "", "target store driver (file|sqlite|postgres)")
	cmd.Flags().StringVar(&target.File, "to-file", "", "target JSON or SQLite file")
	cmd.Flags().StringVar(&target.DSN, "to-dsn", "", "target postgres connection string")
	_ = cmd.MarkFlagRequired("to-driver")
	return cmd
}
