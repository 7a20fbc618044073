// Package cli implements kasactl, the offline maintenance tool for the kasa
// snapshot store. Stop the server before changing the store: a running
// server overwrites it with its own state on the next tick.
package cli

import (
	"context"
	"fmt"
	"slices"

	"kasabot/internal/config"
	"kasabot/internal/repository"
	"kasabot/internal/service"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format string // "text" | "json" | "yaml"
	Driver string
	File   string
	DSN    string

	// open is replaced in tests.
	open func(opts *RootOptions) (repository.KasaStore, error)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "yaml"}

// NewRootCommand creates the kasactl root command. Store flags default to
// the server's environment configuration.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{open: openStore})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	defaults := config.Config{StoreDriver: "file", KasasFile: "data/kasas.json"}
	if cfg, err := config.Load(); err == nil {
		defaults = *cfg
	}

	cmd := &cobra.Command{
		Use:   "kasactl",
		Short: "Inspect and repair the kasabot device store",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")
	cmd.PersistentFlags().StringVar(&opts.Driver, "driver", defaults.StoreDriver, "store driver (file|sqlite|postgres)")
	cmd.PersistentFlags().StringVar(&opts.File, "file", defaults.KasasFile, "JSON or SQLite store file")
	cmd.PersistentFlags().StringVar(&opts.DSN, "dsn", defaults.DatabaseURL, "postgres connection string")

	cmd.AddCommand(newListCommand(opts))
	cmd.AddCommand(newResetWatermarkCommand(opts))
	cmd.AddCommand(newRemoveCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))

	return cmd
}

func openStore(opts *RootOptions) (repository.KasaStore, error) {
	store, _, err := repository.OpenKasaStore(opts.Driver, opts.File, opts.DSN)
	return store, err
}

func loadRegistry(ctx context.Context, opts *RootOptions) (*service.Registry, error) {
	store, err := opts.open(opts)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return service.LoadRegistry(ctx, store)
}
