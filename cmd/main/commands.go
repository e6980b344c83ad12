package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Yosolita1978/cascadiaaicollective/pkg/site"
)

// newBuilder constructs a site builder, attaching the manifest unless it is
// disabled. The returned func releases the manifest.
func (a *app) newBuilder(useManifest bool) (*site.Builder, func(), error) {
	cfg := a.config.Site
	closeFn := func() {}

	var opts []site.Option
	if useManifest && cfg.ManifestPath != "" {
		db, store, err := openManifest(cfg.ManifestPath)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, site.WithManifest(store))
		closeFn = func() {
			store.Close()
			if err := db.Close(); err != nil {
				a.logger.Error("Failed to close manifest database", "error", err)
			}
		}
	}

	b, err := site.NewBuilder(a.logger, cfg, opts...)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return b, closeFn, nil
}

func newBuildCmd(a *app) *cobra.Command {
	var clean, noManifest bool

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Render pages and copy passthrough files into the output directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.loadConfig(); err != nil {
				return err
			}
			b, closeFn, err := a.newBuilder(!noManifest)
			if err != nil {
				return err
			}
			defer closeFn()

			ctx := cmd.Context()
			if clean {
				if err = b.Clean(ctx); err != nil {
					return err
				}
			}
			result, err := b.Build(ctx)
			if err != nil {
				return fmt.Errorf("build failed: %w", err)
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d pages, copied %d files (%s), skipped %d unchanged in %s\n",
				result.Pages, result.Copied, humanize.Bytes(uint64(result.Bytes)), result.Skipped,
				result.Duration.Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().BoolVar(&clean, "clean", false, "remove the output directory before building")
	cmd.Flags().BoolVar(&noManifest, "no-manifest", false, "copy every passthrough file instead of skipping unchanged ones")
	return cmd
}

func newCleanCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove the output directory and reset the build manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.loadConfig(); err != nil {
				return err
			}
			b, closeFn, err := a.newBuilder(true)
			if err != nil {
				return err
			}
			defer closeFn()
			return b.Clean(cmd.Context())
		},
	}
}

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.loadConfig(); err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(a.config)
		},
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with default values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(a.configPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", a.configPath)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			if err := WriteConfig(a.configPath, DefaultConfig()); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote default config to %s\n", a.configPath)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	cmd.AddCommand(initCmd)
	return cmd
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show what the build manifest knows about previous builds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.loadConfig(); err != nil {
				return err
			}
			path := a.config.Site.ManifestPath
			if path == "" {
				return errors.New("no manifest_path configured")
			}
			db, store, err := openManifest(path)
			if err != nil {
				return err
			}
			defer func() {
				store.Close()
				_ = db.Close()
			}()

			stats, err := store.GetStats(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to read manifest stats: %w", err)
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Tracked files: %d (%s)\n", stats.Files, humanize.Bytes(uint64(stats.Bytes)))
			_, _ = fmt.Fprintf(out, "Builds:        %d\n", stats.Runs)
			if stats.LastRun != nil {
				last := stats.LastRun
				_, _ = fmt.Fprintf(out, "Last build:    %s, %d pages, %d copied, %d skipped, took %s\n",
					humanize.Time(last.FinishedAt), last.Pages, last.Copied, last.Skipped,
					last.Duration().Round(time.Millisecond))
			}
			return nil
		},
	}
}
