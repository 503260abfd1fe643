package main

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/PizzaHomicide/otakuin/internal/config"
	"github.com/PizzaHomicide/otakuin/internal/domain"
	"github.com/PizzaHomicide/otakuin/internal/log"
	"github.com/PizzaHomicide/otakuin/internal/source"
	"github.com/PizzaHomicide/otakuin/internal/version"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"os"
	"os/signal"
	"strconv"
	"syscall"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfg    *config.Config
		logger *log.Logger
	)

	root := &cobra.Command{
		Use:           "otakuin",
		Short:         "Anime identity resolution and stream delivery service",
		Long:          "Otakuin maps AniList titles onto streaming sites and serves their episodes.\n\nEnvironment variables:\n" + config.EnvVarHelp(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				// It is unrecoverable if we cannot produce an application config
				_, _ = fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
				return err
			}

			logger, err = log.New(log.Config{
				Level:    cfg.Logging.Level,
				FilePath: cfg.Logging.FilePath,
			})
			if err != nil {
				_, _ = fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
				return err
			}
			// serve, worker and crawl run as separate processes, so every record names its command
			log.SetDefaultLogger(logger.With("command", cmd.Name()))

			info := version.Get()
			log.Info("Starting up Otakuin", "version", info.Version, "build_time", info.BuildTime)
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if logger != nil {
				log.Info("Otakuin shutting down.  Goodbye!")
				logger.Close()
			}
		},
	}

	withApp := func(run func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				log.Error("Failed to initialise", "error", err)
				return err
			}
			defer a.close()

			if err := run(ctx, a, args); err != nil {
				log.Error("Command failed", "error", err)
				return err
			}
			return nil
		}
	}

	root.AddCommand(
		newServeCmd(withApp),
		newWorkerCmd(withApp),
		newCrawlCmd(withApp),
		newMapCmd(withApp),
		newSyncMapCmd(withApp),
		newVersionCmd(),
	)
	return root
}

type appRunner func(run func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error

func newServeCmd(withApp appRunner) *cobra.Command {
	var withWorker bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and keep the home and top10 lists fresh",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return a.server().Run(ctx)
			})
			g.Go(func() error {
				a.refresher().Run(ctx)
				return nil
			})
			if withWorker {
				g.Go(func() error {
					return a.worker().Run(ctx)
				})
			}
			return g.Wait()
		}),
	}
	cmd.Flags().BoolVar(&withWorker, "with-worker", false, "also run the enrichment worker in this process")
	return cmd
}

func newWorkerCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Map queued home and top10 items onto AniList",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			return a.worker().Run(ctx)
		}),
	}
}

func newCrawlCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "crawl [source...]",
		Short: "Rebuild the slug catalog of the given sources, or of every source",
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			adapters := a.sources.All()
			if len(args) > 0 {
				adapters = make([]source.Adapter, 0, len(args))
				for _, name := range args {
					adapter, err := a.sources.Get(domain.SourceName(name))
					if err != nil {
						return err
					}
					adapters = append(adapters, adapter)
				}
			}

			counts, err := a.crawler().CrawlAll(ctx, adapters)
			for _, adapter := range adapters {
				fmt.Printf("%-12s %d entries\n", adapter.Name(), counts[adapter.Name()])
			}
			return err
		}),
	}
}

func newMapCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "map <source> <anilist-id> <slug>",
		Short: "Pin the slug a source uses for an AniList id",
		Args:  cobra.ExactArgs(3),
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			name := domain.SourceName(args[0])
			if _, err := a.sources.Get(name); err != nil {
				return err
			}
			id, err := strconv.Atoi(args[1])
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid AniList id %q", args[1])
			}
			if err := a.catalog.SetOverride(ctx, name, id, args[2]); err != nil {
				return err
			}
			log.Info("Override stored", "source", name, "id", id, "slug", args[2])
			return nil
		}),
	}
}

func newSyncMapCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "sync-map <file>",
		Short: "Load manual overrides from a JSON file of {source: {anilist-id: slug}}",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var overrides map[domain.SourceName]map[int]string
			if err := json.Unmarshal(data, &overrides); err != nil {
				return fmt.Errorf("parsing %s: %w", args[0], err)
			}
			for name := range overrides {
				if _, err := a.sources.Get(name); err != nil {
					return err
				}
			}

			written, err := a.catalog.SyncOverrides(ctx, overrides)
			if err != nil {
				return err
			}
			fmt.Printf("%d overrides written\n", written)
			return nil
		}),
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		// Printing the version needs neither config nor logging
		PersistentPreRun: func(*cobra.Command, []string) {},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Get())
		},
	}
}
