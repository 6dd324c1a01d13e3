// Command donationctl is the donation tracker's operator CLI.
//
// Usage:
//
//	donationctl migrate
//	donationctl tick
//	donationctl capture --season 12
//	donationctl rollover
//	donationctl season current
//	donationctl clans add #2PYLQ --guild 1234 --channel 5678
//	donationctl clans list --all
//	donationctl sync
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/albapepper/donation-tracker/internal/capture"
	"github.com/albapepper/donation-tracker/internal/config"
	"github.com/albapepper/donation-tracker/internal/db"
	"github.com/albapepper/donation-tracker/internal/jobs"
	"github.com/albapepper/donation-tracker/internal/metrics"
	"github.com/albapepper/donation-tracker/internal/provider"
	"github.com/albapepper/donation-tracker/internal/provider/coc"
	"github.com/albapepper/donation-tracker/internal/season"
	"github.com/albapepper/donation-tracker/internal/store"
)

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:          "donationctl",
		Short:        "Donation tracker operator CLI",
		SilenceUsage: true,
	}

	root.AddCommand(migrateCmd())
	root.AddCommand(tickCmd())
	root.AddCommand(captureCmd())
	root.AddCommand(rolloverCmd())
	root.AddCommand(seasonCmd())
	root.AddCommand(clansCmd())
	root.AddCommand(syncCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// migrate command
// --------------------------------------------------------------------------

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return db.Migrate(ctx, cfg.DatabaseURL, cfg.NewLogger())
		},
	}
}

// --------------------------------------------------------------------------
// capture commands
// --------------------------------------------------------------------------

func tickCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Run the daily job once: roll the season if due, then capture",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, env *runEnv) error {
				res, err := jobs.SeasonTick(ctx, env.deps())
				if err != nil {
					return err
				}
				if res.Rollover.Created {
					env.logger.Info("Opened season", "season_id", res.Rollover.Season.ID, "carried", res.Rollover.Carried)
				}
				if res.Capture != nil {
					return reportCapture(env.logger, *res.Capture)
				}
				return nil
			})
		},
	}
}

func captureCmd() *cobra.Command {
	var seasonID int
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture start/end snapshots for every pending player",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, env *runEnv) error {
				return runCapture(ctx, env.deps(), seasonID)
			})
		},
	}
	cmd.Flags().IntVar(&seasonID, "season", 0, "Season ID (default: current season)")
	return cmd
}

// runCapture captures seasonID, or the current season when seasonID is 0.
func runCapture(ctx context.Context, d *jobs.Deps, seasonID int) error {
	if seasonID > 0 {
		res, err := jobs.CaptureSeason(ctx, d, seasonID)
		if err != nil {
			return err
		}
		return reportCapture(d.Logger, res)
	}
	res, ok, err := jobs.CaptureCurrent(ctx, d)
	if err != nil {
		return err
	}
	if !ok {
		d.Logger.Info("No season configured yet, nothing to capture")
		return nil
	}
	return reportCapture(d.Logger, res)
}

func reportCapture(logger *slog.Logger, res capture.Result) error {
	logger.Info("Capture finished", "summary", res.Summary())
	for _, e := range res.Errors {
		logger.Error("capture error", "error", e)
	}
	if !res.OK() {
		return captureError(res)
	}
	return nil
}

func captureError(res capture.Result) error {
	return fmt.Errorf("capture run %s: %d group(s) failed, %d error(s)",
		res.RunID, len(res.FailedGroups), len(res.Errors))
}

// --------------------------------------------------------------------------
// season commands
// --------------------------------------------------------------------------

func rolloverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rollover",
		Short: "Open a new season if none exists or the current one has finished",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, env *runEnv) error {
				res, err := season.Rollover(ctx, env.store, time.Now(), env.logger)
				if err != nil {
					return err
				}
				if !res.Created {
					fmt.Printf("Season %d is current until %s\n", res.Season.ID, res.Season.Finish.UTC().Format(time.RFC3339))
					return nil
				}
				fmt.Printf("Opened season %d (%s to %s), carried %d players\n",
					res.Season.ID,
					res.Season.Start.UTC().Format(time.RFC3339),
					res.Season.Finish.UTC().Format(time.RFC3339),
					res.Carried)
				return nil
			})
		},
	}
}

func seasonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "season",
		Short: "Inspect seasons",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "current",
		Short: "Print the current season",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, env *runEnv) error {
				s, ok, err := season.NewTracker(env.store).Current(ctx, true)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Println("No season configured")
					return nil
				}
				fmt.Printf("Season %d\n  start:     %s\n  finish:    %s\n  remaining: %s\n",
					s.ID,
					s.Start.UTC().Format(time.RFC3339),
					s.Finish.UTC().Format(time.RFC3339),
					s.Remaining(time.Now()).Round(time.Minute))
				return nil
			})
		},
	})
	return cmd
}

// --------------------------------------------------------------------------
// clans commands
// --------------------------------------------------------------------------

func clansCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clans",
		Short: "Manage tracked clans",
	}
	cmd.AddCommand(clansAddCmd())
	cmd.AddCommand(clansRemoveCmd())
	cmd.AddCommand(clansListCmd())
	return cmd
}

func clansAddCmd() *cobra.Command {
	var guildID, channelID string
	cmd := &cobra.Command{
		Use:   "add <clan_tag>",
		Short: "Start tracking a clan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tag := provider.NormalizeTag(args[0])
			if !provider.ValidTag(tag) {
				return fmt.Errorf("invalid clan tag %q", args[0])
			}
			return run(func(ctx context.Context, env *runEnv) error {
				clan, err := env.game.GetClan(ctx, tag)
				if err != nil {
					return fmt.Errorf("look up clan %s: %w", tag, err)
				}
				err = env.store.TrackClan(ctx, store.Clan{
					Tag:       clan.Tag,
					Name:      clan.Name,
					GuildID:   guildID,
					ChannelID: channelID,
					InUse:     true,
				})
				if err != nil {
					return err
				}
				fmt.Printf("Tracking %s (%s), %d members\n", clan.Name, clan.Tag, clan.Members)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&guildID, "guild", "", "Discord guild ID")
	cmd.Flags().StringVar(&channelID, "channel", "", "Discord channel ID")
	return cmd
}

func clansRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <clan_tag>",
		Short: "Stop tracking a clan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tag := provider.NormalizeTag(args[0])
			return run(func(ctx context.Context, env *runEnv) error {
				if err := env.store.UntrackClan(ctx, tag); err != nil {
					return fmt.Errorf("untrack %s: %w", tag, err)
				}
				fmt.Printf("Stopped tracking %s\n", tag)
				return nil
			})
		},
	}
}

func clansListCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked clans",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, env *runEnv) error {
				clans, err := env.store.ListClans(ctx, !all)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "TAG\tNAME\tGUILD\tCHANNEL\tIN USE")
				for _, c := range clans {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", c.Tag, c.Name, c.GuildID, c.ChannelID, c.InUse)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Include clans no longer tracked")
	return cmd
}

// --------------------------------------------------------------------------
// sync command
// --------------------------------------------------------------------------

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Refresh member lists and donation counters of tracked clans",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, env *runEnv) error {
				return runSync(ctx, env.deps())
			})
		},
	}
}

func runSync(ctx context.Context, d *jobs.Deps) error {
	res, ok, err := jobs.SyncTick(ctx, d)
	if err != nil {
		return err
	}
	if !ok {
		d.Logger.Info("No season configured yet, nothing to sync")
		return nil
	}
	d.Logger.Info("Clan sync finished", "summary", res.Summary())
	for _, e := range res.Errors {
		d.Logger.Error("sync error", "error", e)
	}
	return nil
}

// --------------------------------------------------------------------------
// Shared setup
// --------------------------------------------------------------------------

type runEnv struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *store.Store
	game   *coc.Client
}

func (e *runEnv) deps() *jobs.Deps {
	return &jobs.Deps{
		Store:   e.store,
		Players: e.game,
		Members: e.game,
		Capture: capture.Options{
			GroupSize:      e.cfg.CaptureGroupSize,
			Workers:        e.cfg.CaptureWorkers,
			IgnoreNotFound: e.cfg.CaptureIgnoreNotFound,
		},
		SyncWorkers: e.cfg.FetchConcurrency,
		Metrics:     metrics.New(),
		Logger:      e.logger,
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// run handles config loading, DB connection, and context cancellation.
func run(fn func(ctx context.Context, env *runEnv) error) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := cfg.NewLogger()

	pool, err := db.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	env := &runEnv{
		cfg:    cfg,
		logger: logger,
		store:  store.New(pool),
		game: coc.NewClient(cfg.CoCBaseURL, cfg.CoCAPIToken, logger,
			coc.WithRequestsPerSecond(cfg.CoCRequestsPerSecond),
			coc.WithMaxRetries(cfg.CoCMaxRetries),
			coc.WithConcurrency(cfg.FetchConcurrency),
		),
	}
	return fn(ctx, env)
}
