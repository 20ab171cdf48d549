package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"

	"feed_updater/internal/domain"
	"feed_updater/internal/metrics"
	"feed_updater/internal/scheduler"
	"feed_updater/internal/service"
	"feed_updater/internal/storage/sqlstore"
)

func updateCommand() *cli.Command {
	return &cli.Command{
		Name:  "update",
		Usage: "Run a single update across all sources",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := openApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.connectPublisher(); err != nil {
				a.logger.Warn("publishing disabled", "error", err)
			}

			stat, err := a.updater(nil).Run(ctx)
			if errors.Is(err, service.ErrNoSources) {
				fmt.Fprintln(cmd.Root().Writer, "no sources configured, add one with `sources add <url>`")
				return fmt.Errorf("%w: %w", errNothingToDo, err)
			}
			if err != nil {
				return err
			}

			printRunStat(cmd.Root().Writer, stat)
			return nil
		},
	}
}

func scheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "schedule",
		Usage: "Run updates on the configured interval",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "interval", Usage: "override update.interval"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := openApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.connectPublisher(); err != nil {
				return fmt.Errorf("connect to rabbitmq: %w", err)
			}

			interval := a.cfg.Update.Interval
			if d := cmd.Duration("interval"); d > 0 {
				interval = d
			}

			var observer service.Observer
			if addr := a.cfg.Metrics.Addr; addr != "" {
				observer = metrics.New(prometheus.DefaultRegisterer)
				srv := metrics.Server(addr, prometheus.DefaultGatherer)
				go func() {
					a.logger.Info("serving metrics", "addr", addr)
					if err := metrics.ListenAndServe(srv); err != nil {
						a.logger.Error("metrics server failed", "error", err)
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
			}

			sched := scheduler.NewScheduler(a.updater(observer), interval, a.cfg.Update.RunTimeout, a.logger)
			if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

func rankCommand() *cli.Command {
	return &cli.Command{
		Name:  "rank",
		Usage: "Show sources ordered by freshness",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "window-days", Usage: "override ranking.window_days"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := openApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ranked, err := a.ranking().RankSources(ctx, int(cmd.Int("window-days")))
			if err != nil {
				return err
			}

			w := cmd.Root().Writer
			for _, r := range ranked {
				fmt.Fprintf(w, "%7.3f  %s (%d unread)\n", r.Rank, r.Source.DisplayTitle(), r.Count)
				for _, e := range r.Entries {
					fmt.Fprintf(w, "         %s  %s\n", e.Published.Local().Format("2006-01-02 15:04"), e.Title)
				}
			}
			return nil
		},
	}
}

func sourcesCommand() *cli.Command {
	return &cli.Command{
		Name:  "sources",
		Usage: "Manage subscribed sources",
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Subscribe to a feed and fetch it",
				ArgsUsage: "<url>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if cmd.Args().Len() != 1 {
						return fmt.Errorf("expected exactly one url")
					}
					return withSources(ctx, cmd, func(svc *service.SourceService) error {
						src, outcome, err := svc.Add(ctx, cmd.Args().First())
						if src == nil {
							return err
						}
						if err != nil {
							fmt.Fprintf(cmd.Root().Writer, "added #%d %s, first fetch failed: %v\n", src.ID, src.URL, err)
							return nil
						}
						fmt.Fprintf(cmd.Root().Writer, "added #%d %s with %d entries\n", src.ID, src.DisplayTitle(), outcome.NewEntries)
						return nil
					})
				},
			},
			{
				Name:      "remove",
				Usage:     "Delete a source and its entries",
				ArgsUsage: "<id>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					id, err := parseID(cmd.Args().First())
					if err != nil {
						return err
					}
					return withSources(ctx, cmd, func(svc *service.SourceService) error {
						return svc.Delete(ctx, id)
					})
				},
			},
			{
				Name:      "rename",
				Usage:     "Set the display title; an empty title resets it",
				ArgsUsage: "<id> [title...]",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					id, err := parseID(cmd.Args().First())
					if err != nil {
						return err
					}
					title := strings.Join(cmd.Args().Tail(), " ")
					return withSources(ctx, cmd, func(svc *service.SourceService) error {
						return svc.Rename(ctx, id, title)
					})
				},
			},
			{
				Name:      "downrank",
				Usage:     "Demote a source in the ranked overview",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "off", Usage: "remove the demotion"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					id, err := parseID(cmd.Args().First())
					if err != nil {
						return err
					}
					return withSources(ctx, cmd, func(svc *service.SourceService) error {
						return svc.SetDownrank(ctx, id, !cmd.Bool("off"))
					})
				},
			},
			{
				Name:  "list",
				Usage: "List sources, most recently updated first",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withSources(ctx, cmd, func(svc *service.SourceService) error {
						sources, err := svc.List(ctx)
						if err != nil {
							return err
						}
						printSources(cmd.Root().Writer, sources)
						return nil
					})
				},
			},
		},
	}
}

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show recorded update runs",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "timeframe", Value: "day", Usage: "day, week or month"},
			&cli.BoolFlag{Name: "json", Usage: "print JSON"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			tf, err := service.ParseTimeframe(cmd.String("timeframe"))
			if err != nil {
				return err
			}

			a, err := openApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			history := service.NewHistoryService(a.runs)
			rows, err := history.Since(ctx, tf)
			if err != nil {
				return err
			}

			w := cmd.Root().Writer
			if len(rows) == 0 && !cmd.Bool("json") {
				latest, err := history.Latest(ctx)
				if errors.Is(err, domain.ErrNotFound) {
					fmt.Fprintln(w, "no runs recorded yet")
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "no runs in the last %s, latest run at %s:\n", tf, latest.Timestamp.Local().Format(time.DateTime))
				printRunStat(w, &latest.RunStat)
				return nil
			}
			if cmd.Bool("json") {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}
			printRunHistory(w, rows)
			return nil
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply database migrations",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "down", Usage: "revert the latest migration instead"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := openApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if cmd.Bool("down") {
				if err := sqlstore.Rollback(a.cfg.Database); err != nil {
					return err
				}
				a.logger.Info("reverted latest migration")
			}
			a.mirror.MarkDirty()
			return a.mirror.SyncIfNeeded(ctx, "migration")
		},
	}
}

func withSources(ctx context.Context, cmd *cli.Command, fn func(svc *service.SourceService) error) error {
	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(a.sourceService())
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid source id %q", s)
	}
	return id, nil
}

func printRunStat(w io.Writer, stat *domain.RunStat) {
	fmt.Fprintf(w, "updated %d of %d sources (%d changed, %d failed), %d new entries in %.3fs\n",
		stat.SourcesFetched, stat.SourcesTotal, stat.SourcesChanged, stat.SourcesFailed,
		stat.EntriesNew, stat.DurTotal)
	if stat.SourcesFetched > 0 {
		fmt.Fprintf(w, "per source: min %.0fms avg %.0fms std %.0fms max %.0fms\n",
			stat.DurMin, stat.DurAvg, stat.DurStd, stat.DurMax)
	}
}

func printSources(w io.Writer, sources []domain.Source) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tURL\tLAST UPDATED\tDOWNRANK")
	for _, src := range sources {
		updated := "never"
		if src.LastUpdated != nil {
			updated = src.LastUpdated.Local().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%t\n", src.ID, src.DisplayTitle(), src.URL, updated, src.Downrank)
	}
	tw.Flush()
}

func printRunHistory(w io.Writer, rows []domain.RunStatRow) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSOURCES\tFETCHED\tCHANGED\tFAILED\tNEW\tTOTAL(s)\tMAX(ms)\tSLOWEST")
	for _, r := range rows {
		slowest := "-"
		if r.MaxSourceURL != nil {
			slowest = *r.MaxSourceURL
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%.3f\t%.0f\t%s\n",
			r.Timestamp.Local().Format(time.DateTime),
			r.SourcesTotal, r.SourcesFetched, r.SourcesChanged, r.SourcesFailed, r.EntriesNew,
			r.DurTotal, r.DurMax, slowest)
	}
	tw.Flush()
}
