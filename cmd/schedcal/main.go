package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"schedcal/internal/agenda"
	"schedcal/internal/config"
	"schedcal/internal/datekey"
	"schedcal/internal/digest"
	"schedcal/internal/grid"
	"schedcal/internal/ics"
	"schedcal/internal/index"
	appLog "schedcal/internal/log"
	"schedcal/internal/model"
	"schedcal/internal/web"
)

const version = "0.1.0"

type flagConfig struct {
	configPath string
	listen     string
	once       bool
	today      string
}

func main() {
	flags := parseFlags()
	if err := run(flags); err != nil {
		appLog.Error("schedcal failed", err)
		appLog.Sync()
		os.Exit(1)
	}
	appLog.Sync()
}

func run(flags flagConfig) error {
	conf, err := config.Load(flags.configPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", flags.configPath, err)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	if conf.LogFile != "" {
		appLog.AddFileOutput(conf.LogFile, conf.LogMaxSizeMB, conf.LogKeepDays)
	}

	loc := conf.Location()
	today := datekey.FromTime(time.Now().In(loc))
	if flags.today != "" {
		if today, err = datekey.Parse(flags.today); err != nil {
			return fmt.Errorf("-today: %w", err)
		}
	}

	appLog.Info("schedcal starting",
		"version", version,
		"listen", conf.Listen,
		"timezone", loc.String(),
		"week_start", conf.WeekStart,
		"digest_cron", conf.DigestCron,
		"source_count", len(conf.Sources),
		"today", today,
		"once", flags.once,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	events, err := importSources(ctx, conf, loc, today)
	if err != nil {
		return err
	}
	store := agenda.NewStore(nil, events)

	if flags.once {
		return printOverview(os.Stdout, conf, store.Events(), today)
	}

	srv, sched, err := buildServices(conf, loc, store)
	if err != nil {
		return err
	}

	g, lifetime := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(lifetime)
	})
	if sched != nil {
		g.Go(func() error {
			return sched.Run(lifetime)
		})
	}

	err = g.Wait()
	appLog.Info("schedcal exiting")
	return err
}

// buildServices constructs everything run starts, so that a failure
// returns before any goroutine is running. sched is nil when the digest is
// disabled.
func buildServices(conf *config.Config, loc *time.Location, store *agenda.Store) (*web.Server, *digest.Scheduler, error) {
	var sched *digest.Scheduler
	if conf.DigestCron != "" {
		var err error
		sched, err = digest.New(digest.Config{
			Spec:     conf.DigestCron,
			Location: loc,
			Limit:    conf.UpcomingLimit,
		}, store)
		if err != nil {
			return nil, nil, err
		}
	}
	return web.NewServer(conf, store), sched, nil
}

// importSources loads the configured feeds once. Individual feed failures
// are logged and do not stop startup.
func importSources(ctx context.Context, conf *config.Config, loc *time.Location, today datekey.Key) ([]model.Event, error) {
	if len(conf.Sources) == 0 {
		return nil, nil
	}

	from, err := today.Time(loc)
	if err != nil {
		return nil, err
	}

	sources := make([]ics.Source, 0, len(conf.Sources))
	for _, s := range conf.Sources {
		sources = append(sources, ics.Source{ID: s.ID, URL: s.URL})
	}

	res, err := ics.Import(ctx, ics.NewFetcher(conf.CacheDir), ics.ImportConfig{
		Sources:  sources,
		Location: loc,
		From:     from,
		To:       from.AddDate(0, 0, conf.ImportHorizonDays),
	})
	if err != nil {
		return nil, fmt.Errorf("import sources: %w", err)
	}
	if len(res.Errors) > 0 {
		appLog.Error("some sources failed to import", ics.JoinErrors(res.Errors), "error_count", len(res.Errors))
	}
	return res.Events, nil
}

// printOverview writes the current month grid and the upcoming list as
// plain text.
func printOverview(w io.Writer, conf *config.Config, events []model.Event, today datekey.Key) error {
	idx, err := index.Build(events)
	if err != nil {
		return err
	}
	year, m0, _, err := today.Parts()
	if err != nil {
		return err
	}

	weekStart := grid.ParseWeekStart(conf.WeekStart)
	m := grid.Build(year, m0, weekStart)

	fmt.Fprintf(w, "%s %04d\n", time.Month(m.MonthIndex0+1), m.Year)
	for i := 0; i < 7; i++ {
		fmt.Fprintf(w, "%-5s", time.Weekday((int(weekStart)+i)%7).String()[:2])
	}
	fmt.Fprintln(w)

	for i, c := range m.Cells {
		cell := "     "
		if !c.Blank() {
			mark := " "
			day := idx.Day(c.Key)
			busy, err := index.HasConflictWithinDay(day)
			if err != nil {
				return err
			}
			switch {
			case busy:
				mark = "!"
			case len(day) > 0:
				mark = "*"
			}
			pointer := " "
			if grid.IsToday(c.Key, today) {
				pointer = ">"
			}
			cell = fmt.Sprintf("%s%2d%s ", pointer, c.Day, mark)
		}
		fmt.Fprint(w, cell)
		if i%7 == 6 {
			fmt.Fprintln(w)
		}
	}
	if len(m.Cells)%7 != 0 {
		fmt.Fprintln(w)
	}

	upcoming, err := index.Upcoming(events, today, conf.UpcomingLimit)
	if err != nil {
		return err
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Upcoming:")
	if len(upcoming) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, ev := range upcoming {
		title := ev.Title
		if ev.Category != "" {
			title += " [" + ev.Category + "]"
		}
		fmt.Fprintf(w, "  %s %s-%s  %s\n", ev.Date, ev.StartTime, ev.EndTime, strings.TrimSpace(title))
	}
	return nil
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/schedcal/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Print the current month and upcoming events, then exit")
	flag.StringVar(&cfg.today, "today", "", "Override today's date (YYYY-MM-DD)")

	flag.Parse()

	return cfg
}
