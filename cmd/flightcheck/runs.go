package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"FlightCheck/internal/config"
	"FlightCheck/internal/storage"
)

func doRuns(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}

	path := cfg.Recorder.Path
	if c.IsSet("db") {
		path = c.String("db")
	}
	if path == "" {
		return fmt.Errorf("no flight recorder configured: pass --db or set recorder.path")
	}

	store, err := storage.OpenSqliteStore(path)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.Runs(c.Context)
	if err != nil {
		return err
	}

	for _, run := range runs {
		printRun(os.Stdout, run, time.Now())

		if !c.Bool("positions") {
			continue
		}
		samples, err := store.Positions(c.Context, run.ID)
		if err != nil {
			return err
		}
		for _, p := range samples {
			printPosition(os.Stdout, p)
		}
	}
	return nil
}

func printRun(w io.Writer, run *storage.Run, now time.Time) {
	result := "ok"
	switch {
	case run.Error != nil:
		result = "failed: " + *run.Error
	case run.FinishedAt == nil:
		result = "unfinished"
	}

	duration := "-"
	if run.FinishedAt != nil {
		duration = humanize.FtoaWithDigits(run.FinishedAt.Sub(run.StartedAt).Seconds(), 1) + "s"
	}

	fmt.Fprintf(w, "#%d %s (%s) %s %s on %s: %s\n",
		run.ID,
		run.StartedAt.Local().Format(time.DateTime),
		humanize.RelTime(run.StartedAt, now, "ago", "from now"),
		run.Variant,
		duration,
		run.Address,
		result)

	for _, step := range run.Steps {
		line := fmt.Sprintf("  %-18s %s", step.Name, step.Status)
		if step.Error != "" {
			line += " (" + step.Error + ")"
		}
		fmt.Fprintln(w, line)
	}
	if run.Positions > 0 {
		fmt.Fprintf(w, "  %s position samples\n", humanize.Comma(int64(run.Positions)))
	}
}

func printPosition(w io.Writer, p storage.PositionSample) {
	fmt.Fprintf(w, "    %s  %s, %s  %sm  roll %s pitch %s yaw %s\n",
		p.Timestamp.Local().Format(time.TimeOnly),
		humanize.FtoaWithDigits(p.Latitude, 7),
		humanize.FtoaWithDigits(p.Longitude, 7),
		humanize.FtoaWithDigits(p.Altitude, 3),
		humanize.FtoaWithDigits(p.Roll, 1),
		humanize.FtoaWithDigits(p.Pitch, 1),
		humanize.FtoaWithDigits(p.Yaw, 1))
}
