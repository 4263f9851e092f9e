package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/wadjakorntonsri/qr-router/pkg/app"
	"github.com/wadjakorntonsri/qr-router/pkg/config"
	"github.com/wadjakorntonsri/qr-router/pkg/core/domain"
	"github.com/wadjakorntonsri/qr-router/pkg/core/services"
	"github.com/wadjakorntonsri/qr-router/pkg/logger"
)

const usage = `usage: qr-cli <command> [flags]

commands:
  stats   print per-day scan counts from the configured stats source
  links   print the URL each QR code must encode
  check   validate the slug map
`

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) < 1 {
		fmt.Fprint(stderr, usage)
		return errors.New("expected a command")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	switch args[0] {
	case "stats":
		return runStats(cfg, args[1:], stdout, stderr)
	case "links":
		return runLinks(cfg, args[1:], stdout)
	case "check":
		return runCheck(cfg, stdout)
	default:
		fmt.Fprint(stderr, usage)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func runStats(cfg *config.Config, args []string, stdout, stderr io.Writer) error {
	flagSet := pflag.NewFlagSet("stats", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	days := flagSet.Int("days", domain.DefaultWindowDays, "window length in days (1-365)")
	slug := flagSet.String("slug", "", "only this slug")
	format := flagSet.String("format", "csv", "output format: csv or json")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if *format != "csv" && *format != "json" {
		return fmt.Errorf("unknown format %q", *format)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a, err := app.New(ctx, cfg, logger.New(cfg.AppEnv, stderr).Level(zerolog.WarnLevel))
	if err != nil {
		return err
	}
	defer a.Close()

	rows, q, err := a.Stats.Stats(ctx, *days, *slug)
	if err != nil {
		return err
	}

	if *format == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	if err := writeCSV(stdout, rows); err != nil {
		return err
	}
	scans, uniques := totals(rows)
	fmt.Fprintf(stderr, "last %d days: %d scans, ~%d uniques\n", q.Days, scans, uniques)
	return nil
}

// writeCSV writes the rows with a day,slug,scans,uniques header.
func writeCSV(w io.Writer, rows []domain.StatsRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"day", "slug", "scans", "uniques"}); err != nil {
		return err
	}
	for _, r := range rows {
		record := []string{r.Day, r.Slug, strconv.FormatInt(r.Scans, 10), strconv.FormatInt(r.Uniques, 10)}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func totals(rows []domain.StatsRow) (scans, uniques int64) {
	for _, r := range rows {
		scans += r.Scans
		uniques += r.Uniques
	}
	return scans, uniques
}

func runLinks(cfg *config.Config, args []string, stdout io.Writer) error {
	flagSet := pflag.NewFlagSet("links", pflag.ContinueOnError)
	base := flagSet.String("base", cfg.BaseURL, "public base URL of the router")
	only := flagSet.StringSlice("slugs", nil, "slugs to print (default: every configured slug)")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	slugs := *only
	if len(slugs) == 0 {
		for s := range cfg.Slugs {
			slugs = append(slugs, s)
		}
		sort.Strings(slugs)
	}

	for _, line := range qrLinks(*base, slugs) {
		fmt.Fprintln(stdout, line)
	}
	return nil
}

// qrLinks returns "<slug>\t<base>/qr/<slug>" for each slug.
func qrLinks(base string, slugs []string) []string {
	base = strings.TrimRight(base, "/")
	out := make([]string, 0, len(slugs))
	for _, s := range slugs {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s+"\t"+base+"/qr/"+s)
	}
	return out
}

func runCheck(cfg *config.Config, stdout io.Writer) error {
	m, err := services.NewSlugMap(cfg.Slugs, cfg.DefaultSlug, cfg.FallbackURL)
	if err != nil {
		return err
	}

	slugs := m.Slugs()
	sort.Strings(slugs)
	for _, s := range slugs {
		fmt.Fprintf(stdout, "ok  %-12s %s\n", s, m.Destination(s).Annotated)
	}
	fmt.Fprintf(stdout, "fallback %q -> %s\n", m.FallbackSlug(), m.Destination("").Annotated)
	return nil
}
