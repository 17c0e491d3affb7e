package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/FranksOps/codescout/internal/config"
	"github.com/FranksOps/codescout/internal/fingerprint"
	"github.com/FranksOps/codescout/internal/metrics"
	"github.com/FranksOps/codescout/internal/pipeline"
	"github.com/FranksOps/codescout/internal/report"
	"github.com/FranksOps/codescout/internal/scraper"
	"github.com/FranksOps/codescout/internal/serp"
	"github.com/FranksOps/codescout/internal/storage"
	"github.com/FranksOps/codescout/internal/storage/csvbackend"
	"github.com/FranksOps/codescout/internal/storage/jsonbackend"
	"github.com/FranksOps/codescout/internal/storage/postgres"
	"github.com/FranksOps/codescout/internal/storage/sqlite"
	"github.com/FranksOps/codescout/pkg/useragent"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type options struct {
	configPath string
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"max-results":     "max_results",
	"concurrency":     "concurrency",
	"search-timeout":  "search_timeout",
	"page-timeout":    "page_timeout",
	"fingerprint":     "fingerprint",
	"search-endpoint": "search_endpoint",
	"ua-strategy":     "user_agent_strategy",
	"proxy":           "proxies",
	"proxy-file":      "proxy_file",
	"metrics-addr":    "metrics_addr",
	"log-level":       "log_level",
	"audit-driver":    "audit.driver",
	"audit-dsn":       "audit.dsn",
}

func loadConfig(flags *pflag.FlagSet, path string) (*config.Config, error) {
	v := viper.New()
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return config.Load(v, path)
}

func newLogger(w io.Writer, level string) *slog.Logger {
	lvl, err := config.ParseLevel(level)
	if err != nil {
		lvl = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func openBackend(ctx context.Context, cfg config.AuditConfig) (storage.Backend, error) {
	var (
		backend storage.Backend
		err     error
	)
	switch cfg.Driver {
	case config.AuditMemory:
		backend = storage.NewMemory()
	case config.AuditJSON:
		backend, err = jsonbackend.New(cfg.DSN)
	case config.AuditCSV:
		backend, err = csvbackend.New(cfg.DSN)
	case config.AuditSQLite:
		backend, err = sqlite.New(cfg.DSN)
	case config.AuditPostgres:
		backend, err = postgres.New(ctx, cfg.DSN)
	default:
		err = fmt.Errorf("unknown audit driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s audit backend: %w", cfg.Driver, err)
	}
	return backend, nil
}

func newPipeline(cfg *config.Config, backend storage.Backend, logger *slog.Logger) (*pipeline.Pipeline, error) {
	profile, err := fingerprint.ParseProfile(cfg.Fingerprint)
	if err != nil {
		return nil, err
	}
	strategy, err := useragent.ParseStrategy(cfg.UserAgentStrategy)
	if err != nil {
		return nil, err
	}

	proxies, err := cfg.ProxyPool()
	if err != nil {
		return nil, err
	}

	fetcher, err := scraper.NewFetcher(scraper.FetchConfig{
		Timeout:     cfg.ClientTimeout(),
		UAPool:      useragent.NewPool(cfg.UserAgents, strategy),
		ProxyPool:   proxies,
		Fingerprint: profile,
		Backend:     backend,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	return &pipeline.Pipeline{
		Provider:    serp.NewBing(fetcher, cfg.SearchEndpoint, cfg.SearchTimeout, logger),
		Extractor:   scraper.NewExtractor(fetcher, cfg.Heuristics(), cfg.PageTimeout, logger),
		Concurrency: cfg.Concurrency,
		Logger:      logger,
	}, nil
}

func runSearch(cmd *cobra.Command, args []string, opts *options) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd.Flags(), opts.configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg.LogLevel)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := openBackend(ctx, cfg.Audit)
	if err != nil {
		return err
	}
	defer backend.Close()

	if cfg.MetricsAddr != "" {
		srv, err := metrics.Start(cfg.MetricsAddr, logger)
		if err != nil {
			return err
		}
		defer srv.Stop(context.Background())
		logger.Info("serving metrics", "addr", srv.Addr())
	}

	p, err := newPipeline(cfg, backend, logger)
	if err != nil {
		return err
	}

	q := serp.NewQuery(args[0], args[1])
	q.SpokenLanguage = cfg.SpokenLanguage
	if len(args) > 2 {
		q.SpokenLanguage = args[2]
	}
	q.MaxResults = cfg.MaxResults

	started := time.Now().UTC()
	results := p.Run(ctx, q)

	out := cmd.OutOrStdout()
	if format == "text" {
		err = report.WriteResultsText(out, results)
	} else {
		err = report.WriteResultsJSON(out, results)
	}
	if err != nil {
		return err
	}

	if summary, _ := cmd.Flags().GetBool("summary"); summary {
		records, err := backend.Query(ctx, storage.Filter{Since: &started})
		if err != nil {
			return fmt.Errorf("query audit log: %w", err)
		}
		return report.WriteText(cmd.ErrOrStderr(), report.GenerateSummary(records))
	}
	return nil
}

func runLanguages(cmd *cobra.Command, opts *options) error {
	cfg, err := loadConfig(cmd.Flags(), opts.configPath)
	if err != nil {
		return err
	}
	h := cfg.Heuristics()
	for _, lang := range h.Languages() {
		quoted := make([]string, 0, len(h.Keywords(lang)))
		for _, kw := range h.Keywords(lang) {
			quoted = append(quoted, fmt.Sprintf("%q", kw))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", lang, strings.Join(quoted, ", "))
	}
	return nil
}

func runReport(cmd *cobra.Command, opts *options) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd.Flags(), opts.configPath)
	if err != nil {
		return err
	}

	backend, err := openBackend(cmd.Context(), cfg.Audit)
	if err != nil {
		return err
	}
	defer backend.Close()

	var filter storage.Filter
	if stage, _ := cmd.Flags().GetString("stage"); stage != "" {
		filter.Stage = storage.Stage(stage)
	}
	if since, _ := cmd.Flags().GetDuration("since"); since > 0 {
		t := time.Now().UTC().Add(-since)
		filter.Since = &t
	}

	records, err := backend.Query(cmd.Context(), filter)
	if err != nil {
		return fmt.Errorf("query audit log: %w", err)
	}

	summary := report.GenerateSummary(records)
	if format == "json" {
		return report.WriteJSON(cmd.OutOrStdout(), summary)
	}
	return report.WriteText(cmd.OutOrStdout(), summary)
}

func outputFormat(cmd *cobra.Command) (string, error) {
	format, _ := cmd.Flags().GetString("format")
	switch format {
	case "json", "text":
		return format, nil
	}
	return "", fmt.Errorf("unknown output format %q", format)
}
