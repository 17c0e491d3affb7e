package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "codescout <query> <language> [spoken-language]",
		Short: "codescout - search the web for code snippets",
		Long: `codescout searches Bing for a query plus a programming language, visits every
result page and keeps the content blocks that look like code in that language.

Running codescout with arguments is the same as "codescout search".`,
		Args:          cobra.RangeArgs(2, 3),
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, args, opts)
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	pf.String("log-level", "warn", "log level (debug, info, warn, error)")
	pf.String("audit-driver", "memory", "fetch audit backend (memory, json, csv, sqlite, postgres)")
	pf.String("audit-dsn", "", "audit backend file path or connection string")
	pf.String("format", "json", "output format (json, text)")
	addSearchFlags(rootCmd)

	searchCmd := &cobra.Command{
		Use:   "search <query> <language> [spoken-language]",
		Short: "Search and extract code snippets",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, args, opts)
		},
	}
	addSearchFlags(searchCmd)

	languagesCmd := &cobra.Command{
		Use:   "languages",
		Short: "List the languages with code keywords",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLanguages(cmd, opts)
		},
	}

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize the fetch audit log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd, opts)
		},
	}
	reportCmd.Flags().String("stage", "", "only include one stage (search, page)")
	reportCmd.Flags().Duration("since", 0, "only include records newer than this")

	rootCmd.AddCommand(searchCmd, languagesCmd, reportCmd)
	return rootCmd
}

func addSearchFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.IntP("max-results", "n", 10, "number of search results to process")
	f.IntP("concurrency", "c", 4, "pages fetched in parallel")
	f.Duration("search-timeout", 0, "timeout of the search request (default 30s)")
	f.Duration("page-timeout", 0, "timeout of each page request (default 10s)")
	f.String("fingerprint", "chrome", "TLS fingerprint (chrome, firefox, safari, go, random)")
	f.String("search-endpoint", "", "search results page URL")
	f.String("ua-strategy", "fixed", "User-Agent selection (fixed, sequential, random)")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address")
	f.StringSlice("proxy", nil, "proxy URL to rotate through (repeatable)")
	f.String("proxy-file", "", "file with one proxy URL per line")
	f.Bool("summary", false, "print a fetch summary to stderr after the results")
}
