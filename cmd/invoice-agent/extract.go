package main

import (
	"context"
	"fmt"
	"mime"
	"net/url"
	"path"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dvloznov/invoice-agent/internal/archive"
	"github.com/dvloznov/invoice-agent/internal/config"
	"github.com/dvloznov/invoice-agent/internal/extract"
	"github.com/dvloznov/invoice-agent/internal/intake"
	"github.com/dvloznov/invoice-agent/internal/invoice"
	"github.com/dvloznov/invoice-agent/internal/logger"
)

func newExtractCmd() *cobra.Command {
	var raw bool
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "extract <file>",
		Short: "Extract and normalize one invoice and print it as JSON",
		Long: `extract runs the configured oracle and the normalizer on a single invoice without
touching Telegram, the pending store or the ledger. <file> is a local path, an
http(s) URL or a gs://bucket/object URI.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.ValidateOracle(); err != nil {
				return err
			}

			log, err := logger.NewWithOptions(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Writer: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			ctx = logger.WithContext(ctx, log)

			fields, err := extractFile(ctx, cfg, args[0])
			if err != nil {
				return err
			}
			if raw {
				fmt.Fprintln(cmd.OutOrStdout(), extract.MustJSON(fields))
				return nil
			}
			rec := invoice.Normalizer{Locale: cfg.Locale()}.Normalize(fields)
			fmt.Fprintln(cmd.OutOrStdout(), extract.MustJSON(rec))
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "Print the oracle fields before normalization")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "Overall timeout")
	return cmd
}

func extractFile(ctx context.Context, cfg config.Config, target string) (invoice.Fields, error) {
	name := path.Base(target)
	if u, err := url.Parse(target); err == nil && u.Scheme != "" {
		name = path.Base(u.Path)
	}
	mimeType := mime.TypeByExtension(strings.ToLower(path.Ext(name)))
	kind, ok := extract.DetectKind(mimeType, name)
	if !ok {
		return invoice.Fields{}, fmt.Errorf("%s: only PDF and image files are supported", name)
	}

	fetchers := intake.SchemeFetcher{
		"":      intake.FileFetcher{},
		"http":  intake.NewHTTPFetcher(downloadTimeout),
		"https": intake.NewHTTPFetcher(downloadTimeout),
	}
	if strings.HasPrefix(target, "gs://") {
		bucket, _, err := archive.ParseGCSURI(target)
		if err != nil {
			return invoice.Fields{}, err
		}
		gcs, err := archive.NewGCS(ctx, bucket)
		if err != nil {
			return invoice.Fields{}, err
		}
		defer gcs.Close()
		fetchers["gs"] = gcs
	}
	target = strings.TrimPrefix(target, "file://")

	data, err := fetchers.Fetch(ctx, target)
	if err != nil {
		return invoice.Fields{}, err
	}

	oracle, err := newOracle(ctx, cfg)
	if err != nil {
		return invoice.Fields{}, err
	}
	return oracle.Extract(ctx, extract.Document{
		Kind:     kind,
		Bytes:    data,
		MIMEType: mimeType,
		FileName: name,
	})
}

func newCategoriesCmd() *cobra.Command {
	var localeTag string
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Print the expense categories with their ledger columns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			locale := invoice.ParseLocale(localeTag)
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "COLUMN\tID\tLABEL")
			for _, c := range invoice.Categories() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", invoice.ColumnName(c.Column()), c.ID(), c.Label(locale))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&localeTag, "locale", "he", "Label language (BCP 47 tag)")
	return cmd
}
