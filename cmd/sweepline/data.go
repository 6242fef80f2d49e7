package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/sweepline/pkg/aggregate"
	"github.com/ajitpratap0/sweepline/pkg/compression"
	"github.com/ajitpratap0/sweepline/pkg/errors"
	"github.com/ajitpratap0/sweepline/pkg/export"
	"github.com/ajitpratap0/sweepline/pkg/models"
	"github.com/ajitpratap0/sweepline/pkg/schema"
	"github.com/ajitpratap0/sweepline/pkg/store"
)

// query is the record pipeline of the read command, applied in field order
type query struct {
	where   []string
	sort    []string
	group   []string
	fields  []string
	count   string
	project []string
}

func (q query) apply(records []*models.Record) ([]*models.Record, error) {
	var preds []aggregate.Predicate
	for _, w := range q.where {
		p, err := parsePredicate(w)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	if len(preds) > 0 {
		records = aggregate.Filter(records, aggregate.And(preds...))
	}

	var err error
	if len(q.sort) > 0 {
		if records, err = aggregate.Sort(records, q.sort...); err != nil {
			return nil, err
		}
	}
	if len(q.group) > 0 {
		if len(q.sort) == 0 {
			if records, err = aggregate.Sort(records, q.group...); err != nil {
				return nil, err
			}
		}
		var opts []aggregate.ReduceOption
		if q.count != "" {
			opts = append(opts, aggregate.WithCount(q.count))
		}
		if records, err = aggregate.GroupReduce(records, q.group, q.fields, opts...); err != nil {
			return nil, err
		}
	}
	if len(q.project) > 0 {
		if records, err = aggregate.Project(records, q.project...); err != nil {
			return nil, err
		}
	}
	return records, nil
}

// parsePredicate reads field=value, field!=value, field>=x or field<=x
func parsePredicate(expr string) (aggregate.Predicate, error) {
	for _, op := range []string{">=", "<=", "!=", "="} {
		field, raw, ok := strings.Cut(expr, op)
		if !ok {
			continue
		}
		field = strings.TrimSpace(field)
		if field == "" {
			break
		}
		switch op {
		case "=":
			return aggregate.Eq(field, models.Coerce(raw)), nil
		case "!=":
			return aggregate.Not(aggregate.Eq(field, models.Coerce(raw))), nil
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeValidation, "comparison needs a number").
				WithDetail("where", expr)
		}
		if op == ">=" {
			return aggregate.AtLeast(field, x), nil
		}
		return aggregate.AtMost(field, x), nil
	}
	return nil, errors.New(errors.ErrorTypeValidation, "expected field=value, field!=value, field>=x or field<=x").
		WithDetail("where", expr)
}

func newReadCmd(a *app) *cobra.Command {
	var q query
	var format string

	cmd := &cobra.Command{
		Use:   "read DATA",
		Short: "Filter, sort and average a data file",
		Long: `Read a data file (or an export) and print it after filtering, sorting,
grouping and projecting. Grouping averages every numeric field over runs of
records with equal keys.

Example:
  sweepline read data/runtime.msq.dat --where mode=counting --group adds,removes --count trials`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := readAny(args[0])
			if err != nil {
				return err
			}
			records, err = q.apply(records)
			if err != nil {
				return err
			}
			return writeRecords(cmd.OutOrStdout(), a, format, records)
		},
	}
	f := cmd.Flags()
	f.StringArrayVarP(&q.where, "where", "w", nil, "Keep records matching field=value, field!=value, field>=x or field<=x (repeatable)")
	f.StringSliceVar(&q.sort, "sort", nil, "Sort by these fields")
	f.StringSliceVar(&q.group, "group", nil, "Average runs of records sharing these fields")
	f.StringSliceVar(&q.fields, "fields", nil, "Fields to average (default every numeric field)")
	f.StringVar(&q.count, "count", "", "Add a column counting the records of each group")
	f.StringSliceVar(&q.project, "select", nil, "Keep only these fields")
	f.StringVarP(&format, "format", "f", "text", "Output format: text, jsonl, arrow or avro")
	return cmd
}

// readAny reads a data file, or an export when the extension names one
func readAny(path string) ([]*models.Record, error) {
	if _, err := export.FormatFromPath(path); err == nil {
		return export.ReadFile(path)
	}
	return store.Read(path)
}

func writeRecords(out io.Writer, a *app, format string, records []*models.Record) error {
	if format == "" || format == "text" {
		opts, err := a.cfg.StoreOptions()
		if err != nil {
			return err
		}
		text, err := store.Format(records, opts)
		if err != nil {
			return err
		}
		_, err = io.WriteString(out, text)
		return err
	}
	f, err := export.ParseFormat(format)
	if err != nil {
		return err
	}
	cols, err := schema.InferColumns("records", records)
	if err != nil {
		return err
	}
	return export.Write(out, f, cols, records)
}

func newExportCmd(a *app) *cobra.Command {
	var level int
	cmd := &cobra.Command{
		Use:   "export DATA OUT",
		Short: "Convert a data file to JSON lines, Arrow or Avro",
		Long: `Convert a data file into a typed columnar or row format. The format comes
from OUT's extension (.jsonl, .arrow, .avro) and a trailing .gz, .zst, .lz4,
.s2 or .sz compresses it.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := store.Read(args[0])
			if err != nil {
				return err
			}
			name := strings.SplitN(filepath.Base(args[0]), ".", 2)[0]
			cols, err := export.WriteFile(args[1], name, records, compression.Level(level))
			if err != nil {
				return err
			}
			a.log.Info("exported data file",
				zap.String("file", args[0]),
				zap.String("export", args[1]),
				zap.Int("records", len(records)),
				zap.Int("columns", len(cols.Fields)))
			return nil
		},
	}
	cmd.Flags().IntVar(&level, "level", int(compression.Default), "Compression level, 1 (fastest) to 9 (best)")
	return cmd
}

func newArchiveCmd(a *app) *cobra.Command {
	var algorithm string
	var level int
	cmd := &cobra.Command{
		Use:   "archive DATA...",
		Short: "Write compressed copies of data files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			alg, err := compression.ParseAlgorithm(algorithm)
			if err != nil {
				return err
			}
			for _, path := range args {
				archive, err := archiveFile(path, alg, compression.Level(level), a.log)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), archive)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&algorithm, "algorithm", "a", string(compression.Zstd), "gzip, zstd, lz4, s2 or snappy")
	cmd.Flags().IntVar(&level, "level", int(compression.Default), "Compression level, 1 (fastest) to 9 (best)")
	return cmd
}

func newPublishCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish FILE...",
		Short: "Upload data files, manifests and figures to S3 or GCS",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.cfg.Publish.Enabled() {
				return errors.New(errors.ErrorTypeConfig, "publish needs a target (--target or publish.target)")
			}
			_, err := publishFiles(cmd.Context(), a, args, nil, cmd.OutOrStdout())
			return err
		},
	}
	cmd.Flags().String("target", "", "s3://bucket/prefix or gs://bucket/prefix")
	bindFlag(cmd.Flags(), "target", "publish.target")
	return cmd
}
