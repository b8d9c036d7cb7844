package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/ocr-fusion/internal/common"
	"github.com/joseph-ayodele/ocr-fusion/internal/fusion"
	"github.com/joseph-ayodele/ocr-fusion/internal/repository"
)

var (
	titleStyle = color.New(color.Bold, color.FgHiWhite)
	okStyle    = color.New(color.Bold, color.FgHiGreen)
	keyStyle   = color.New(color.FgHiCyan)
	warnStyle  = color.New(color.FgHiYellow)
	errorStyle = color.New(color.Bold, color.FgHiRed)
)

// app carries the state shared by every subcommand.
type app struct {
	configPath string
	logLevel   string
	logFormat  string
	dbURL      string

	cfg    *common.Config
	logger *slog.Logger
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := common.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	if a.dbURL != "" {
		cfg.Store.DSN = a.dbURL
	}
	a.cfg = cfg
	a.logger = common.NewLogger(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
	slog.SetDefault(a.logger)
	return nil
}

// runContext tags ctx with a fresh run ID.
func (a *app) runContext(ctx context.Context) (context.Context, uuid.UUID) {
	id := uuid.New()
	return common.WithRunID(ctx, id), id
}

// openStore opens the run store when a DSN is configured. The returned closer is never nil.
func (a *app) openStore(ctx context.Context) (*repository.Store, func(), error) {
	if a.cfg.Store.DSN == "" {
		return nil, func() {}, nil
	}
	store, err := repository.Open(ctx, repository.FromConfig(a.cfg.Store), a.logger)
	if err != nil {
		return nil, func() {}, err
	}
	return store, store.Close, nil
}

func (a *app) fuser() *fusion.Fuser {
	return fusion.NewFuser(fusion.WithLogger(a.logger), fusion.WithWeights(a.cfg.Fusion.Weights))
}

// printResult writes v as indented JSON to out.
func printResult(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// summary prints a colored status line followed by key/value pairs to stderr.
func summary(title string, kv ...any) {
	okStyle.Fprintln(os.Stderr, title)
	for i := 0; i+1 < len(kv); i += 2 {
		fmt.Fprintf(os.Stderr, "  %s %v\n", keyStyle.Sprintf("%s:", kv[i]), kv[i+1])
	}
}
