package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/ocr-fusion/internal/common"
)

const appName = "ocrfuse"

var (
	Version     = "0.1.0"
	CommitSha   = "unknown"
	FullVersion = Version + "-" + CommitSha
)

// exit codes
const (
	exitFailure = 1
	exitConfig  = 2
)

func newRootCmd() *cobra.Command {
	app := &app{}
	rootCmd := &cobra.Command{
		Use:   appName,
		Short: "OCR batch runner and multi-candidate text fusion",
		Long: color.New(color.FgHiMagenta).Sprintf(
			"Runs OCR engines over page collections, fuses their candidates and exports training datasets. %s",
			color.New(color.FgBlue).Sprintf("(%s)", FullVersion),
		),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.init(cmd)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&app.configPath, "config", "", "path to a TOML config file (default: $XDG_CONFIG_HOME/"+common.ConfigRelPath+")")
	pf.StringVar(&app.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&app.logFormat, "log-format", "", "log format: json or text")
	pf.StringVar(&app.dbURL, "db", "", "run store DSN (SQLite path or postgres:// URL); empty disables the store")

	rootCmd.AddCommand(
		newVersionCmd(),
		newOCRCmd(app),
		newExportCmd(app),
		newEvalCmd(app),
		newFuseCmd(app),
		newWatchCmd(app),
	)
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		errorStyle.Fprintf(os.Stderr, "error: %v\n", err)
		var appErr *common.AppError
		if common.IsConfigError(err) || (errors.As(err, &appErr) && appErr.Code == common.CodeConfig) {
			os.Exit(exitConfig)
		}
		os.Exit(exitFailure)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		// no config or logger needed
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version: %s\n", appName, titleStyle.Sprint(FullVersion))
		},
	}
}
