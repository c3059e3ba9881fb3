package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/tomfevang/datasmith/internal/config"
	"github.com/tomfevang/datasmith/internal/prefstore"
	"github.com/tomfevang/datasmith/internal/server"
	"github.com/tomfevang/datasmith/internal/session"
	"github.com/tomfevang/datasmith/internal/version"
)

var serveLogLines int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the JSON-line command server on stdin/stdout",
	Long: `The serve subcommand starts the command server: one JSON request per stdin
line, one JSON response per stdout line. Running datasmith without a
subcommand does the same thing.

Nothing but protocol responses is written to stdout. Server activity goes to
<data_dir>/logs/runner.log; per-database SQL logs live beside it.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&serveLogLines, "log-lines", 0,
		"Default number of SQL log lines returned by get_logs_read")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}

	storePath, err := cfg.StorePath()
	if err != nil {
		return err
	}
	store, err := prefstore.Open(storePath)
	if err != nil {
		return fmt.Errorf("opening preference store: %w", err)
	}
	defer store.Close()

	logsDir, err := cfg.LogsDir()
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(&lumberjack.Logger{
		Filename:   filepath.Join(logsDir, "runner.log"),
		MaxSize:    cfg.Rotation.MaxSizeMB,
		MaxBackups: cfg.Rotation.MaxBackups,
		MaxAge:     cfg.Rotation.MaxAgeDays,
	}, &slog.HandlerOptions{Level: level}))

	sess := session.New(logsDir, store)
	defer sess.Disconnect()

	srv := server.New(sess, store, logger)
	srv.SetLogLines(resolveLogLines(cmd, serveLogLines, cfg.LogLines))

	logger.Info("server started", "version", version.Version(), "store", storePath)
	if err := srv.Listen(os.Stdin, os.Stdout); err != nil {
		logger.Error("server stopped", "err", err)
		return err
	}
	logger.Info("server exited")
	return nil
}
