package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "bookshelf",
	Short: "Personal ebook library with searchable text and table-of-contents extraction",
	Long: `Bookshelf stores PDF and text books, condenses their text for search,
rebuilds a table of contents from the ML service, the embedded outline or
heading patterns, and tracks reading progress, bookmarks and study notes.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./bookshelf.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "info", "log level: debug, info, warn or error",
	)

	rootCmd.AddCommand(serveCmd, condenseCmd, tocCmd, versionCmd)
}

func newLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}
