package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/sweater-ventures/devslog"
	"golang.org/x/term"
)

var logLevel *slog.LevelVar

// initLogging installs the default slog handler: JSON when piped or when
// JSON_LOGGING=true, the devslog pretty handler on an interactive terminal.
func initLogging() {
	logLevel = new(slog.LevelVar)
	logLevel.Set(slog.LevelInfo)

	jsonLogging := false
	if v, ok := os.LookupEnv("JSON_LOGGING"); ok && strings.ToLower(v) == "true" {
		jsonLogging = true
	}

	if jsonLogging || !term.IsTerminal(int(os.Stdout.Fd())) {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel,
		})))
		return
	}

	slog.SetDefault(slog.New(devslog.NewHandler(os.Stdout, &devslog.Options{
		HandlerOptions: &slog.HandlerOptions{
			Level: logLevel,
		},
		TimeFormat:           "[ 03:04:05 PM ]",
		StringIndentation:    true,
		DisableAttributeType: true,
	})))
}
