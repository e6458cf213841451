// Command boardgame-relay runs the real-time relay for two-player board
// games.
//
// The default "serve" command starts an HTTP server exposing the websocket
// endpoint game clients connect to, a small read-only REST API, and an /mcp
// endpoint with operator tools. It can also serve the MCP tools over stdio
// and publish the server through an ngrok tunnel.
//
// Settings come from relay.yaml, RELAY_* environment variables and .env
// files; the flags below override them.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
	"github.com/wricardo/boardgame-relay/game/config"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Board Game Relay"
)

func serveFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to a YAML settings file (default: relay.yaml if present)"},
		&cli.StringFlag{Name: "host", Usage: "HTTP listen host"},
		&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "HTTP listen port"},
		&cli.StringFlag{Name: "static-dir", Usage: "directory with the browser client"},
		&cli.BoolFlag{Name: "debug", Usage: "enable debug logging"},
		&cli.StringFlag{Name: "log-format", Usage: "console or json"},
		&cli.BoolFlag{Name: "ngrok", Usage: "publish the server through an ngrok tunnel (needs NGROK_AUTHTOKEN)"},
		&cli.StringFlag{Name: "ngrok-domain", Usage: "reserved ngrok domain to use"},
		&cli.BoolFlag{Name: "mcp-stdio", Usage: "also serve the operator MCP tools on stdin/stdout"},
	}
}

func newApp() *cli.Command {
	serve := &cli.Command{
		Name:   "serve",
		Usage:  "run the relay server (default)",
		Flags:  serveFlags(),
		Action: serveAction,
	}

	return &cli.Command{
		Name:    "boardgame-relay",
		Usage:   AppName,
		Version: Version,
		Flags:   serveFlags(),
		Action:  serveAction,
		Commands: []*cli.Command{
			serve,
			{
				Name:  "version",
				Usage: "print the version",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					fmt.Fprintf(cmd.Root().Writer, "%s v%s\n", AppName, Version)
					return nil
				},
			},
		},
	}
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	if files, err := config.LoadEnvFiles(); err != nil {
		log.Warn().Err(err).Msg("error loading .env file")
	} else if len(files) > 0 {
		log.Info().Strs("files", files).Msg("loaded environment variables")
	}

	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	setupLogging(os.Stderr, settings.Log)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", Version).Str("addr", settings.Server.Addr()).Msg("starting " + AppName)
	return runServer(ctx, settings, runOptions{mcpStdio: cmd.Bool("mcp-stdio")})
}

// loadSettings reads the settings file and applies flags that were set
func loadSettings(cmd *cli.Command) (*config.Settings, error) {
	settings, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	if cmd.IsSet("host") {
		settings.Server.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		settings.Server.Port = int(cmd.Int("port"))
	}
	if cmd.IsSet("static-dir") {
		settings.Server.StaticDir = cmd.String("static-dir")
	}
	if cmd.Bool("debug") {
		settings.Log.Level = "debug"
	}
	if cmd.IsSet("log-format") {
		settings.Log.Format = cmd.String("log-format")
	}
	if cmd.Bool("ngrok") {
		settings.Ngrok.Enabled = true
	}
	if cmd.IsSet("ngrok-domain") {
		settings.Ngrok.Domain = cmd.String("ngrok-domain")
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// setupLogging configures the global zerolog logger
func setupLogging(w io.Writer, s config.LogSettings) {
	level, err := zerolog.ParseLevel(strings.ToLower(s.Level))
	if err != nil || s.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if s.Format == "json" {
		log.Logger = zerolog.New(w).With().Timestamp().Logger()
		return
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := newApp().Run(context.Background(), os.Args); err != nil {
		log.Fatal().Err(err).Msg("relay stopped")
	}
}
