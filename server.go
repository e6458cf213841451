package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog/log"
	"github.com/wricardo/boardgame-relay/api"
	"github.com/wricardo/boardgame-relay/game/config"
	"github.com/wricardo/boardgame-relay/game/lobby"
	"github.com/wricardo/boardgame-relay/game/registry"
	"github.com/wricardo/boardgame-relay/game/room"
	"github.com/wricardo/boardgame-relay/game/service"
	"github.com/wricardo/boardgame-relay/transport/mcp"
	"github.com/wricardo/boardgame-relay/transport/websocket"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"
)

// relay holds every wired component of a running process
type relay struct {
	hub      *websocket.Hub
	rooms    *registry.Registry
	lobby    *lobby.Lobby
	service  *service.Relay
	mcp      *mcp.Server
	handler  http.Handler
	settings *config.Settings
}

// newRelay wires the components described by settings
func newRelay(settings *config.Settings) *relay {
	hub := websocket.NewHub(websocket.Options{
		AllowedOrigins:  settings.Server.AllowedOrigins,
		ReadLimit:       settings.Server.ReadLimit,
		PingPeriod:      settings.Server.PingPeriod,
		SendBuffer:      settings.Server.SendBuffer,
		EventsPerSecond: settings.RateLimit.EventsPerSecond,
		Burst:           settings.RateLimit.Burst,
	})

	rooms := registry.New(hub, hub, registry.Options{
		CodeLength:   settings.Rooms.CodeLength,
		IdleTimeout:  settings.Rooms.IdleTimeout,
		ReapInterval: settings.Rooms.ReapInterval,
		Room: room.Options{
			Setup:        settings.Board,
			ForfeitGrace: settings.Rooms.ForfeitGrace,
			WinGrace:     settings.Rooms.WinGrace,
		},
	})

	presence := lobby.New(hub, rooms)
	relaySvc := service.NewRelay(rooms, presence, hub)
	hub.SetHandler(relaySvc)

	mcpServer := mcp.NewServer(mcp.Deps{
		Rooms:   rooms,
		Stats:   relaySvc.Stats,
		Players: presence.List,
		Conns:   hub.Count,
	}, Version)

	handler := api.NewServer(api.Deps{
		Rooms:     rooms,
		Players:   presence.List,
		WebSocket: hub.ServeWS,
		MCP:       mcpServer,
		StaticDir: settings.Server.StaticDir,
		Version:   Version,
	})

	return &relay{
		hub:      hub,
		rooms:    rooms,
		lobby:    presence,
		service:  relaySvc,
		mcp:      mcpServer,
		handler:  handler,
		settings: settings,
	}
}

// shutdown ends every room and closes every connection
func (r *relay) shutdown() {
	r.rooms.Shutdown()
	r.hub.Shutdown()
}

type runOptions struct {
	mcpStdio bool
}

// runServer serves until ctx is cancelled, then shuts down gracefully
func runServer(ctx context.Context, settings *config.Settings, opts runOptions) error {
	rl := newRelay(settings)

	listener, err := net.Listen("tcp", settings.Server.Addr())
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Handler:     rl.handler,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		rl.rooms.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		addr := listener.Addr().String()
		log.Info().Str("module", "main").Str("addr", addr).Msg("HTTP server listening")
		log.Info().Str("module", "main").Msgf("WebSocket: ws://%s/ws", addr)
		log.Info().Str("module", "main").Msgf("MCP endpoint: http://%s/mcp", addr)

		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			cancel()
		}
	}()

	if settings.Ngrok.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			serveNgrok(ctx, settings.Ngrok, rl.handler)
		}()
	}

	if opts.mcpStdio {
		go func() {
			log.Info().Str("module", "main").Msg("MCP stdio server ready")
			if err := server.ServeStdio(rl.mcp.GetMCPServer()); err != nil {
				log.Error().Err(err).Str("module", "main").Msg("MCP stdio server error")
			}
		}()
	}

	<-ctx.Done()
	log.Info().Str("module", "main").Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	rl.shutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Str("module", "main").Msg("HTTP server shutdown error")
	}

	wg.Wait()
	log.Info().Str("module", "main").Msg("server stopped")

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

// serveNgrok publishes handler through an ngrok tunnel until ctx is done
func serveNgrok(ctx context.Context, settings config.NgrokSettings, handler http.Handler) {
	authToken := os.Getenv("NGROK_AUTHTOKEN")
	if authToken == "" {
		authToken = os.Getenv("NGROK_AUTH_TOKEN")
	}
	if authToken == "" {
		log.Warn().Str("module", "ngrok").Msg("ngrok enabled but no auth token provided (set NGROK_AUTHTOKEN)")
		return
	}

	var tunnel ngrokConfig.Tunnel
	if settings.Domain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(settings.Domain))
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(authToken))
	if err != nil {
		log.Error().Err(err).Str("module", "ngrok").Msg("failed to start ngrok tunnel")
		return
	}

	url := tun.URL()
	log.Info().Str("module", "ngrok").Str("url", url).Msg("ngrok tunnel established")
	log.Info().Str("module", "ngrok").Msgf("WebSocket (ngrok): %s/ws", url)

	srv := &http.Server{Handler: handler}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	if err := srv.Serve(tun); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Str("module", "ngrok").Msg("ngrok server error")
	}
	log.Info().Str("module", "ngrok").Msg("ngrok tunnel closed")
}
