package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog/log"
	"github.com/wricardo/boardgame-relay/game/lobby"
	"github.com/wricardo/boardgame-relay/game/room"
	"github.com/wricardo/boardgame-relay/game/service"
)

// Rooms is the read side of the room registry
type Rooms interface {
	Snapshots() []room.Info
	Get(code string) (*room.Room, error)
}

// Deps are the live components the tools read from. Players and Conns may
// be nil.
type Deps struct {
	Rooms   Rooms
	Stats   func() service.Stats
	Players func() []lobby.Player
	Conns   func() int
}

// Server exposes read-only operator tools over MCP
type Server struct {
	deps      Deps
	mcpServer *server.MCPServer
}

// NewServer creates the MCP server and registers its tools
func NewServer(deps Deps, version string) *Server {
	s := &Server{deps: deps}
	s.mcpServer = server.NewMCPServer(
		"Board Game Relay",
		version,
		server.WithToolCapabilities(true),
		server.WithInstructions(`Board Game Relay - operator interface

Read-only view of the rooms hosted by this relay process.

AVAILABLE TOOLS:
- list_rooms: every live room with status and players
- get_room: one room by its code, including the current board
- list_players: players present in the lobby
- relay_stats: counters for rooms, connections and dropped updates`),
	)
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.Tool{
		Name:        "list_rooms",
		Description: "List all live rooms",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"status": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"waiting", "playing", "finished"},
					"description": "Only return rooms in this status (optional)",
				},
			},
		},
	}, s.handleListRooms)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "get_room",
		Description: "Get a room by its code, including the shared game state",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"code": map[string]interface{}{
					"type":        "string",
					"description": "Room code (case-insensitive)",
				},
			},
			Required: []string{"code"},
		},
	}, s.handleGetRoom)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "list_players",
		Description: "List players registered in the lobby",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, s.handleListPlayers)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "relay_stats",
		Description: "Get relay counters",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, s.handleRelayStats)
}

// GetMCPServer returns the underlying MCP server for serving
func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeHTTP answers one JSON-RPC message per POST
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	response := s.mcpServer.HandleMessage(r.Context(), body)
	if response == nil {
		// notifications have no response
		w.WriteHeader(http.StatusAccepted)
		return
	}

	responseData, err := json.Marshal(response)
	if err != nil {
		log.Error().Err(err).Str("module", "mcp").Msg("failed to marshal response")
		http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(responseData)
}

func (s *Server) handleListRooms(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := ""
	if args, ok := request.Params.Arguments.(map[string]interface{}); ok {
		status, _ = args["status"].(string)
	}

	var rooms []room.Info
	for _, info := range s.deps.Rooms.Snapshots() {
		if status == "" || string(info.Status) == status {
			rooms = append(rooms, info)
		}
	}
	return mcp.NewToolResultText(formatRooms(rooms)), nil
}

func (s *Server) handleGetRoom(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	code, _ := args["code"].(string)
	if strings.TrimSpace(code) == "" {
		return mcp.NewToolResultError("code is required"), nil
	}

	rm, err := s.deps.Rooms.Get(code)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("room %s: %v", strings.ToUpper(code), err)), nil
	}
	return jsonResult(rm.Snapshot())
}

func (s *Server) handleListPlayers(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.deps.Players == nil {
		return mcp.NewToolResultError("lobby is disabled"), nil
	}
	players := s.deps.Players()
	if len(players) == 0 {
		return mcp.NewToolResultText("No players in the lobby"), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d player(s):\n", len(players))
	for _, p := range players {
		busy := "available"
		if p.InGame {
			busy = "in game"
		}
		fmt.Fprintf(&sb, "- %s (%s) %s\n", p.Username, p.ID, busy)
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func (s *Server) handleRelayStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out := map[string]interface{}{}
	if s.deps.Stats != nil {
		out["relay"] = s.deps.Stats()
	}
	if s.deps.Conns != nil {
		out["connections"] = s.deps.Conns()
	}
	return jsonResult(out)
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func formatRooms(rooms []room.Info) string {
	if len(rooms) == 0 {
		return "No rooms"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d room(s):\n", len(rooms))
	for _, info := range rooms {
		names := make([]string, 0, len(info.Players))
		for _, p := range info.Players {
			mark := ""
			if !p.Connected {
				mark = ", away"
			}
			names = append(names, fmt.Sprintf("%s (%s%s)", p.Name, p.Color, mark))
		}
		fmt.Fprintf(&sb, "- %s [%s] %s, last activity %s\n",
			info.Code, info.Status, strings.Join(names, " vs "),
			info.LastActivity.Format("2006-01-02 15:04:05"))
	}
	return sb.String()
}
