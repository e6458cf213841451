// Package mcp exposes read-only operator tools for a running relay over the
// Model Context Protocol, using github.com/mark3labs/mcp-go.
//
// Tools:
//   - list_rooms: live rooms with status and players, optionally filtered
//   - get_room: one room, including the shared game state, as JSON
//   - list_players: the lobby presence list
//   - relay_stats: room, connection and drop counters
//
// The Server also implements http.Handler so it can be mounted at /mcp,
// answering one JSON-RPC message per POST.
package mcp
