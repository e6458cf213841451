// Package api provides the HTTP routes of the relay.
//
// Endpoints:
//   - GET /healthz - liveness with room count and uptime
//   - GET /api/rooms - live rooms, optionally ?status=waiting|playing|finished
//   - GET /api/rooms/{code} - one room including its shared state
//   - GET /api/players - lobby presence list
//   - GET /ws - websocket upgrade for game clients
//   - POST /mcp - operator tools over MCP
//   - /* - static files for the browser client
//
// All JSON errors have the shape {"error": "message"}.
package api
