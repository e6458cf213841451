// Package service is the protocol layer between a transport and the rooms.
//
// A Relay receives inbound events as (connection, event name, raw JSON)
// triples, validates and normalizes their payloads, resolves the room
// through a RoomStore and calls the matching room operation. Failures are
// turned into events for the sender:
//
//   - malformed input, unknown rooms, full or finished rooms produce an
//     error event, or join-error for create-game and join-game
//   - invalid or out-of-turn game updates are logged and dropped
//   - a panic while handling one event is recovered, logged with its stack
//     and reported as a generic error
//
// Usage:
//
//	reg := registry.New(hub, hub, registry.DefaultOptions())
//	relay := service.NewRelay(reg, lobby.New(hub, reg), hub)
//	hub.SetHandler(relay)
package service
