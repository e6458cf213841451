// Package websocket carries relay events over gorilla/websocket.
//
// Every message in both directions is a JSON frame:
//
//	{"event": "join-game", "data": {"gameId": "K3Q9Z", "playerName": "ana"}}
//
// The Hub assigns each connection a UUID, announces it with a "connected"
// event, and hands inbound frames to a service.Handler. Outbound delivery
// through Send and Broadcast is fire-and-forget: frames go into a buffered
// per-connection channel drained by a write pump, and a connection whose
// buffer fills up is closed rather than allowed to stall its room.
//
// Connections are rate limited per client with golang.org/x/time/rate;
// frames over the limit are answered with an error event and discarded.
//
// Concurrency:
//
// Each connection runs a read pump and a write pump goroutine. The client
// map is guarded by a RWMutex and the hub never calls the handler while
// holding it, so handlers may call Send and Close freely.
package websocket
