// Package room implements the two-seat game room at the heart of the relay.
//
// A Room admits at most two sessions, assigns White to the first and Black
// to the second, and accepts state snapshots only from the side whose turn
// it is. It also arbitrates the end of a game (forfeit, win, everyone
// leaving) and the restart handshake, where both sides must consent before
// a fresh layout is dealt.
//
// Concurrency:
//
// Every exported method locks the room for its whole read-modify-write, so
// two inbound events for the same room never interleave. Delayed cleanups
// reacquire the same lock and carry the epoch they were scheduled under; a
// restart or teardown bumps the epoch and turns them into no-ops.
//
// Outbound events go through a Sender while the lock is held, which keeps
// per-room ordering intact. Senders must therefore never block.
package room
