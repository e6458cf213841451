// Package state defines the shared game snapshot relayed between two players.
//
// The state package implements:
//   - The SharedGameState wire shape (pieces, turn, captured storage, last move, winner)
//   - Structural validation of client snapshots (DecodeCandidate)
//   - The merge reducer with its field-ownership table (Merge)
//   - A best-effort move detector used to fill lastMove (DetectMove)
//   - Randomized initial layouts (Setup)
//
// The relay never judges whether a move was legal. Clients run the rules and
// send the resulting board; this package only checks that the snapshot has
// the expected shape and decides how it combines with the current state.
package state
