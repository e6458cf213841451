// Package registry maps room codes to live rooms.
//
// Codes are five characters from A-Z and 0-9, drawn with crypto/rand and
// compared case-insensitively. A Registry creates rooms, looks them up,
// removes them when they release themselves, and periodically reaps rooms
// that are finished or have been idle too long.
//
// Lock order is room before registry: a room calls back into the registry
// (to remove itself) while holding its own lock, so the registry never calls
// into a room while holding its map lock.
package registry
