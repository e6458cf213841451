// Package lobby keeps the list of players who are online but not
// necessarily in a room, and lets them challenge each other directly. An
// accepted challenge creates a room and seats both players in it.
package lobby
