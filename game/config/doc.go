// Package config loads relay settings.
//
// Settings come from, in increasing precedence: built-in defaults, a YAML
// file (relay.yaml in . or ./config, or an explicit path), and RELAY_*
// environment variables where dots become underscores, so rooms.win_grace
// is RELAY_ROOMS_WIN_GRACE. LoadEnvFiles can seed the environment from
// .env files first.
//
// Example relay.yaml:
//
//	server:
//	  port: 8080
//	  allowed_origins: ["https://example.com"]
//	rooms:
//	  forfeit_grace: 3s
//	  win_grace: 30s
//	  idle_timeout: 30m
//	board:
//	  board_size: 8
//	  values: [1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16]
//	log:
//	  level: debug
//	  format: json
package config
