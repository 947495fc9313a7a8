// Package logging configures structured slog output for hotelrag.
//
// Without --debug only warnings reach stderr. With --debug, JSON records at
// debug level are also written to ~/.hotelrag/logs/hotelrag.log with
// size-based rotation.
package logging
