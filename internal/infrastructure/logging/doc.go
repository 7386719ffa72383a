// Package logging provides structured logging for the Automata agent.
//
// It wraps the standard log/slog package so every component logs with the
// same handler, level filtering and default fields (service, version).
//
// Logging is configured via the logging section of the config file:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Never log broker passwords, reboot secrets or network secrets.
package logging
