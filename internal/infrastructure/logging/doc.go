// Package logging configures log/slog for claimd.
//
// Output is JSON unless logging.format is "text", to stdout unless
// logging.output is "stderr", filtered at logging.level (debug, info, warn,
// error). Each entry carries service=claimd and the build version.
//
//	log := logging.New(cfg.Logging, version)
//	log.Info("listening", "addr", srv.Addr)
//
// Attributes named token, password, secret, claim_url, ssl_ca or dsn are
// printed as [REDACTED] whatever their value. This is a backstop: raw claim
// tokens should never be handed to a logger in the first place, and the
// claim types that hold them implement slog.LogValuer to hide them.
package logging
