// Package log provides secure logging functionality with automatic
// sanitization of sensitive information, built on top of the standard
// slog package.
//
// The scanner handles target credentials in several places: bearer tokens
// on API requests, the explanation service API key, and the auth shared
// secret. The RedactingHandler masks these in log output so that verbose
// logs can be shared with operators without leaking secrets:
//   - HTTP headers (Authorization, Cookie, X-Api-Key)
//   - Secret values detected by key name (password, token, secret, ...)
//   - JWT and bearer-token shaped values detected by pattern
//
// Usage:
//
//	logger := log.NewLogger(os.Stderr, verbose)
//	logger.Info("request authorized",
//	    "authorization", "Bearer eyJ...",  // masked in output
//	    "owner", ownerID,
//	)
package log
