// Package requestid assigns a unique, sortable identifier to every incoming
// request and makes it available to downstream handlers and log/trace
// integrations.
//
// Identifiers are ULIDs: a 48-bit millisecond timestamp followed by 80 bits
// of cryptographic randomness, rendered as a fixed 26-character Crockford
// base-32 string whose lexical order matches generation order.
//
// The package provides:
//   - ID generation and parsing
//   - Typed context storage (NewContext / FromContext)
//   - A generic Service decorator that stamps the call context and forwards
//     readiness, responses and errors unchanged
//   - net/http middleware and gRPC interceptors built on the same idea
//   - A span factory (MakeSpan) producing the id/method/uri triple for slog,
//     zap and OpenTelemetry
//
// The stamping middleware must run before anything that reads the span,
// otherwise the span id falls back to "unknown":
//
//	handler := requestid.WithRequestID(
//		logging.WithStructuredLogging(logger)(
//			yourHandler,
//		),
//	)
package requestid
