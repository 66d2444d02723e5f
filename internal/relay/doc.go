// Package relay forwards blobs to the CESS DeOSS storage gateway.
//
// # Contract
//
//   - Upload PUTs a multipart/form-data body to the configured endpoint with
//     the Account, Message, Signature and Territory headers. Missing
//     credentials fail with an apperr configuration error, non-2xx answers
//     with an upstream error carrying the status, and deadline overruns with
//     a timeout error.
//   - Fetch GETs <endpoint>/<fid>; any non-200 answer is a not-found error.
//   - Exists HEADs <endpoint>/<fid> and never returns an error.
//
// # Identifier fallback
//
// The gateway is expected to return the file identifier in its JSON body.
// When it does not, Upload returns FallbackID(data), the hex SHA-256 of the
// payload. The fallback is deterministic but does not match what the gateway
// actually stored.
//
// Nothing is retried; each call is bounded by Config.Timeout (default 30s).
package relay
