// Package api provides the HTTP gateway for claimd.
//
// It exposes the claim service to provisioning tools and end users:
//
//	POST /api/v1/tokens           issue a claim token
//	POST /api/v1/devices          register a device
//	GET  /api/v1/devices          list devices (?claimed=, limit, offset)
//	POST /api/v1/tokens/validate  check a token is registered
//	POST /api/v1/claim            claim a device
//	GET  /claim?token=...         claim via the issued claim URL
//	GET  /api/v1/health           store health and pool statistics
//
// Validate and claim are unauthenticated and rate limited per client IP
// when a limiter is configured.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close(ctx)
//
// Request logging records the path only; query strings carry raw tokens.
package api
