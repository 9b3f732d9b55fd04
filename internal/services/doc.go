// Package services is the HTTP client for the Spotify accounts service and Web API.
//
// # Token endpoint
//
// [SpotifyService.ExchangeCode] and [SpotifyService.RefreshToken] use [oauth2.Config] as a public PKCE client:
// client_id travels in the form body and the client secret is only sent when one is configured.
//
// # Web API
//
// Every Web API call takes the caller's access token explicitly; the service holds no per-user state and
// is safe for concurrent use. Responses decode into the explicit Spotify* payload types in this package.
//
// # Error Handling
//
// Failures wrap sentinels from the shared package so callers can branch with errors.Is:
//   - [shared.ErrAPIRequest] : transport failure or undecodable response
//   - [shared.ErrTokenInvalid] : Spotify answered 401
//   - [shared.ErrRateLimited] : Spotify answered 429
//   - [shared.ErrUpstreamRejected] : any other non-2xx answer
//
// Non-2xx answers are returned as [*UpstreamError], whose Message is summarized from the body.
package services
