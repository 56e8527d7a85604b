// Package services talks to remote Mastodon-compatible servers.
//
// # Raw client
//
// [APIClient] wraps an [http.Client] and returns an [APIResponse] with the status, headers, and body of each call.
// All requests send Accept: application/json and a fixed User-Agent.
//
// # Mastodon
//
// [MastodonService] implements the calls the linking flow and the feed need:
//   - [MastodonService.VerifyDomain] : GET /api/v2/instance, returning the server's self-reported domain
//   - [MastodonService.CreateApplication] : POST /api/v1/apps
//   - [MastodonService.RequestAppToken] : client-credentials grant on /oauth/token
//   - [MastodonService.AuthorizeEndpoint] and [MastodonService.AuthCodeURL] : the URL the user is sent to
//   - [MastodonService.ExchangeCode] : authorization-code grant on /oauth/token
//   - [MastodonService.HomeTimeline] : GET /api/v1/timelines/home
//
// Token calls go through [golang.org/x/oauth2], with the service's HTTP client injected through [oauth2.HTTPClient]
// so that every remote call shares one timeout.
//
// # Error Handling
//
// Non-2xx answers become [*StatusError]. [IsTransient] and [IsRejected] classify failures so callers
// can decide between retrying and failing fast. Domain verification failures are returned as
// [shared.Error] values of kind [shared.KindInvalidDomain].
package services
