// Package web serves the Feed Amalgamator pages: registration and login, the merged feed,
// and linking or unlinking Mastodon servers through each server's OAuth flow.
//
// Sessions live in a signed cookie ([SessionStore]). Errors from the lower layers carry a
// [shared.Kind] that picks the response status and a message that is shown on the page.
package web
