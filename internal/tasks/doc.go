// Package tasks links remote Mastodon-compatible accounts to users and builds their merged feed.
//
// # Linking
//
// [LinkEngine] drives one "add server" attempt through the states of [LinkState]:
//
//  1. [LinkEngine.Begin] : verify the typed domain, make sure a client is registered there
//     ([Registrar.EnsureClient]) and return the authorization URL to redirect the user to.
//  2. [LinkEngine.Complete] : check the callback against the [PendingLink] kept in the session,
//     trade the code for a user token ([Exchanger.Exchange]) and store it exactly once.
//
// [LinkEngine.Unlink] removes linked servers. Every failure is a [shared.Error] whose kind the
// web and CLI layers map to a status and a message.
//
// # Feed
//
// [FeedEngine.Build] fetches the home timeline of every linked server concurrently, tags each
// post with its server, drops remote-only fields ([NormalizePost]) and sorts the merged list by
// favourites ([SortPosts]). Servers that fail are reported alongside the posts that did load.
//
// # Progress Reporting
//
// Long operations accept an optional channel of [ProgressUpdate]. Sends never block; updates
// are dropped when the channel is full.
package tasks
