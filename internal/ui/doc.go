// Package ui implements the terminal feed browser using bubbletea's Elm architecture.
//
// The TUI moves through these views:
//  1. [LoadingView] : fetch progress while timelines are collected from every linked server
//  2. [FeedView] : the merged feed as a filterable list
//  3. [PostView] : one post with its full text, media links and counters
//  4. [ErrorView] : the error that stopped the feed, with a retry key
//
// The [Model] implements bubbletea's Init/Update/View pattern, receiving messages via the [Msg] union type.
// Progress updates flow through a channel from the [tasks.FeedEngine] so loading never blocks the UI.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, r, q) with contextual help from bubbles/help.
package ui
