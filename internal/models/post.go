package models

import "time"

// Post is a normalized timeline entry.
//
// It only carries the fields the feed shows. Remote fields such as uri, language,
// muted and the reply identifiers are dropped when a remote status is converted.
type Post struct {
	ID              string    `json:"id"`
	Domain          string    `json:"original_server"`
	CreatedAt       time.Time `json:"created_at"`
	URL             string    `json:"url"`
	Content         string    `json:"content"`
	SpoilerText     string    `json:"spoiler_text,omitempty"`
	Sensitive       bool      `json:"sensitive"`
	Visibility      string    `json:"visibility"`
	Account         Account   `json:"account"`
	Media           []Media   `json:"media_attachments,omitempty"`
	FavouritesCount int       `json:"favourites_count"`
	ReblogsCount    int       `json:"reblogs_count"`
	RepliesCount    int       `json:"replies_count"`
}

// Account identifies the author of a [Post].
type Account struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Acct        string `json:"acct"`
	DisplayName string `json:"display_name"`
	URL         string `json:"url"`
	Avatar      string `json:"avatar"`
}

// Name returns the display name, falling back to the account handle.
func (a Account) Name() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.Acct
}

// Media is an attachment of a [Post].
type Media struct {
	Type        string `json:"type"`
	URL         string `json:"url"`
	PreviewURL  string `json:"preview_url"`
	Description string `json:"description,omitempty"`
}
