package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"

	"github.com/desertthunder/amalgam/internal/formatter"
	"github.com/desertthunder/amalgam/internal/models"
)

var (
	_ list.Item = postItem{}
)

// postItem wraps [models.Post] to implement [list.Item].
type postItem struct {
	post models.Post
	text string
}

func newPostItem(post models.Post) postItem {
	return postItem{post: post, text: formatter.PlainText(post.Content)}
}

func (i postItem) FilterValue() string {
	return i.post.Account.Acct + " " + i.post.Domain + " " + i.text
}

func (i postItem) Title() string {
	return fmt.Sprintf("%s (@%s)", i.post.Account.Name(), i.post.Account.Acct)
}

func (i postItem) Description() string {
	first, _, _ := strings.Cut(i.text, "\n")
	if i.post.SpoilerText != "" {
		first = "CW: " + i.post.SpoilerText
	}
	return fmt.Sprintf("★%d • %s • %s", i.post.FavouritesCount, i.post.Domain, first)
}
