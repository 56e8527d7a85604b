package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/desertthunder/amalgam/internal/formatter"
	"github.com/desertthunder/amalgam/internal/models"
	"github.com/desertthunder/amalgam/internal/shared"
	"github.com/desertthunder/amalgam/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	LoadingView ViewState = iota
	FeedView
	PostView
	ErrorView
)

// FeedLoader builds the merged feed of a user. Implemented by [tasks.FeedEngine].
type FeedLoader interface {
	Build(ctx context.Context, progress chan<- tasks.ProgressUpdate, userID string) (*tasks.FeedResult, error)
}

// Model represents the TUI application state.
type Model struct {
	ctx      context.Context
	loader   FeedLoader
	userID   string
	username string

	view   ViewState
	width  int
	height int

	feed     list.Model
	reader   viewport.Model
	result   *tasks.FeedResult
	selected *models.Post

	progressChan chan tasks.ProgressUpdate
	done         chan Msg
	progress     tasks.ProgressUpdate
	err          error

	help help.Model
	keys keyMap
}

// NewModel creates a feed browser for userID. username is only displayed.
func NewModel(ctx context.Context, loader FeedLoader, userID, username string) *Model {
	feed := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	feed.SetShowHelp(false)

	return &Model{
		ctx:      ctx,
		loader:   loader,
		userID:   userID,
		username: username,
		view:     LoadingView,
		feed:     feed,
		reader:   viewport.New(0, 0),
		help:     help.New(),
		keys:     newKeyMap(),
	}
}

// Init starts loading the feed.
func (m *Model) Init() tea.Cmd {
	return m.load()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.feed.SetSize(msg.Width-4, msg.Height-6)
		m.reader.Width = msg.Width - 4
		m.reader.Height = msg.Height - 6
		if m.selected != nil {
			m.reader.SetContent(m.renderPostBody(*m.selected))
		}
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case LoadingView:
			if key.Matches(msg, m.keys.quit) {
				return m, tea.Quit
			}
			return m, nil
		case FeedView:
			return m.handleFeedKeys(msg)
		case PostView:
			return m.handlePostKeys(msg)
		case ErrorView:
			return m.handleErrorKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateChildren(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgProgressUpdate:
		m.progress = msg.data.(tasks.ProgressUpdate)
		return m, m.waitForProgress()

	case MsgFeedLoaded:
		loaded := msg.data.(feedLoaded)
		m.progressChan = nil
		m.done = nil
		if loaded.err != nil {
			m.err = loaded.err
			m.view = ErrorView
			return m, nil
		}

		m.err = nil
		m.result = loaded.result
		items := make([]list.Item, len(loaded.result.Posts))
		for i, post := range loaded.result.Posts {
			items[i] = newPostItem(post)
		}
		m.feed.Title = fmt.Sprintf("Feed • %d posts from %d servers", len(loaded.result.Posts), loaded.result.Servers)
		m.view = FeedView
		return m, m.feed.SetItems(items)
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case LoadingView:
		return m.renderLoading()
	case FeedView:
		return m.renderFeed()
	case PostView:
		return m.renderPost()
	case ErrorView:
		return m.renderError()
	default:
		return ""
	}
}

func (m *Model) handleFeedKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.feed.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.feed, cmd = m.feed.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.refresh):
		return m, m.load()
	case key.Matches(msg, m.keys.open):
		if item, ok := m.feed.SelectedItem().(postItem); ok {
			post := item.post
			m.selected = &post
			m.reader.SetContent(m.renderPostBody(post))
			m.reader.GotoTop()
			m.view = PostView
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.feed, cmd = m.feed.Update(msg)
	return m, cmd
}

func (m *Model) handlePostKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.String() == "ctrl+c":
		return m, tea.Quit
	case key.Matches(msg, m.keys.back), msg.String() == "q":
		m.view = FeedView
		m.selected = nil
		return m, nil
	}

	var cmd tea.Cmd
	m.reader, cmd = m.reader.Update(msg)
	return m, cmd
}

func (m *Model) handleErrorKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.refresh):
		return m, m.load()
	}
	return m, nil
}

func (m *Model) updateChildren(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case FeedView:
		m.feed, cmd = m.feed.Update(msg)
	case PostView:
		m.reader, cmd = m.reader.Update(msg)
	}
	return m, cmd
}

// load runs the feed engine in the background. The final [MsgFeedLoaded] is queued on done
// before the progress channel closes.
func (m *Model) load() tea.Cmd {
	if m.progressChan != nil {
		return nil
	}

	progress := make(chan tasks.ProgressUpdate, 50)
	done := make(chan Msg, 1)
	m.progressChan = progress
	m.done = done
	m.progress = tasks.ProgressUpdate{Message: "Loading feed..."}
	m.view = LoadingView

	go func() {
		result, err := m.loader.Build(m.ctx, progress, m.userID)
		done <- feedLoadedMsg(result, err)
		close(progress)
	}()

	return m.waitForProgress()
}

func (m *Model) waitForProgress() tea.Cmd {
	progress, done := m.progressChan, m.done
	return func() tea.Msg {
		if progress == nil {
			return nil
		}
		update, ok := <-progress
		if !ok {
			return <-done
		}
		return progressUpdateMsg(update)
	}
}

func (m *Model) renderLoading() string {
	title := styles.title.Render("Loading feed")

	status := m.progress.Message
	if m.progress.Phase == tasks.FetchTimeline && m.progress.Total > 0 {
		status = fmt.Sprintf("Fetching timelines (%d/%d)\n%s", m.progress.Step, m.progress.Total, m.progress.Message)
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s", title, status, m.help.ShortHelpView([]key.Binding{m.keys.quit}))
}

func (m *Model) renderFeed() string {
	var header string
	if m.result != nil {
		if failed := m.result.FailedDomains(); len(failed) > 0 {
			header = styles.warn.Render("Could not load: "+strings.Join(failed, ", ")) + "\n"
		}
	}

	helpKeys := []key.Binding{m.keys.open, m.keys.refresh, m.keys.quit}
	return fmt.Sprintf("%s%s\n\n%s", header, m.feed.View(), m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderPost() string {
	if m.selected == nil {
		return ""
	}
	post := *m.selected

	title := styles.title.Render(fmt.Sprintf("%s (@%s)", post.Account.Name(), post.Account.Acct))
	helpKeys := []key.Binding{m.keys.up, m.keys.down, m.keys.back}
	return fmt.Sprintf("%s\n%s\n\n%s", title, m.reader.View(), m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderPostBody(post models.Post) string {
	var b strings.Builder

	b.WriteString(styles.server.Render("via "+post.Domain) + "\n\n")
	if post.SpoilerText != "" {
		b.WriteString(styles.warn.Render("CW: "+post.SpoilerText) + "\n\n")
	}

	body := formatter.PlainText(post.Content)
	if m.reader.Width > 0 {
		body = lipgloss.NewStyle().Width(m.reader.Width).Render(body)
	}
	b.WriteString(body + "\n\n")

	for _, media := range post.Media {
		fmt.Fprintf(&b, "[%s] %s\n", media.Type, media.URL)
	}
	if len(post.Media) > 0 {
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "★ %d  ↻ %d  ↩ %d\n", post.FavouritesCount, post.ReblogsCount, post.RepliesCount)
	b.WriteString(styles.help.Render(post.CreatedAt.Local().Format("2006-01-02 15:04") + "  " + post.URL))
	return b.String()
}

func (m *Model) renderError() string {
	msg := shared.MessageOf(m.err, "")
	if msg == "" && m.err != nil {
		msg = m.err.Error()
	}

	helpKeys := []key.Binding{m.keys.refresh, m.keys.quit}
	return fmt.Sprintf("%s\n\n%s", styles.err.Render("Error: "+msg), m.help.ShortHelpView(helpKeys))
}
