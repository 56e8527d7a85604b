package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/amalgam/internal/models"
	"github.com/desertthunder/amalgam/internal/server"
	"github.com/desertthunder/amalgam/internal/shared"
	"github.com/desertthunder/amalgam/internal/tasks"
)

// UserStore is the part of the user repository the web app needs.
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	Get(ctx context.Context, id string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

// Deps are the collaborators of [App].
type Deps struct {
	Users    UserStore
	Links    *tasks.LinkEngine
	Feed     *tasks.FeedEngine
	Hasher   shared.PasswordHasher
	Sessions *SessionStore
	Logger   *log.Logger
}

// App serves the Feed Amalgamator pages.
type App struct {
	users    UserStore
	links    *tasks.LinkEngine
	feed     *tasks.FeedEngine
	hasher   shared.PasswordHasher
	sessions *SessionStore
	renderer *Renderer
	logger   *log.Logger
}

// NewApp parses the templates and wires deps.
func NewApp(deps Deps) (*App, error) {
	renderer, err := NewRenderer()
	if err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	hasher := deps.Hasher
	if hasher == nil {
		hasher = shared.NewBcryptHasher()
	}

	return &App{
		users:    deps.Users,
		links:    deps.Links,
		feed:     deps.Feed,
		hasher:   hasher,
		sessions: deps.Sessions,
		renderer: renderer,
		logger:   shared.WithLogger(logger, "component", "web"),
	}, nil
}

// Routes registers every page on router.
func (a *App) Routes(router server.Router) {
	router.Handle(http.MethodGet, "/{$}", http.RedirectHandler("/feed/home", http.StatusFound))
	router.Handle(http.MethodGet, "/about", a.page(a.about))

	router.Handle(http.MethodGet, "/auth/register", a.page(a.registerForm))
	router.Handle(http.MethodPost, "/auth/register", a.page(a.register))
	router.Handle(http.MethodGet, "/auth/login", a.page(a.loginForm))
	router.Handle(http.MethodPost, "/auth/login", a.page(a.login))
	router.Handle(http.MethodGet, "/auth/logout", a.page(a.logout))

	router.Handle(http.MethodGet, "/feed/home", a.requireLogin(a.home))
	router.Handle(http.MethodGet, "/feed/add_server", a.requireLogin(a.addServerForm))
	router.Handle(http.MethodPost, "/feed/add_server", a.requireLogin(a.addServer))
	router.Handle(http.MethodGet, "/feed/handle_oauth", a.requireLogin(a.handleOAuth))
	router.Handle(http.MethodGet, "/feed/delete_server", a.requireLogin(a.deleteServerForm))
	router.Handle(http.MethodPost, "/feed/delete_server", a.requireLogin(a.deleteServer))
}

// Handler returns the app behind a [server.BasicRouter] with logging and panic recovery.
func (a *App) Handler() http.Handler {
	router := server.NewBasicRouter()
	router.Use(server.Recover(a.logger), server.Logging(a.logger))
	a.Routes(router)
	return router
}

// request is one page request with its session loaded.
type request struct {
	w    http.ResponseWriter
	r    *http.Request
	sess *sessionHandle
	user *Principal
}

// pageFunc handles a request. A non-nil error has already been reported to the user
// when it is returned; it is only logged.
type pageFunc func(req *request) error

// authedFunc receives the logged-in user explicitly.
type authedFunc func(req *request, user Principal) error

// page loads the session and the logged-in user, if any, before calling fn.
func (a *App) page(fn pageFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := &request{w: w, r: r, sess: a.loadSession(r)}

		user, err := a.loadPrincipal(r.Context(), req.sess)
		if err != nil {
			a.staleSession(req, err)
			return
		}
		req.user = user

		if err := fn(req); err != nil {
			a.logger.Warn("request failed", "path", r.URL.Path, "kind", shared.KindOf(err), "error", err)
		}
	})
}

// requireLogin redirects anonymous requests to the login page.
func (a *App) requireLogin(fn authedFunc) http.Handler {
	return a.page(func(req *request) error {
		if req.user == nil {
			a.flashRedirect(req, "/auth/login", shared.MsgLoginRequired)
			return nil
		}
		return fn(req, *req.user)
	})
}

// loadPrincipal resolves the session's user id. A session naming a user that no longer
// exists is an integrity error.
func (a *App) loadPrincipal(ctx context.Context, sess *sessionHandle) (*Principal, error) {
	id := stringValue(sess.Session, keyUserID)
	if id == "" {
		return nil, nil
	}

	user, err := a.users.Get(ctx, id)
	switch {
	case err == nil:
		return &Principal{UserID: user.ID(), Username: user.Username()}, nil
	case errors.Is(err, shared.ErrNotFound):
		return nil, shared.NewError(shared.KindIntegrity, shared.MsgUserDoesNotExist+" "+id, err)
	default:
		return nil, shared.NewError(shared.KindServiceUnavailable, shared.MsgServiceUnavailable, err)
	}
}

func (a *App) staleSession(req *request, err error) {
	a.logger.Error("session user lookup failed", "error", err)
	if shared.KindOf(err) == shared.KindIntegrity {
		clearSession(req.sess.Session)
		req.sess.save(req.w, req.r)
	}
	a.fail(req, pageRegister, err)
}

// loadSession returns the request's session. An undecodable cookie is replaced by a new session.
func (a *App) loadSession(r *http.Request) *sessionHandle {
	sess, err := a.sessions.Get(r)
	if err != nil {
		a.logger.Warn("discarding unreadable session", "error", err)
	}
	return &sessionHandle{Session: sess, store: a.sessions}
}
