package web

import (
	"errors"
	"net/http"

	"github.com/desertthunder/amalgam/internal/shared"
	"github.com/desertthunder/amalgam/internal/tasks"
)

// home renders the merged feed. Servers that could not be reached are listed above the posts.
func (a *App) home(req *request, user Principal) error {
	result, err := a.feed.Build(req.r.Context(), nil, user.UserID)
	if err != nil {
		return a.fail(req, pageHome, err)
	}

	return a.render(req, pageHome, View{
		Title:  "Feed",
		Posts:  result.Posts,
		Failed: result.Failures,
	})
}

func (a *App) addServerForm(req *request, _ Principal) error {
	return a.render(req, pageAddServer, View{Title: "Add server"})
}

// addServer starts linking the submitted domain and redirects to the server's authorization page.
func (a *App) addServer(req *request, user Principal) error {
	var pending tasks.PendingLink
	redirect, err := a.links.Begin(req.r.Context(), &pending, req.r.PostFormValue("user_domain"))

	storePending(req.sess.Session, pending)
	if serr := req.sess.save(req.w, req.r); serr != nil && err == nil {
		err = shared.NewError(shared.KindServiceUnavailable, shared.MsgServiceUnavailable, serr)
	}
	if err != nil {
		return a.fail(req, pageAddServer, err)
	}

	a.logger.Info("redirecting to authorization", "user", user.UserID, "domain", pending.VerifiedDomain)
	http.Redirect(req.w, req.r, redirect, http.StatusSeeOther)
	return nil
}

// handleOAuth completes linking with the code the server sent back. The outcome is flashed on
// the add server page.
func (a *App) handleOAuth(req *request, user Principal) error {
	q := req.r.URL.Query()
	pending := pendingFrom(req.sess.Session)
	clearPending(req.sess.Session)

	if denied := q.Get("error"); denied != "" && q.Get("code") == "" {
		a.logger.Warn("authorization denied", "domain", pending.VerifiedDomain, "error", denied)
	}

	account, err := a.links.Complete(req.r.Context(), pending, user.UserID, q.Get("code"), q.Get("state"))
	if err != nil {
		a.flashRedirect(req, "/feed/add_server", shared.MessageOf(err, shared.MsgServiceUnavailable))
		return err
	}

	a.logger.Info("server added", "user", user.UserID, "domain", account.Domain())
	a.flashRedirect(req, "/feed/add_server", shared.MsgServerAdded)
	return nil
}

func (a *App) deleteServerForm(req *request, user Principal) error {
	accounts, err := a.links.Accounts(req.r.Context(), user.UserID)
	if err != nil {
		return a.fail(req, pageDeleteServer, err)
	}
	return a.render(req, pageDeleteServer, View{Title: "Remove servers", Servers: accounts})
}

// deleteServer unlinks every domain in the servers form field, then shows what is left.
func (a *App) deleteServer(req *request, user Principal) error {
	if err := req.r.ParseForm(); err != nil {
		return a.fail(req, pageDeleteServer, shared.NewError(shared.KindInvalidInput, shared.MsgServiceUnavailable, err))
	}

	removed, unlinkErr := a.links.Unlink(req.r.Context(), user.UserID, req.r.PostForm["servers"]...)

	accounts, err := a.links.Accounts(req.r.Context(), user.UserID)
	if err != nil {
		return a.fail(req, pageDeleteServer, errors.Join(unlinkErr, err))
	}

	view := View{Title: "Remove servers", Servers: accounts}
	if unlinkErr != nil {
		return a.failWith(req, pageDeleteServer, view, unlinkErr)
	}
	if removed > 0 {
		req.sess.AddFlash(shared.MsgServersRemoved)
	}
	return a.render(req, pageDeleteServer, view)
}
