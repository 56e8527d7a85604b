package web

import (
	"net/http"

	"github.com/desertthunder/amalgam/internal/shared"
)

// statusOf maps an error to the status of the page that reports it.
func statusOf(err error) int {
	return shared.KindOf(err).Status()
}

// fail re-renders page with the error's message and status.
func (a *App) fail(req *request, page string, err error) error {
	return a.failWith(req, page, View{}, err)
}

func (a *App) failWith(req *request, page string, view View, err error) error {
	view.User = req.user
	view.Error = shared.MessageOf(err, shared.MsgServiceUnavailable)

	if rerr := a.renderer.Render(req.w, statusOf(err), page, view); rerr != nil {
		a.logger.Error("render failed", "page", page, "error", rerr)
		http.Error(req.w, view.Error, statusOf(err))
	}
	return err
}

// flashRedirect stores msg as a flash and redirects to path.
func (a *App) flashRedirect(req *request, path, msg string) {
	req.sess.AddFlash(msg)
	if err := req.sess.save(req.w, req.r); err != nil {
		a.logger.Error("failed to save session", "error", err)
	}
	http.Redirect(req.w, req.r, path, http.StatusSeeOther)
}

// render writes page with the request's user and pending flashes.
func (a *App) render(req *request, page string, view View) error {
	view.User = req.user
	view.Flashes = flashes(req.sess.Session)
	if len(view.Flashes) > 0 {
		if err := req.sess.save(req.w, req.r); err != nil {
			a.logger.Error("failed to save session", "error", err)
		}
	}

	if err := a.renderer.Render(req.w, http.StatusOK, page, view); err != nil {
		http.Error(req.w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return err
	}
	return nil
}
