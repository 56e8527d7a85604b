package web

import (
	"errors"
	"net/http"
	"strings"

	"github.com/desertthunder/amalgam/internal/models"
	"github.com/desertthunder/amalgam/internal/shared"
)

func (a *App) registerForm(req *request) error {
	return a.render(req, pageRegister, View{Title: "Register"})
}

// register creates an account and sends the user to the login page.
func (a *App) register(req *request) error {
	username := strings.TrimSpace(req.r.PostFormValue("username"))
	password := req.r.PostFormValue("password")

	switch {
	case username == "":
		return a.fail(req, pageRegister, shared.NewError(shared.KindInvalidCredentials, shared.MsgUsernameRequired, nil))
	case password == "":
		return a.fail(req, pageRegister, shared.NewError(shared.KindInvalidCredentials, shared.MsgPasswordRequired, nil))
	}

	hash, err := a.hasher.Hash(password)
	if err != nil {
		return a.fail(req, pageRegister, shared.NewError(shared.KindInvalidCredentials, shared.MsgInvalidPassword, err))
	}

	user := models.NewUser(0, username, hash)
	if err := a.users.Create(req.r.Context(), user); err != nil {
		if errors.Is(err, shared.ErrDuplicate) {
			return a.fail(req, pageRegister, shared.NewError(shared.KindIntegrity, shared.MsgUserAlreadyExists, err))
		}
		return a.fail(req, pageRegister, shared.NewError(shared.KindServiceUnavailable, shared.MsgServiceUnavailable, err))
	}

	a.logger.Info("registered user", "username", username)
	http.Redirect(req.w, req.r, "/auth/login", http.StatusSeeOther)
	return nil
}

func (a *App) loginForm(req *request) error {
	return a.render(req, pageLogin, View{Title: "Log In"})
}

// login checks the credentials and starts a fresh session for the user.
func (a *App) login(req *request) error {
	username := strings.TrimSpace(req.r.PostFormValue("username"))
	password := req.r.PostFormValue("password")

	user, err := a.users.GetByUsername(req.r.Context(), username)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return a.fail(req, pageLogin, shared.NewError(shared.KindInvalidCredentials, shared.MsgInvalidUsername, err))
	case err != nil:
		return a.fail(req, pageLogin, shared.NewError(shared.KindServiceUnavailable, shared.MsgServiceUnavailable, err))
	}

	ok, err := a.hasher.Compare(user.PasswordHash(), password)
	if err != nil || !ok {
		return a.fail(req, pageLogin, shared.NewError(shared.KindInvalidCredentials, shared.MsgInvalidPassword, err))
	}

	clearSession(req.sess.Session)
	req.sess.Values[keyUserID] = user.ID()
	if err := req.sess.save(req.w, req.r); err != nil {
		return a.fail(req, pageLogin, shared.NewError(shared.KindServiceUnavailable, shared.MsgServiceUnavailable, err))
	}

	a.logger.Info("user logged in", "username", username)
	http.Redirect(req.w, req.r, "/feed/home", http.StatusSeeOther)
	return nil
}

func (a *App) logout(req *request) error {
	clearSession(req.sess.Session)
	req.sess.Options.MaxAge = -1
	if err := req.sess.save(req.w, req.r); err != nil {
		a.logger.Warn("failed to clear session", "error", err)
	}
	http.Redirect(req.w, req.r, "/auth/login", http.StatusFound)
	return nil
}

func (a *App) about(req *request) error {
	return a.render(req, pageAbout, View{Title: "About"})
}
