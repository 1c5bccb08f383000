package clipboardhttp

import (
	"net/http"
	"strconv"

	"github.com/ohowe1/clipboard/internal/access"
	"github.com/ohowe1/clipboard/internal/lock"
	"github.com/ohowe1/clipboard/internal/log"
	"github.com/ohowe1/clipboard/internal/pages"
	"github.com/ohowe1/clipboard/internal/session"
	"github.com/ohowe1/clipboard/internal/xerrors"
)

func (a *API) lockPage(w http.ResponseWriter, r *http.Request) {
	st, err := a.lock.Status(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.render(w, r, http.StatusOK, pages.Lock, pages.Data{
		LoggedIn:         true,
		Locked:           st.Locked,
		RemainingMinutes: st.RemainingMinutes(),
		DefaultMinutes:   lock.DefaultUnlockMinutes,
	})
}

// toggleLock takes unlock=true|false and an optional duration in minutes.
// A missing, invalid or non-positive duration means the default.
func (a *API) toggleLock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := session.FromContext(ctx)
	if err := a.policy.Authorize(ctx, access.ActionToggleLock, id); err != nil {
		a.metrics.IncAccessDenied(string(access.ActionToggleLock))
		a.fail(w, r, err)
		return
	}
	if !a.parseForm(w, r) {
		return
	}
	unlock, ok := parseStringBool(r.PostForm.Get("unlock"))
	if !ok {
		a.fail(w, r, xerrors.Validation("unlock must be true or false"))
		return
	}

	L := log.FromContext(ctx)
	if !unlock {
		if err := a.lock.Clear(ctx, id.Subject); err != nil {
			a.fail(w, r, err)
			return
		}
		a.metrics.IncLockToggle("lock")
		L.Info(ctx, "clipboard locked", "by", id.Subject)
	} else {
		minutes, err := strconv.Atoi(r.PostForm.Get("duration"))
		if err != nil {
			minutes = 0
		}
		until, err := a.lock.Extend(ctx, minutes, id.Subject)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		a.metrics.IncLockToggle("unlock")
		L.Info(ctx, "clipboard unlocked", "by", id.Subject, "until", until)
	}
	http.Redirect(w, r, "/secure/lock", http.StatusSeeOther)
}

func (a *API) loginPage(w http.ResponseWriter, r *http.Request) {
	if session.FromContext(r.Context()).Authenticated() {
		http.Redirect(w, r, "/secure/lock", http.StatusSeeOther)
		return
	}
	a.render(w, r, http.StatusOK, pages.Login, pages.Data{})
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	if !a.parseForm(w, r) {
		return
	}
	ctx := r.Context()
	L := log.FromContext(ctx)
	username := r.PostForm.Get("username")

	if !a.creds.Check(username, r.PostForm.Get("password")) {
		a.metrics.IncLoginAttempt(false)
		L.Warn(ctx, "login failed")
		a.render(w, r, http.StatusUnauthorized, pages.Login, pages.Data{Message: "Wrong username or password"})
		return
	}

	token, expires, err := a.sessions.Issue(username)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.metrics.IncLoginAttempt(true)
	session.SetCookie(w, token, expires, a.cookieSecure)
	L.Info(ctx, "login succeeded", "user", username)
	http.Redirect(w, r, "/secure/lock", http.StatusSeeOther)
}

// logout only asks the browser to forget the cookie; the token itself stays
// valid until it expires.
func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	session.ClearCookie(w, a.cookieSecure)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
