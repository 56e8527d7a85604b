package testing

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// FakeMastodon is an in-process Mastodon-compatible server.
//
// Set the exported fields before issuing requests; they are read under the server's lock.
type FakeMastodon struct {
	Server *httptest.Server

	mu    sync.Mutex
	calls map[string]int

	// ReportedDomain is returned by /api/v2/instance. Defaults to the listener host.
	ReportedDomain string
	InstanceStatus int
	InstanceBody   string // raw body override, e.g. invalid JSON

	AppsStatus int

	// WellKnownStatus answers /.well-known/oauth-authorization-server; 0 means 404.
	WellKnownStatus int

	// ClientTokenFailures makes the first N client-credentials grants answer 503.
	ClientTokenFailures int
	// ExchangeFailures makes the first N authorization-code grants answer 503.
	ExchangeFailures int
	// Codes maps accepted authorization codes to the user token they yield.
	Codes map[string]string

	TimelineStatus int
	// Timelines maps a user token to the statuses of its home timeline.
	Timelines map[string][]map[string]any
	// LastLimit is the limit query parameter of the latest timeline request.
	LastLimit int
}

// NewFakeMastodon starts a server and registers its shutdown with t.
func NewFakeMastodon(t *testing.T) *FakeMastodon {
	t.Helper()
	f := &FakeMastodon{
		calls:     make(map[string]int),
		Codes:     make(map[string]string),
		Timelines: make(map[string][]map[string]any),
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Server.Close)
	return f
}

// Host returns host:port of the listener, usable as a domain with the http scheme.
func (f *FakeMastodon) Host() string {
	return strings.TrimPrefix(f.Server.URL, "http://")
}

// Calls returns how many requests hit key, where key is a path or "POST /oauth/token:<grant_type>".
func (f *FakeMastodon) Calls(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

// Set runs fn under the server's lock.
func (f *FakeMastodon) Set(fn func(f *FakeMastodon)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

// Status builds a timeline entry with the fields the aggregator strips included.
func Status(id string, favourites int) map[string]any {
	return map[string]any{
		"id":                     id,
		"uri":                    "https://remote.example/statuses/" + id,
		"url":                    "https://remote.example/@someone/" + id,
		"created_at":             "2024-05-01T12:00:00.000Z",
		"content":                "<p>post " + id + "</p>",
		"visibility":             "public",
		"language":               "en",
		"in_reply_to_id":         nil,
		"in_reply_to_account_id": nil,
		"muted":                  false,
		"favourites_count":       favourites,
		"reblogs_count":          0,
		"replies_count":          0,
		"account": map[string]any{
			"id":           "1",
			"username":     "someone",
			"acct":         "someone",
			"display_name": "Some One",
		},
	}
}

func (f *FakeMastodon) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := r.URL.Path
	if r.URL.Path == "/oauth/token" {
		r.ParseForm()
		key = "POST /oauth/token:" + r.PostForm.Get("grant_type")
	}
	f.calls[key]++

	switch {
	case r.URL.Path == "/api/v2/instance":
		f.instance(w)
	case r.URL.Path == "/api/v1/apps" && r.Method == http.MethodPost:
		f.apps(w, r)
	case r.URL.Path == "/.well-known/oauth-authorization-server":
		if f.WellKnownStatus == 0 {
			http.NotFound(w, r)
			return
		}
		if f.WellKnownStatus != http.StatusOK {
			w.WriteHeader(f.WellKnownStatus)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"authorization_endpoint": f.Server.URL + "/oauth/authorize",
			"token_endpoint":         f.Server.URL + "/oauth/token",
		})
	case r.URL.Path == "/oauth/token":
		f.token(w, r)
	case r.URL.Path == "/api/v1/timelines/home":
		f.timeline(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (f *FakeMastodon) instance(w http.ResponseWriter) {
	if f.InstanceStatus != 0 && f.InstanceStatus != http.StatusOK {
		w.WriteHeader(f.InstanceStatus)
		return
	}
	if f.InstanceBody != "" {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(f.InstanceBody))
		return
	}
	domain := f.ReportedDomain
	if domain == "" {
		domain = f.Host()
	}
	writeJSON(w, http.StatusOK, map[string]any{"domain": domain, "title": "Fake", "version": "4.2.0"})
}

func (f *FakeMastodon) apps(w http.ResponseWriter, r *http.Request) {
	if f.AppsStatus != 0 && f.AppsStatus != http.StatusOK {
		w.WriteHeader(f.AppsStatus)
		return
	}
	r.ParseForm()
	if r.PostForm.Get("client_name") == "" || r.PostForm.Get("redirect_uris") == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": "missing fields"})
		return
	}
	n := f.calls["/api/v1/apps"]
	writeJSON(w, http.StatusOK, map[string]any{
		"id":            strconv.Itoa(n),
		"name":          r.PostForm.Get("client_name"),
		"client_id":     fmt.Sprintf("client-%d", n),
		"client_secret": fmt.Sprintf("secret-%d", n),
	})
}

func (f *FakeMastodon) token(w http.ResponseWriter, r *http.Request) {
	switch r.PostForm.Get("grant_type") {
	case "client_credentials":
		if f.ClientTokenFailures > 0 {
			f.ClientTokenFailures--
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": "bot-token-" + r.PostForm.Get("client_id"),
			"token_type":   "Bearer",
		})
	case "authorization_code":
		if f.ExchangeFailures > 0 {
			f.ExchangeFailures--
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		token, ok := f.Codes[r.PostForm.Get("code")]
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":             "invalid_grant",
				"error_description": "The provided authorization grant is invalid",
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"access_token": token, "token_type": "Bearer", "scope": "read write push"})
	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unsupported_grant_type"})
	}
}

func (f *FakeMastodon) timeline(w http.ResponseWriter, r *http.Request) {
	if f.TimelineStatus != 0 && f.TimelineStatus != http.StatusOK {
		w.WriteHeader(f.TimelineStatus)
		return
	}
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	statuses, ok := f.Timelines[token]
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "The access token is invalid"})
		return
	}
	f.LastLimit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if f.LastLimit > 0 && len(statuses) > f.LastLimit {
		statuses = statuses[:f.LastLimit]
	}
	writeJSON(w, http.StatusOK, statuses)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
