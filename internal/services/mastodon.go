// Mastodon API implementation of [Service]
//
// Response types follow https://docs.joinmastodon.org/entities/
package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/desertthunder/amalgam/internal/models"
	"github.com/desertthunder/amalgam/internal/shared"
)

const (
	instancePath      = "/api/v2/instance"
	appsPath          = "/api/v1/apps"
	tokenPath         = "/oauth/token"
	authorizePath     = "/oauth/authorize"
	wellKnownPath     = "/.well-known/oauth-authorization-server"
	homeTimelinePath  = "/api/v1/timelines/home"
	defaultClientName = "Feed Amalgamator"
)

// Instance is the subset of GET /api/v2/instance the verifier reads.
type Instance struct {
	Domain  string `json:"domain"`
	Title   string `json:"title"`
	Version string `json:"version"`
}

// AppRegistration is the answer of POST /api/v1/apps.
type AppRegistration struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// MastodonAccount is the author of a [Status].
type MastodonAccount struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Acct        string `json:"acct"`
	DisplayName string `json:"display_name"`
	URL         string `json:"url"`
	Avatar      string `json:"avatar"`
}

// MastodonMedia is a media attachment of a [Status].
type MastodonMedia struct {
	ID          string  `json:"id"`
	Type        string  `json:"type"`
	URL         string  `json:"url"`
	PreviewURL  string  `json:"preview_url"`
	Description *string `json:"description"`
}

// Status is a timeline entry as returned by the remote server.
type Status struct {
	ID                 string          `json:"id"`
	URI                string          `json:"uri"`
	URL                string          `json:"url"`
	CreatedAt          time.Time       `json:"created_at"`
	Content            string          `json:"content"`
	SpoilerText        string          `json:"spoiler_text"`
	Sensitive          bool            `json:"sensitive"`
	Visibility         string          `json:"visibility"`
	Language           *string         `json:"language"`
	InReplyToID        *string         `json:"in_reply_to_id"`
	InReplyToAccountID *string         `json:"in_reply_to_account_id"`
	Muted              *bool           `json:"muted"`
	Account            MastodonAccount `json:"account"`
	MediaAttachments   []MastodonMedia `json:"media_attachments"`
	FavouritesCount    int             `json:"favourites_count"`
	ReblogsCount       int             `json:"reblogs_count"`
	RepliesCount       int             `json:"replies_count"`
}

// MastodonOptions configures a [MastodonService].
type MastodonOptions struct {
	HTTPClient  *http.Client // shared by every remote call; should have a timeout
	Logger      *log.Logger
	Scheme      string // "https" unless talking to a local test server
	UserAgent   string
	ClientName  string
	Website     string
	RedirectURI string
	Scopes      []string
}

// MastodonService implements [Service] for Mastodon-compatible servers.
type MastodonService struct {
	api         *APIClient
	httpClient  *http.Client
	logger      *log.Logger
	scheme      string
	clientName  string
	website     string
	redirectURI string
	scopes      []string
}

// NewMastodonService creates a service from opts, filling defaults for empty fields.
func NewMastodonService(opts MastodonOptions) *MastodonService {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.UserAgent != "" {
		wrapped := *client
		wrapped.Transport = &userAgentTransport{base: client.Transport, userAgent: opts.UserAgent}
		client = &wrapped
	}

	logger := opts.Logger
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	scheme := opts.Scheme
	if scheme == "" {
		scheme = "https"
	}
	name := opts.ClientName
	if name == "" {
		name = defaultClientName
	}
	scopes := opts.Scopes
	if len(scopes) == 0 {
		scopes = []string{"read", "write", "push"}
	}

	return &MastodonService{
		api:         NewAPIClient(client, opts.UserAgent),
		httpClient:  client,
		logger:      shared.WithLogger(logger, "service", "mastodon"),
		scheme:      scheme,
		clientName:  name,
		website:     opts.Website,
		redirectURI: opts.RedirectURI,
		scopes:      scopes,
	}
}

// RedirectURI is the callback registered with every remote application.
func (s *MastodonService) RedirectURI() string { return s.redirectURI }

// BaseURL returns scheme://domain.
func (s *MastodonService) BaseURL(domain string) string {
	return s.scheme + "://" + domain
}

func (s *MastodonService) endpoint(domain, path string) string {
	return s.BaseURL(domain) + path
}

// oauthContext makes the oauth2 package use the service's HTTP client.
func (s *MastodonService) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

// CleanDomain reduces free-form input to a bare, lowercase host[:port].
//
// Scheme, userinfo, path, query, and fragment are dropped. Returns "" when nothing usable remains.
func CleanDomain(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "//" + strings.TrimPrefix(s, "//")
	}

	u, err := url.Parse(s)
	if err != nil {
		return ""
	}
	host := strings.TrimSuffix(strings.ToLower(u.Host), ".")
	if strings.ContainsAny(host, " \t/\\") {
		return ""
	}
	return host
}

// VerifyDomain checks that raw names a reachable Mastodon-compatible server and returns the
// domain the server reports for itself.
//
// Failures are [shared.KindInvalidDomain] errors whose message ends with ":<host>".
func (s *MastodonService) VerifyDomain(ctx context.Context, raw string) (string, error) {
	host := CleanDomain(raw)
	if host == "" {
		return "", shared.NewError(shared.KindInvalidDomain, shared.MsgDomainRequired, nil)
	}

	invalid := func(base string, cause error) error {
		return shared.NewError(shared.KindInvalidDomain, fmt.Sprintf("%s:%s", base, host), cause)
	}

	resp, err := s.api.Get(ctx, s.endpoint(host, instancePath), "")
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		s.logger.Warn("instance lookup failed", "domain", host, "error", err)
		return "", invalid(shared.MsgInvalidDomain, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", invalid(shared.MsgInvalidDomain, &StatusError{Method: http.MethodGet, URL: instancePath, StatusCode: resp.StatusCode})
	}

	var instance Instance
	if err := resp.Decode(&instance); err != nil {
		return "", invalid(shared.MsgInvalidJSONResponse, err)
	}
	domain := CleanDomain(instance.Domain)
	if domain == "" {
		return "", invalid(shared.MsgInvalidJSONResponse, fmt.Errorf("instance response has no domain"))
	}

	s.logger.Debug("verified domain", "input", raw, "domain", domain)
	return domain, nil
}

// CreateApplication registers this service as a client of domain.
func (s *MastodonService) CreateApplication(ctx context.Context, domain string) (*AppRegistration, error) {
	form := url.Values{
		"client_name":   {s.clientName},
		"redirect_uris": {s.redirectURI},
		"scopes":        {strings.Join(s.scopes, " ")},
	}
	if s.website != "" {
		form.Set("website", s.website)
	}

	resp, err := s.api.PostForm(ctx, s.endpoint(domain, appsPath), form)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, &StatusError{Method: http.MethodPost, URL: s.endpoint(domain, appsPath), StatusCode: resp.StatusCode}
	}

	var reg AppRegistration
	if err := resp.Decode(&reg); err != nil {
		return nil, err
	}
	if reg.ClientID == "" || reg.ClientSecret == "" {
		return nil, fmt.Errorf("application registration on %s returned no client credentials", domain)
	}

	s.logger.Info("registered application", "domain", domain)
	return &reg, nil
}

// RequestAppToken obtains the app-level token with the client-credentials grant.
func (s *MastodonService) RequestAppToken(ctx context.Context, domain, clientID, clientSecret string) (string, error) {
	cfg := clientcredentials.Config{
		ClientID:       clientID,
		ClientSecret:   clientSecret,
		TokenURL:       s.endpoint(domain, tokenPath),
		Scopes:         s.scopes,
		EndpointParams: url.Values{"redirect_uri": {s.redirectURI}},
		AuthStyle:      oauth2.AuthStyleInParams,
	}

	token, err := cfg.Token(s.oauthContext(ctx))
	if err != nil {
		return "", fmt.Errorf("client credentials grant on %s: %w", domain, err)
	}
	return token.AccessToken, nil
}

type authorizationServerMetadata struct {
	AuthorizationEndpoint string `json:"authorization_endpoint"`
}

// AuthorizeEndpoint discovers the authorization endpoint of domain.
//
// Servers without discovery metadata (404) use /oauth/authorize.
func (s *MastodonService) AuthorizeEndpoint(ctx context.Context, domain string) (string, error) {
	fallback := s.endpoint(domain, authorizePath)

	resp, err := s.api.Get(ctx, s.endpoint(domain, wellKnownPath), "")
	if err != nil {
		return "", err
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fallback, nil
	case !resp.OK():
		return "", &StatusError{Method: http.MethodGet, URL: s.endpoint(domain, wellKnownPath), StatusCode: resp.StatusCode}
	}

	var meta authorizationServerMetadata
	if err := resp.Decode(&meta); err != nil || meta.AuthorizationEndpoint == "" {
		return fallback, nil
	}
	return meta.AuthorizationEndpoint, nil
}

// OAuthConfig builds the authorization-code configuration for app.
func (s *MastodonService) OAuthConfig(app *models.Application, authURL string) *oauth2.Config {
	if authURL == "" {
		authURL = s.endpoint(app.Domain(), authorizePath)
	}
	redirect := app.RedirectURI()
	if redirect == "" {
		redirect = s.redirectURI
	}
	return &oauth2.Config{
		ClientID:     app.ClientID(),
		ClientSecret: app.ClientSecret(),
		RedirectURL:  redirect,
		Scopes:       s.scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   authURL,
			TokenURL:  s.endpoint(app.Domain(), tokenPath),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// AuthCodeURL returns the URL the user visits to grant access.
func (s *MastodonService) AuthCodeURL(app *models.Application, authURL, state string) string {
	return s.OAuthConfig(app, authURL).AuthCodeURL(state)
}

// ExchangeCode trades a one-time authorization code for the user's access token.
func (s *MastodonService) ExchangeCode(ctx context.Context, app *models.Application, code string) (string, error) {
	cfg := s.OAuthConfig(app, "")
	token, err := cfg.Exchange(s.oauthContext(ctx), code,
		oauth2.SetAuthURLParam("scope", strings.Join(s.scopes, " ")),
	)
	if err != nil {
		return "", fmt.Errorf("authorization code exchange on %s: %w", app.Domain(), err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("authorization code exchange on %s returned an empty token", app.Domain())
	}
	return token.AccessToken, nil
}

// HomeTimeline fetches up to limit entries of the home timeline of the account owning token.
func (s *MastodonService) HomeTimeline(ctx context.Context, domain, token string, limit int) ([]Status, error) {
	client := oauth2.NewClient(s.oauthContext(ctx), oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	}))

	q := url.Values{"limit": {strconv.Itoa(limit)}}
	endpoint := s.endpoint(domain, homeTimelinePath) + "?" + q.Encode()

	resp, err := NewAPIClient(client, s.api.userAgent).Get(ctx, endpoint, "")
	if err != nil {
		return nil, fmt.Errorf("home timeline on %s: %w", domain, err)
	}
	if !resp.OK() {
		return nil, &StatusError{Method: http.MethodGet, URL: endpoint, StatusCode: resp.StatusCode}
	}

	var statuses []Status
	if err := resp.Decode(&statuses); err != nil {
		return nil, fmt.Errorf("home timeline on %s: %w", domain, err)
	}
	return statuses, nil
}

type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	if req.Header.Get("User-Agent") != "" {
		return base.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", t.userAgent)
	return base.RoundTrip(clone)
}
