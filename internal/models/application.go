package models

import "fmt"

// Application is the client this service registered with one remote server.
//
// There is at most one per domain. Rows are immutable once stored.
type Application struct {
	record
	domain       string
	clientID     string
	clientSecret string
	accessToken  string
	redirectURI  string
}

// NewApplication builds an [Application] from the registration and client-credentials responses.
func NewApplication(domain, clientID, clientSecret, accessToken, redirectURI string) *Application {
	return &Application{
		record:       newRecord(0),
		domain:       domain,
		clientID:     clientID,
		clientSecret: clientSecret,
		accessToken:  accessToken,
		redirectURI:  redirectURI,
	}
}

func (a *Application) Domain() string       { return a.domain }
func (a *Application) ClientID() string     { return a.clientID }
func (a *Application) ClientSecret() string { return a.clientSecret }

// AccessToken is the app-level bot token obtained with the client-credentials grant.
func (a *Application) AccessToken() string { return a.accessToken }
func (a *Application) RedirectURI() string { return a.redirectURI }

func (a *Application) Validate() error {
	switch {
	case a.domain == "":
		return fmt.Errorf("domain is required")
	case a.clientID == "" || a.clientSecret == "":
		return fmt.Errorf("client credentials are required for %s", a.domain)
	case a.accessToken == "":
		return fmt.Errorf("app access token is required for %s", a.domain)
	case a.redirectURI == "":
		return fmt.Errorf("redirect uri is required for %s", a.domain)
	}
	return nil
}
