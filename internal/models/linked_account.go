package models

import "fmt"

// LinkedAccount is a user's access token on one remote server.
//
// (user, domain, token) is unique. A user may hold several tokens for the same domain.
type LinkedAccount struct {
	record
	userID      string
	domain      string
	accessToken string
}

func NewLinkedAccount(userID, domain, accessToken string) *LinkedAccount {
	return &LinkedAccount{record: newRecord(0), userID: userID, domain: domain, accessToken: accessToken}
}

func (l *LinkedAccount) UserID() string      { return l.userID }
func (l *LinkedAccount) Domain() string      { return l.domain }
func (l *LinkedAccount) AccessToken() string { return l.accessToken }

func (l *LinkedAccount) Validate() error {
	switch {
	case l.userID == "":
		return fmt.Errorf("user id is required")
	case l.domain == "":
		return fmt.Errorf("domain is required")
	case l.accessToken == "":
		return fmt.Errorf("access token is required")
	}
	return nil
}
