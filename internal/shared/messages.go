package shared

// User-facing messages shown by the web and CLI surfaces.
const (
	MsgUserAlreadyExists   = "User already exists. Please Log in to continue"
	MsgInvalidUsername     = "Invalid user. Please try again."
	MsgInvalidPassword     = "Invalid Password. Please try again."
	MsgUsernameRequired    = "Username is required."
	MsgPasswordRequired    = "Password is required."
	MsgUserDoesNotExist    = "Sorry, the following user actually does not exist in our database:"
	MsgNoContentFound      = "No Mastodon servers exist. Please add one or more servers to view your feed"
	MsgLinkAlreadyExists   = "This particular combination of User and Server already exists"
	MsgLoginTokenError     = "Could not generate valid login token"
	MsgAuthCodeRequired    = "Authorization Token is Required"
	MsgDomainRequired      = "Domain is required"
	MsgStateMismatch       = "Authorization state did not match. Please start again"
	MsgInvalidDeleteRecord = "Invalid record for server and user"
	MsgAuthCodeInvalid     = "User authorization code provided is likely invalid"
	MsgInvalidDomain       = "The desired domain was not a valid mastodon domain. Failed to render redirect url page for domain"
	MsgInvalidJSONResponse = "Server returned a value that cannot be parsed. Server is likely to not be a legitimate server"
	MsgServiceUnavailable  = "Something is wrong. Not sure if it us or Mastodon. Please try again later"
	MsgAllServersFailed    = "None of your servers could be reached. Please try again later"
	MsgServerAdded         = "Server added successfully"
	MsgServersRemoved      = "Servers removed"
	MsgLoginRequired       = "Please log in to continue"
)
