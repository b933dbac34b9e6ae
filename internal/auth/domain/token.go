package domain

// TokenPair carries the two cookies issued on full authentication: a
// short-lived access token and a long-lived session token.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	SessionToken string `json:"session_token"`
}
