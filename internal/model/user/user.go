package user

// User identifies an authenticated account.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// LoginRequest is the credential payload for the login endpoint.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the signed token plus the resolved account.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	User        User   `json:"user"`
}
