package models

// User is a resource owner that can authenticate with the password grant
type User struct {
	Subject      string         `json:"sub"`
	Username     string         `json:"username"`
	PasswordHash []byte         `json:"-"`
	Enabled      bool           `json:"enabled"`
	Claims       map[string]any `json:"claims,omitempty"`
}
