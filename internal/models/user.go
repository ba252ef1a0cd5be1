package models

// AdminUser is the operator allowed to use the log administration API.
// Credentials come from configuration; there is no user table.
type AdminUser struct {
	Username     string `json:"username"`
	PasswordHash string `json:"-"` // bcrypt hash, never serialized
}
