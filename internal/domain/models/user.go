package models

// User represents a customer account.
type User struct {
	ID       int64
	Email    string
	Name     string
	PassHash []byte
}
