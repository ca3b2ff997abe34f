package model

// Credential is a tracker login held in memory. It is never persisted in
// plaintext.
type Credential struct {
	Username string
	Password string
}
