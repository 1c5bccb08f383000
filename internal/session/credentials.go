package session

import (
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Credentials is the single configured login. Password may be plain text or
// a bcrypt hash.
type Credentials struct {
	Username string
	Password string
}

func isBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

// Check reports whether username and password match. An unconfigured
// login never matches.
func (c Credentials) Check(username, password string) bool {
	if c.Username == "" || c.Password == "" {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(c.Username)) == 1
	var passOK bool
	if isBcryptHash(c.Password) {
		passOK = bcrypt.CompareHashAndPassword([]byte(c.Password), []byte(password)) == nil
	} else {
		passOK = subtle.ConstantTimeCompare([]byte(password), []byte(c.Password)) == 1
	}
	return userOK && passOK
}
