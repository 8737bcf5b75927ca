// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

const (
	MaxConnectionIDLen = 36
	MaxUsernameLen     = 36
)

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
)

// ConnectionID identifies one physical connection. It is never reused.
type ConnectionID string

func NewConnectionID() ConnectionID {
	return ConnectionID(uuid.NewString())
}

// NormalizeUsername trims the display name and checks its bounds.
// Display names are not unique.
func NormalizeUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	if len(username) == 0 {
		return "", ErrUsernameEmpty
	}
	if len(username) > MaxUsernameLen {
		return "", ErrUsernameTooLong
	}
	return username, nil
}
