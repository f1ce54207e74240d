// Package domain contains entities without logic, just meta-data
package domain

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// MaxDisplayNameLen bounds a display name in runes.
const MaxDisplayNameLen = 64

var (
	ErrDisplayNameTooLong = errors.New("display name too long")
	ErrDisplayNameEmpty   = errors.New("display name empty")
)

// CurrentUser is the local identity taken from the session descriptor.
type CurrentUser struct {
	UID      UID    `json:"uid"`
	UserName string `json:"userName"`
	IsHost   bool   `json:"isHost"`
}

func NewCurrentUser(d *MediaSessionDescriptor) *CurrentUser {
	return &CurrentUser{UID: d.UID, UserName: d.UserName, IsHost: d.IsHost}
}

// ValidateDisplayName trims the name and checks its bounds.
func ValidateDisplayName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if len(name) == 0 {
		return "", ErrDisplayNameEmpty
	}
	if utf8.RuneCountInString(name) > MaxDisplayNameLen {
		return "", ErrDisplayNameTooLong
	}
	return name, nil
}

// TruncateDisplayName trims the name and cuts it to MaxDisplayNameLen runes.
func TruncateDisplayName(name string) string {
	name = strings.TrimSpace(name)
	n := 0
	for i := range name {
		if n == MaxDisplayNameLen {
			return name[:i]
		}
		n++
	}
	return name
}
