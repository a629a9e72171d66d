package model

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// User is an authenticated dashboard owner.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Image     string    `json:"image,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Initials returns the upper-cased first letters of the first two words
// of the user's name, or "" for an empty name.
func (u User) Initials() string {
	words := strings.Fields(u.Name)
	if len(words) > 2 {
		words = words[:2]
	}
	var b strings.Builder
	for _, w := range words {
		r, _ := utf8.DecodeRuneInString(w)
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}
