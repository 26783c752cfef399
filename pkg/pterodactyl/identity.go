package pterodactyl

import (
	"strings"
	"unicode"
)

// Username derives the panel username from an email local part, keeping
// ASCII letters and digits only.
func Username(email string) string {
	local := email
	if i := strings.Index(email, "@"); i >= 0 {
		local = email[:i]
	}
	var b strings.Builder
	for _, r := range local {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// SplitName returns first and last name; a single word is used for both.
func SplitName(fullName string) (string, string) {
	parts := strings.Fields(fullName)
	if len(parts) == 0 {
		return "", ""
	}
	first := parts[0]
	if len(parts) == 1 {
		return first, first
	}
	return first, strings.Join(parts[1:], " ")
}

// NewIdentityRequest builds the panel account request for a customer.
func NewIdentityRequest(email, fullName string) IdentityRequest {
	first, last := SplitName(fullName)
	return IdentityRequest{
		Email:     email,
		Username:  Username(email),
		FirstName: first,
		LastName:  last,
	}
}
