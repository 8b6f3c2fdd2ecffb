package exuberant

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 72

	minUsernameLength = 3
	maxUsernameLength = 20

	maxNameLength = 40
	maxBioLength  = 240
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9_]{3,20}$`)

// normalizeEmail lowercases and trims. Every store key derived from an
// email goes through this first.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// validEmail accepts addr-spec shaped input without attempting full RFC
// 5322 parsing. The mailer is the real arbiter of deliverability.
func validEmail(email string) bool {
	if len(email) < 3 || len(email) > 254 {
		return false
	}
	at := strings.IndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return false
	}
	if strings.IndexByte(email[at+1:], '@') >= 0 {
		return false
	}
	domain := email[at+1:]
	if strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return false
	}
	if !strings.Contains(domain, ".") {
		return false
	}
	return !strings.ContainsAny(email, " \t\r\n")
}

func validPassword(password string) bool {
	return len(password) >= minPasswordLength && len(password) <= maxPasswordLength
}

// validUsername enforces the handle alphabet and forbids consecutive
// underscores.
func validUsername(username string) bool {
	if !usernamePattern.MatchString(username) {
		return false
	}
	return !strings.Contains(username, "__")
}

func validName(name string) bool {
	n := utf8.RuneCountInString(name)
	return n >= 1 && n <= maxNameLength && strings.TrimSpace(name) != ""
}

func validBio(bio string) bool {
	return utf8.RuneCountInString(bio) <= maxBioLength
}
