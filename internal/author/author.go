// Package author turns free-text feed author strings into mailboxes.
package author

import (
	"net/mail"
	"regexp"
	"strings"
)

var (
	// address followed by a parenthesized display name, e.g. "jo@example.com (Jo)"
	addressAndName = regexp.MustCompile(`([[:alnum:]_%+\-.]+@[[:alnum:]_%+\-]+(?:\.[[:alnum:]_%+\-]+)+) \(([^)]*)\)`)
	badCharacters  = regexp.MustCompile(`[^[:alnum:].]`)
)

// separators cut an author string; the text left of the first one is kept.
var separators = []string{"|", ":", "-", "<", ">"}

// Sanitize derives a display name and a valid address from a raw author
// string. Generated addresses live in domain.
func Sanitize(raw, domain string) (name, address string) {
	if m := addressAndName.FindStringSubmatch(raw); m != nil {
		return m[2], m[1]
	}

	name = trimToSeparators(raw)
	if name == "" {
		name = domain
	}
	local := badCharacters.ReplaceAllString(strings.ToLower(name), "_")
	return name, local + "@" + domain
}

// Mailbox formats the sanitized author as an RFC 5322 mailbox.
func Mailbox(raw, domain string) string {
	name, address := Sanitize(raw, domain)
	return (&mail.Address{Name: name, Address: address}).String()
}

// Mailboxes sanitizes every author of a message.
func Mailboxes(authors []string, domain string) []string {
	out := make([]string, 0, len(authors))
	for _, a := range authors {
		out = append(out, Mailbox(a, domain))
	}
	return out
}

func trimToSeparators(text string) string {
	remaining := text
	for _, sep := range separators {
		if i := strings.Index(remaining, sep); i >= 0 {
			remaining = remaining[:i]
		}
		remaining = strings.TrimSpace(remaining)
	}
	return remaining
}
