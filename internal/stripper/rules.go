package stripper

import "regexp"

// Rule is one client-specific reply separator pattern. Rules are tried in
// order and the first match wins, so the structured header blocks come
// before the looser single-line forms.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
}

// DefaultRules covers the quoting conventions of the mail clients seen in
// practice. The list is immutable once handed to a Stripper.
func DefaultRules() []Rule {
	return []Rule{
		// Outlook desktop: "-----Original Message-----"
		{"outlook-desktop", regexp.MustCompile(`(?im)^\s*-{2,}\s*Original Message\s*-{2,}\s*$`)},
		// BlackBerry: a long underscore divider directly above a From: header
		{"blackberry", regexp.MustCompile(`(?m)^_{6,}[ \t]*\nFrom:[ \t]`)},
		// Outlook web and friends: bare From:/Sent:/To:/Subject: block
		{"outlook-web", regexp.MustCompile(`(?m)^From:[^\n]*\nSent:[^\n]*\nTo:[^\n]*\nSubject:[^\n]*`)},
		// Yahoo: underscore divider on its own line
		{"yahoo", regexp.MustCompile(`(?m)^_{10,}[ \t]*$`)},
		// Gmail: "On <date>, <name> <addr> wrote:", possibly wrapped onto a
		// second line by the composer
		{"gmail", regexp.MustCompile(`(?sm)^On\s.{0,400}?wrote:[ \t]*$`)},
		// KMail
		{"kmail", regexp.MustCompile(`(?m)^On [^\n]{0,200}you wrote:`)},
	}
}
