package stripper

import (
	"log/slog"
	"strings"
)

// EmptySignature is the sentinel returned when the reply-code line was found
// but nothing followed it. It is distinct from "no signature on file yet",
// which callers model as the empty string, and the two must never be
// conflated.
const EmptySignature = "empty signature"

// Stripper removes client quoting and other non-content from reply bodies.
// All methods are pure text-in/text-out; input is expected to already use
// Unix line endings.
type Stripper struct {
	rules  []Rule
	logger *slog.Logger
}

// New creates a Stripper over an ordered rule set
func New(rules []Rule, logger *slog.Logger) *Stripper {
	return &Stripper{
		rules:  rules,
		logger: logger.With("component", "stripper"),
	}
}

// StripClientQuoteSeparator cuts the text at the first reply separator any
// rule matches. When no rule matches it falls back to dropping the last
// three lines and returns matched=false, so callers can tell a clean cut
// from a guess.
func (s *Stripper) StripClientQuoteSeparator(text string) (string, bool) {
	for _, rule := range s.rules {
		if loc := rule.Pattern.FindStringIndex(text); loc != nil {
			return text[:loc[0]], true
		}
	}

	s.logger.Warn("no quote separator matched, dropping last three lines")
	lines := strings.Split(text, "\n")
	if len(lines) <= 3 {
		return "", false
	}
	return strings.Join(lines[:len(lines)-3], "\n"), false
}

// StripTrailingEmptyAndQuotedLines removes trailing blank lines and trailing
// lines beginning with '>' or '|'. Idempotent.
func StripTrailingEmptyAndQuotedLines(text string) string {
	lines := strings.Split(text, "\n")
	for len(lines) > 0 {
		last := strings.TrimSpace(lines[len(lines)-1])
		if last == "" || strings.HasPrefix(last, ">") || strings.HasPrefix(last, "|") {
			lines = lines[:len(lines)-1]
			continue
		}
		break
	}
	return strings.Join(lines, "\n")
}

// StripLeadingEmptyLines removes blank lines from the start of the text.
// Idempotent.
func StripLeadingEmptyLines(text string) string {
	lines := strings.Split(text, "\n")
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	return strings.Join(lines, "\n")
}

// StripTrailingSenderReference drops a trailing line that mentions the
// sender's or the server's address. Some clients leave a "... wrote to
// <addr>" remnant behind after the quote is removed.
func (s *Stripper) StripTrailingSenderReference(text, senderAddress, serverAddress string) string {
	trimmed := strings.TrimRight(text, " \t\n")
	if trimmed == "" {
		return text
	}

	idx := strings.LastIndex(trimmed, "\n")
	last := strings.ToLower(trimmed[idx+1:])
	mentions := (senderAddress != "" && strings.Contains(last, strings.ToLower(senderAddress))) ||
		(serverAddress != "" && strings.Contains(last, strings.ToLower(serverAddress)))
	if !mentions {
		return text
	}
	if idx < 0 {
		return ""
	}
	return trimmed[:idx]
}

// ExtractReplyContent reduces a reply body to only the material the author
// actually wrote. When the outbound message embedded a known separator
// marker, the text is cut at the marker first.
func (s *Stripper) ExtractReplyContent(text, separator string) string {
	if separator != "" {
		if i := strings.Index(text, separator); i >= 0 {
			text = text[:i]
		}
	}
	text = StripTrailingEmptyAndQuotedLines(text)
	text, _ = s.StripClientQuoteSeparator(text)
	text = StripTrailingEmptyAndQuotedLines(text)
	return StripLeadingEmptyLines(text)
}

// ExtractSignature scans the text from the end for the line carrying the
// reply code (the token address quoted from the outbound footer). Everything
// below that line, minus leading quoted and blank lines, is the author's
// signature. Returns found=false when the code never appears; when the
// candidate is empty the EmptySignature sentinel is returned, never "".
func ExtractSignature(text, replyCode string) (string, bool) {
	if replyCode == "" || !strings.Contains(text, replyCode) {
		return "", false
	}

	lines := strings.Split(text, "\n")
	mark := -1
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.Contains(lines[i], replyCode) {
			mark = i
			break
		}
	}

	candidate := lines[mark+1:]
	for len(candidate) > 0 {
		first := strings.TrimSpace(candidate[0])
		if first == "" || strings.HasPrefix(first, ">") {
			candidate = candidate[1:]
			continue
		}
		break
	}

	signature := strings.TrimSpace(strings.Join(candidate, "\n"))
	if signature == "" {
		return EmptySignature, true
	}
	return signature, true
}
