package stripper_test

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/mixelka/replypost/internal/stripper"
)

func newStripper() *stripper.Stripper {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return stripper.New(stripper.DefaultRules(), logger)
}

func TestStripLeadingEmptyLinesIdempotent(t *testing.T) {
	inputs := []string{
		"\n\n  \nhello\nworld",
		"hello",
		"",
		"\n\n\n",
	}
	for _, in := range inputs {
		once := stripper.StripLeadingEmptyLines(in)
		twice := stripper.StripLeadingEmptyLines(once)
		if once != twice {
			t.Errorf("StripLeadingEmptyLines not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestStripTrailingEmptyAndQuotedLinesIdempotent(t *testing.T) {
	inputs := []string{
		"hello\n\n> quoted\n| piped\n\n",
		"hello",
		"",
		"> only quotes\n> here",
	}
	for _, in := range inputs {
		once := stripper.StripTrailingEmptyAndQuotedLines(in)
		twice := stripper.StripTrailingEmptyAndQuotedLines(once)
		if once != twice {
			t.Errorf("StripTrailingEmptyAndQuotedLines not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestExtractReplyContentGmail(t *testing.T) {
	s := newStripper()
	in := "\n\nthis is my reply!\n\nOn Wed, Oct 31, 2012 at 1:45 AM, <kp@x> wrote:\n\n> ** hi there, thanks for your question\n> please reply above this line"
	got := s.ExtractReplyContent(in, "")
	if got != "this is my reply!" {
		t.Errorf("got %q, want %q", got, "this is my reply!")
	}
}

func TestExtractReplyContentGmailWrappedHeader(t *testing.T) {
	s := newStripper()
	in := "reply text here\n\nOn Wed, Oct 31, 2012 at 1:45 AM, Kate Peterson\n<kate@example.com> wrote:\n\n> original question"
	got := s.ExtractReplyContent(in, "")
	if got != "reply text here" {
		t.Errorf("got %q, want %q", got, "reply text here")
	}
}

func TestExtractReplyContentOutlookDesktop(t *testing.T) {
	s := newStripper()
	in := "here is what I think\n\n-----Original Message-----\nFrom: forum <no-reply@example.com>\nSent: Monday, March 4\nTo: me@example.com\nSubject: new answer"
	got := s.ExtractReplyContent(in, "")
	if got != "here is what I think" {
		t.Errorf("got %q, want %q", got, "here is what I think")
	}
}

func TestExtractReplyContentBlackBerry(t *testing.T) {
	s := newStripper()
	in := "first line of the answer\nsecond line of the answer\n________________________________________\nFrom: forum <no-reply@example.com>\nSent: Monday, March 4\nTo: me@example.com\nSubject: new answer"
	got := s.ExtractReplyContent(in, "")
	want := "first line of the answer\nsecond line of the answer"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExtractReplyContentCustomSeparator(t *testing.T) {
	s := newStripper()
	in := "my answer\n\n==== WRITE ABOVE THIS LINE ====\nquoted original text\nmore quoted text"
	got := s.ExtractReplyContent(in, "==== WRITE ABOVE THIS LINE ====")
	if got != "my answer" {
		t.Errorf("got %q, want %q", got, "my answer")
	}
}

func TestStripClientQuoteSeparatorFallback(t *testing.T) {
	s := newStripper()
	in := "line one\nline two\nline three\nline four\nline five"
	got, matched := s.StripClientQuoteSeparator(in)
	if matched {
		t.Fatalf("expected fallback, got a rule match")
	}
	if got != "line one\nline two" {
		t.Errorf("got %q, want last three lines dropped", got)
	}

	short, matched := s.StripClientQuoteSeparator("one\ntwo")
	if matched || short != "" {
		t.Errorf("short input: got %q matched=%v, want empty fallback", short, matched)
	}
}

func TestStripClientQuoteSeparatorMatchReported(t *testing.T) {
	s := newStripper()
	_, matched := s.StripClientQuoteSeparator("text\nOn Mon, Jan 1, 2024 at 9:00 AM, <a@b> wrote:\n> quote")
	if !matched {
		t.Errorf("expected a rule match to be reported")
	}
}

func TestStripTrailingSenderReference(t *testing.T) {
	s := newStripper()
	in := "the actual content\nsomething was sent to me@example.com"
	got := s.StripTrailingSenderReference(in, "me@example.com", "ask@forum.example.com")
	if got != "the actual content" {
		t.Errorf("got %q, want trailing reference dropped", got)
	}

	unchanged := s.StripTrailingSenderReference("no references here", "me@example.com", "ask@forum.example.com")
	if unchanged != "no references here" {
		t.Errorf("got %q, want input unchanged", unchanged)
	}
}

func TestExtractSignature(t *testing.T) {
	code := "abc123def456"

	sig, found := stripper.ExtractSignature("my reply\n\n> reply above the line with abc123def456@reply.example.com\n\nCheers,\nKate", code)
	if !found {
		t.Fatalf("expected signature to be found")
	}
	if sig != "Cheers,\nKate" {
		t.Errorf("got %q, want %q", sig, "Cheers,\nKate")
	}

	sig, found = stripper.ExtractSignature("my reply\n\n> reply above the line with abc123def456@reply.example.com\n\n> quoted tail\n", code)
	if !found {
		t.Fatalf("expected signature to be found")
	}
	if sig != stripper.EmptySignature {
		t.Errorf("got %q, want the empty-signature sentinel", sig)
	}
	if sig == "" {
		t.Errorf("ExtractSignature must never return the empty string")
	}

	if _, found = stripper.ExtractSignature("no code anywhere", code); found {
		t.Errorf("expected not found when the code is absent")
	}
}

func TestExtractSignatureNeverEmptyString(t *testing.T) {
	code := "zzz999"
	inputs := []string{
		"x " + code,
		"x " + code + "\n",
		"x " + code + "\n\n>\n> ",
		"x " + code + "\nreal signature",
	}
	for _, in := range inputs {
		sig, found := stripper.ExtractSignature(in, code)
		if found && sig == "" {
			t.Errorf("empty string returned for %q", in)
		}
	}
	if !strings.Contains(stripper.EmptySignature, "empty") {
		t.Fatalf("sentinel changed unexpectedly: %q", stripper.EmptySignature)
	}
}
