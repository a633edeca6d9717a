package formatter

import (
	"fmt"
	"strings"

	"github.com/mixelka/replypost/pkg/models"
)

// BounceFormatter renders the bodies of the reply mails sent back when an
// emailed action could not be completed.
type BounceFormatter struct {
	siteName     string
	registerURL  string
	tagsRequired bool
}

// NewBounceFormatter creates a new bounce formatter
func NewBounceFormatter(siteName, registerURL string, tagsRequired bool) *BounceFormatter {
	return &BounceFormatter{
		siteName:     siteName,
		registerURL:  registerURL,
		tagsRequired: tagsRequired,
	}
}

// Subject returns the reply subject for a bounce
func (f *BounceFormatter) Subject(originalSubject string) string {
	return "Re: " + originalSubject
}

// Body selects the bounce body for the given reason. The signature-request
// special case is recognized by a ReplyTo override carrying the freshly
// minted validation address.
func (f *BounceFormatter) Body(b models.Bounce) string {
	switch b.Reason {
	case models.BounceUnknownUser:
		return f.unknownUser()
	case models.BouncePermissionDenied:
		if b.ReplyTo != "" {
			return f.signatureRequest(b.ReplyTo)
		}
		return f.permissionDenied()
	default:
		return f.problemPosting(b.Detail)
	}
}

func (f *BounceFormatter) unknownUser() string {
	return fmt.Sprintf(`Sorry, we could not match your email address to any account on %s.

Posting by email only works for registered users. You can create an account here:

%s

After registering, send your message again from the same address.`,
		f.siteName, f.registerURL)
}

func (f *BounceFormatter) problemPosting(detail string) string {
	var sb strings.Builder
	sb.WriteString("Sorry, your message could not be posted.\n")
	if detail != "" {
		sb.WriteString("\n" + detail + "\n")
	}
	sb.WriteString(`
To post by email, please check the following:

1. Reply directly to a notification from ` + f.siteName + `, without changing the To address.
2. Write your text above any quoted material.
3. To ask a new question, put the title in the subject line.`)
	if f.tagsRequired {
		sb.WriteString(`

Note: the subject of a new question must start with tags in square brackets,
separated by semicolons or commas, for example: [tag1; tag2] How do I ...?`)
	}
	return sb.String()
}

func (f *BounceFormatter) permissionDenied() string {
	return fmt.Sprintf(`Sorry, your account on %s does not yet have enough karma to post by email.

Participate on the site a little longer and try again.`, f.siteName)
}

func (f *BounceFormatter) signatureRequest(validateAddress string) string {
	return fmt.Sprintf(`Welcome! Before we can post for you by email, we need to confirm your
address and learn your email signature, so we can remove it from your posts.

Please reply to this message. Write anything you like (or nothing at all)
above the following line, and leave your usual signature below your text:

%s

Your message itself will not be published.`, validateAddress)
}
