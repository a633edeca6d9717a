package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mixelka/replypost/internal/formatter"
	"github.com/mixelka/replypost/internal/parser"
	"github.com/mixelka/replypost/internal/stripper"
	"github.com/mixelka/replypost/pkg/models"
)

// User is the forum account view this gateway needs.
type User struct {
	ID             int64
	Email          string
	EmailValidated bool
	// EmailSignature is empty until a signature has been confirmed;
	// stripper.EmptySignature marks a user confirmed to sign with nothing.
	EmailSignature string
}

var (
	// ErrUnknownUser means no account matches the sender address
	ErrUnknownUser = errors.New("no account for sender address")
	// ErrAmbiguousUser means more than one account shares the address
	ErrAmbiguousUser = errors.New("multiple accounts share sender address")
)

// UserDirectory resolves and updates forum accounts.
type UserDirectory interface {
	ByEmail(ctx context.Context, address string) (*User, error)
	SetSignature(ctx context.Context, userID int64, signature string) error
	MarkEmailValidated(ctx context.Context, userID int64) error
}

// Forum performs the actual content mutations.
type Forum interface {
	PostQuestion(ctx context.Context, userID int64, title string, tags []string, body string) (int64, error)
	PostAnswer(ctx context.Context, userID, questionID int64, body string) (int64, error)
	PostComment(ctx context.Context, userID, parentID int64, body string) (int64, error)
	ReplaceContent(ctx context.Context, userID, postID int64, body string) error
	AppendContent(ctx context.Context, userID, postID int64, body string) error
	CanPostByEmail(ctx context.Context, userID int64) (bool, error)
	PostType(ctx context.Context, postID int64) (string, error)
}

// TokenRegistry is the reply-address registry surface the orchestrator uses.
type TokenRegistry interface {
	Mint(ctx context.Context, userID int64, action models.Action, contextPost *int64, allowedFrom, prefix string) (*models.ReplyToken, string, error)
	Resolve(ctx context.Context, localPart string) (*models.ReplyToken, error)
	MarkUsed(ctx context.Context, code string, at time.Time, responsePost *int64) error
}

// Mailer sends outbound mail.
type Mailer interface {
	Send(ctx context.Context, to, replyTo, subject, body string) error
}

// Outcome is the terminal state for one inbound message: either the action
// was performed (Posted; PostID may be 0 for email validations) or a bounce
// was sent (Bounce set).
type Outcome struct {
	Posted bool
	PostID int64
	Bounce *models.Bounce
}

// Deps collects the orchestrator's collaborators.
type Deps struct {
	Users         UserDirectory
	Forum         Forum
	Registry      TokenRegistry
	Parts         *parser.PartProcessor
	Mailer        Mailer
	Bounces       *formatter.BounceFormatter
	IntakeAddress string
	TagsRequired  bool
	Logger        *slog.Logger
}

// Orchestrator drives one inbound message through sender resolution, token
// decoding, validation, signature bookkeeping and the final forum mutation.
type Orchestrator struct {
	users        UserDirectory
	forum        Forum
	registry     TokenRegistry
	parts        *parser.PartProcessor
	mailer       Mailer
	bounces      *formatter.BounceFormatter
	intakeLocal  string
	tagsRequired bool
	logger       *slog.Logger
	now          func() time.Time
}

// New creates an orchestrator
func New(deps Deps) *Orchestrator {
	return &Orchestrator{
		users:        deps.Users,
		forum:        deps.Forum,
		registry:     deps.Registry,
		parts:        deps.Parts,
		mailer:       deps.Mailer,
		bounces:      deps.Bounces,
		intakeLocal:  localPart(deps.IntakeAddress),
		tagsRequired: deps.TagsRequired,
		logger:       deps.Logger.With("component", "orchestrator"),
		now:          time.Now,
	}
}

// Process drives one inbound message to a terminal state. Every expected
// failure is answered with exactly one bounce email and reported in the
// Outcome; Process itself never returns an error for them.
func (o *Orchestrator) Process(ctx context.Context, msg *models.IncomingMessage) Outcome {
	outcome := o.run(ctx, msg)
	if outcome.Bounce != nil {
		o.sendBounce(ctx, msg, outcome.Bounce)
	}
	return outcome
}

func (o *Orchestrator) run(ctx context.Context, msg *models.IncomingMessage) (outcome Outcome) {
	// One malformed message must never take down the intake worker:
	// anything unexpected collapses into a ProblemPosting bounce.
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("panic while processing message", "uid", msg.UID, "panic", r)
			outcome = bounced(models.BounceProblemPosting, "")
		}
	}()

	sender := strings.ToLower(strings.TrimSpace(msg.FromAddress))
	if sender == "" {
		return bounced(models.BounceUnknownUser, "")
	}

	user, err := o.users.ByEmail(ctx, sender)
	switch {
	case errors.Is(err, ErrUnknownUser):
		o.logger.Info("unknown sender", "from", sender)
		return bounced(models.BounceUnknownUser, "")
	case errors.Is(err, ErrAmbiguousUser):
		o.logger.Info("ambiguous sender", "from", sender)
		return bounced(models.BounceProblemPosting, "More than one account uses this email address.")
	case err != nil:
		o.logger.Error("user lookup failed", "from", sender, "error", err)
		return bounced(models.BounceProblemPosting, "")
	}

	// The destination address is the entire session state: either a reply
	// token, or the generic intake address for brand-new questions.
	var token *models.ReplyToken
	var form *QuestionForm
	local := localPart(msg.ToAddress)
	if strings.EqualFold(local, o.intakeLocal) {
		form, err = ParseQuestionSubject(msg.Subject, o.tagsRequired)
		if err != nil {
			return bounced(models.BounceProblemPosting, capitalize(err.Error())+".")
		}
	} else {
		token, err = o.registry.Resolve(ctx, local)
		if err != nil {
			o.logger.Info("could not resolve reply address", "local_part", local, "error", err)
			return bounced(models.BounceProblemPosting, "")
		}
		// A token is only valid from the address it was sent to
		if token.AllowedFrom != "" && token.AllowedFrom != sender {
			o.logger.Warn("reply token used by unexpected sender",
				"token_owner", token.UserID, "allowed", token.AllowedFrom, "from", sender)
			return bounced(models.BounceProblemPosting, "")
		}
		if token.UserID != user.ID {
			o.logger.Warn("reply token owner mismatch", "token_owner", token.UserID, "user", user.ID)
			return bounced(models.BounceProblemPosting, "")
		}
	}

	allowed, err := o.forum.CanPostByEmail(ctx, user.ID)
	if err != nil {
		o.logger.Error("permission check failed", "user", user.ID, "error", err)
		return bounced(models.BounceProblemPosting, "")
	}
	if !allowed {
		return bounced(models.BouncePermissionDenied, "")
	}

	replyCode := ""
	if token != nil {
		replyCode = token.Code
	}
	content, err := o.parts.Process(ctx, msg.Parts, replyCode, sender)
	if err != nil {
		o.logger.Error("failed to process message parts", "uid", msg.UID, "error", err)
		return bounced(models.BounceProblemPosting, "")
	}

	if token != nil && token.Action == models.ActionValidateEmail {
		return o.completeValidation(ctx, user, token, content)
	}

	body, ok := signatureStripped(user, content.Body)
	if !ok {
		return o.requestSignature(ctx, user, sender)
	}

	return o.mutate(ctx, user, token, form, body)
}

// signatureStripped removes the user's stored signature from the body when
// it is still a literal suffix. ok is false when the action may not proceed:
// the address is unvalidated, no signature is on file, or the stored
// signature no longer appears in the mail.
func signatureStripped(user *User, body string) (string, bool) {
	stored := user.EmailSignature
	stripped := body
	if stored != "" && stored != stripper.EmptySignature {
		trimmed := strings.TrimRight(body, " \t\n")
		if strings.HasSuffix(trimmed, stored) {
			stripped = strings.TrimRight(strings.TrimSuffix(trimmed, stored), " \t\n")
		}
	}

	if !user.EmailValidated || stored == "" {
		return stripped, false
	}
	if stored != stripper.EmptySignature && stripped == body {
		// Signature changed since it was recorded; re-confirm it
		return stripped, false
	}
	return stripped, true
}

// requestSignature mints a fresh validation address and bounces with the
// instructions mail. This shares the PermissionDenied channel: the action
// cannot complete until the signature is confirmed.
func (o *Orchestrator) requestSignature(ctx context.Context, user *User, sender string) Outcome {
	_, addr, err := o.registry.Mint(ctx, user.ID, models.ActionValidateEmail, nil, sender, "welcome-")
	if err != nil {
		o.logger.Error("failed to mint validation token", "user", user.ID, "error", err)
		return bounced(models.BounceProblemPosting, "")
	}
	o.logger.Info("requesting signature confirmation", "user", user.ID, "address", addr)
	return Outcome{Bounce: &models.Bounce{Reason: models.BouncePermissionDenied, ReplyTo: addr}}
}

// completeValidation handles a reply to a welcome/validation address: it
// records the extracted signature (or the empty-signature sentinel) and
// marks the sender's email as confirmed.
func (o *Orchestrator) completeValidation(ctx context.Context, user *User, token *models.ReplyToken, content *models.ParsedContent) Outcome {
	if content.Signature == nil {
		return bounced(models.BounceProblemPosting,
			"We could not find the confirmation address in your reply. Please reply to the welcome message without deleting the quoted text.")
	}

	if err := o.users.SetSignature(ctx, user.ID, *content.Signature); err != nil {
		o.logger.Error("failed to store signature", "user", user.ID, "error", err)
		return bounced(models.BounceProblemPosting, "")
	}
	if err := o.users.MarkEmailValidated(ctx, user.ID); err != nil {
		o.logger.Error("failed to mark email validated", "user", user.ID, "error", err)
		return bounced(models.BounceProblemPosting, "")
	}
	if err := o.registry.MarkUsed(ctx, token.Code, o.now(), nil); err != nil {
		o.logger.Error("failed to mark token used", "code", token.Code, "error", err)
	}

	if err := o.mailer.Send(ctx, user.Email, "", "Your email address is confirmed",
		"Thank you! Your email address is confirmed and your signature is on file.\nYou can now post by replying to our notifications."); err != nil {
		o.logger.Error("failed to send confirmation mail", "user", user.ID, "error", err)
	}

	o.logger.Info("email validated", "user", user.ID)
	return Outcome{Posted: true}
}

// mutate performs the forum operation the decoded destination calls for.
func (o *Orchestrator) mutate(ctx context.Context, user *User, token *models.ReplyToken, form *QuestionForm, body string) Outcome {
	if token == nil {
		postID, err := o.forum.PostQuestion(ctx, user.ID, form.Title, form.Tags, body)
		if err != nil {
			o.logger.Error("failed to post question", "user", user.ID, "error", err)
			return bounced(models.BounceProblemPosting, "")
		}
		o.logger.Info("question posted by email", "user", user.ID, "post", postID)
		return Outcome{Posted: true, PostID: postID}
	}

	if token.ContextPostID == nil {
		o.logger.Error("token has no context post", "code", token.Code, "action", token.Action)
		return bounced(models.BounceProblemPosting, "")
	}
	contextPost := *token.ContextPostID

	var postID int64
	var err error
	switch token.Action {
	case models.ActionPostAnswer:
		postID, err = o.forum.PostAnswer(ctx, user.ID, contextPost, body)
	case models.ActionPostComment:
		postID, err = o.forum.PostComment(ctx, user.ID, contextPost, body)
	case models.ActionReplaceContent:
		postID = contextPost
		err = o.forum.ReplaceContent(ctx, user.ID, contextPost, body)
	case models.ActionAppendContent:
		postID = contextPost
		err = o.forum.AppendContent(ctx, user.ID, contextPost, body)
	case models.ActionAutoAnswerOrComment:
		postID, err = o.autoAnswerOrComment(ctx, user, token, contextPost, body)
	default:
		err = fmt.Errorf("unsupported action %q", token.Action)
	}
	if err != nil {
		o.logger.Error("forum mutation failed", "user", user.ID, "action", token.Action, "error", err)
		return bounced(models.BounceProblemPosting, "")
	}

	var responsePost *int64
	switch token.Action {
	case models.ActionPostAnswer, models.ActionPostComment, models.ActionAutoAnswerOrComment:
		responsePost = &postID
	}
	if err := o.registry.MarkUsed(ctx, token.Code, o.now(), responsePost); err != nil {
		// The post is already made; only log
		o.logger.Error("failed to mark token used", "code", token.Code, "error", err)
	}

	o.logger.Info("posted by email", "user", user.ID, "action", token.Action, "post", postID)
	return Outcome{Posted: true, PostID: postID}
}

// autoAnswerOrComment answers a question or comments on anything else. A
// second reply to the same token appends to the post the first one created.
func (o *Orchestrator) autoAnswerOrComment(ctx context.Context, user *User, token *models.ReplyToken, contextPost int64, body string) (int64, error) {
	if token.ResponsePostID != nil {
		if err := o.forum.AppendContent(ctx, user.ID, *token.ResponsePostID, body); err != nil {
			return 0, err
		}
		return *token.ResponsePostID, nil
	}

	kind, err := o.forum.PostType(ctx, contextPost)
	if err != nil {
		return 0, err
	}
	if kind == "question" {
		return o.forum.PostAnswer(ctx, user.ID, contextPost, body)
	}
	return o.forum.PostComment(ctx, user.ID, contextPost, body)
}

func (o *Orchestrator) sendBounce(ctx context.Context, msg *models.IncomingMessage, b *models.Bounce) {
	subject := o.bounces.Subject(msg.Subject)
	body := o.bounces.Body(*b)
	if err := o.mailer.Send(ctx, msg.FromAddress, b.ReplyTo, subject, body); err != nil {
		o.logger.Error("failed to send bounce", "to", msg.FromAddress, "reason", b.Reason, "error", err)
		return
	}
	o.logger.Info("bounce sent", "to", msg.FromAddress, "reason", b.Reason)
}

func bounced(reason models.BounceReason, detail string) Outcome {
	return Outcome{Bounce: &models.Bounce{Reason: reason, Detail: detail}}
}

func localPart(address string) string {
	address = strings.TrimSpace(address)
	if i := strings.Index(address, "@"); i >= 0 {
		return strings.ToLower(address[:i])
	}
	return strings.ToLower(address)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
