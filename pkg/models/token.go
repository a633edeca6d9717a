package models

import "time"

// Action is the forum operation a reply token authorizes.
type Action string

const (
	ActionPostAnswer          Action = "post_answer"
	ActionPostComment         Action = "post_comment"
	ActionReplaceContent      Action = "replace_content"
	ActionAppendContent       Action = "append_content"
	ActionAutoAnswerOrComment Action = "auto_answer_or_comment"
	ActionValidateEmail       Action = "validate_email"
)

// ReplyToken maps an opaque reply-address local part to a forum action and
// its context. The address is the entire session state: whoever replies to
// it needs no web login. Action and ContextPostID are fixed at mint time;
// only ResponsePostID and UsedAt are ever updated.
type ReplyToken struct {
	Code           string     `db:"code"`
	UserID         int64      `db:"user_id"`
	Action         Action     `db:"action"`
	ContextPostID  *int64     `db:"context_post_id"`
	ResponsePostID *int64     `db:"response_post_id"`
	AllowedFrom    string     `db:"allowed_from"`
	UsedAt         *time.Time `db:"used_at"`
	CreatedAt      time.Time  `db:"created_at"`
}
