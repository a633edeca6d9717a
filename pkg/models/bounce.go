package models

// BounceReason classifies why an emailed action could not be completed.
type BounceReason string

const (
	BounceUnknownUser      BounceReason = "unknown_user"
	BounceProblemPosting   BounceReason = "problem_posting"
	BouncePermissionDenied BounceReason = "permission_denied"
)

// Bounce describes the single reply mail sent back for a failed action.
// ReplyTo, when set, overrides the Reply-To header of the bounce; the
// signature-request flow uses it to carry the freshly minted validation
// address.
type Bounce struct {
	Reason  BounceReason
	Detail  string
	ReplyTo string
}
