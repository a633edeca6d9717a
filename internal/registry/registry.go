package registry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/mixelka/replypost/internal/database"
	"github.com/mixelka/replypost/pkg/models"
)

// Token codes stay lowercase so addresses survive case-folding mail servers
const codeAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

const mintAttempts = 5

var (
	// ErrTokenNotFound is returned when no token matches the local part
	ErrTokenNotFound = errors.New("reply token not found")
	// ErrTokenExpired is returned when the policy TTL has elapsed
	ErrTokenExpired = errors.New("reply token expired")
	// ErrTokenUsed is returned under a single-use policy for a spent token
	ErrTokenUsed = errors.New("reply token already used")
)

// Policy controls how long minted tokens stay valid. The zero value keeps
// tokens valid indefinitely and reusable.
type Policy struct {
	SingleUse bool
	TTL       time.Duration
}

// Registry mints and resolves the opaque reply addresses that carry a forum
// action and its context through a plain email round trip.
type Registry struct {
	db       *database.DB
	domain   string
	codeLen  int
	prefixes []string
	policy   Policy
	logger   *slog.Logger
}

// New creates a registry. prefixes lists the outbound classification
// prefixes (e.g. "welcome-") that Resolve strips before lookup.
func New(db *database.DB, domain string, codeLen int, prefixes []string, policy Policy, logger *slog.Logger) *Registry {
	if codeLen <= 0 {
		codeLen = 16
	}
	return &Registry{
		db:       db,
		domain:   domain,
		codeLen:  codeLen,
		prefixes: prefixes,
		policy:   policy,
		logger:   logger.With("component", "registry"),
	}
}

// Mint creates a token for the given owner and action and returns it with
// the externally visible reply address. Codes are drawn from a space large
// enough that collisions are negligible, and the insert re-checks
// uniqueness anyway.
func (r *Registry) Mint(ctx context.Context, userID int64, action models.Action, contextPost *int64, allowedFrom, prefix string) (*models.ReplyToken, string, error) {
	for attempt := 0; attempt < mintAttempts; attempt++ {
		code, err := generateCode(r.codeLen)
		if err != nil {
			return nil, "", fmt.Errorf("failed to generate token code: %w", err)
		}

		token := &models.ReplyToken{
			Code:          code,
			UserID:        userID,
			Action:        action,
			ContextPostID: contextPost,
			AllowedFrom:   strings.ToLower(strings.TrimSpace(allowedFrom)),
		}

		err = r.db.CreateToken(ctx, token)
		if errors.Is(err, database.ErrAlreadyExists) {
			r.logger.Warn("token code collision, redrawing", "attempt", attempt+1)
			continue
		}
		if err != nil {
			return nil, "", err
		}

		return token, prefix + code + "@" + r.domain, nil
	}
	return nil, "", fmt.Errorf("failed to mint a unique token code after %d attempts", mintAttempts)
}

// Resolve looks up a token by the local part of a reply address. Any known
// outbound prefix is stripped first; the prefix classifies the mail, it is
// not part of the token's identity.
func (r *Registry) Resolve(ctx context.Context, localPart string) (*models.ReplyToken, error) {
	code := strings.ToLower(strings.TrimSpace(localPart))
	for _, prefix := range r.prefixes {
		if strings.HasPrefix(code, prefix) {
			code = strings.TrimPrefix(code, prefix)
			break
		}
	}

	token, err := r.db.GetToken(ctx, code)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}

	if r.policy.SingleUse && token.UsedAt != nil {
		return nil, ErrTokenUsed
	}
	if r.policy.TTL > 0 && time.Since(token.CreatedAt) > r.policy.TTL {
		return nil, ErrTokenExpired
	}

	return token, nil
}

// MarkUsed stamps the token and records the post it produced, the first
// time it produces one.
func (r *Registry) MarkUsed(ctx context.Context, code string, at time.Time, responsePost *int64) error {
	return r.db.MarkTokenUsed(ctx, code, at, responsePost)
}

func generateCode(length int) (string, error) {
	code := make([]byte, length)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		if err != nil {
			return "", err
		}
		code[i] = codeAlphabet[n.Int64()]
	}
	return string(code), nil
}
