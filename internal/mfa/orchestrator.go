package mfa

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/caronline/vehiclesvc/internal/autherr"
	"github.com/caronline/vehiclesvc/internal/models"
	"github.com/caronline/vehiclesvc/internal/security"
)

// Outcome classifies the terminal state of a challenge.
type Outcome string

const (
	OutcomeAllowed Outcome = "allowed"
	OutcomeDenied  Outcome = "denied"
	OutcomeError   Outcome = "error"
)

// UserLookup resolves the challenge subject back to an account at callback
// time.
type UserLookup interface {
	GetUserByID(ctx context.Context, id uint64) (*models.User, error)
}

// Orchestrator drives the redirect challenge: it parks validated logins in
// the challenge store, hands the client to the provider, and turns the
// callback into a fully-authenticated session token.
type Orchestrator struct {
	store  ChallengeStore
	duo    *DuoClient
	tokens *security.TokenService
	users  UserLookup
	nowFn  func() time.Time
}

// NewOrchestrator wires the challenge store, provider client, token service,
// and user lookup.
func NewOrchestrator(store ChallengeStore, duo *DuoClient, tokens *security.TokenService, users UserLookup) *Orchestrator {
	return &Orchestrator{
		store:  store,
		duo:    duo,
		tokens: tokens,
		users:  users,
		nowFn:  time.Now,
	}
}

// BeginChallenge parks the validated login under a fresh state token and
// returns the provider redirect URL.
func (o *Orchestrator) BeginChallenge(ctx context.Context, userID uint64, email string) (string, error) {
	state := uuid.NewString() + uuid.NewString()
	challenge := PendingChallenge{
		UserID:    userID,
		Email:     email,
		CreatedAt: o.nowFn().UTC(),
	}
	if errPut := o.store.Put(ctx, state, challenge, challengeTTL); errPut != nil {
		return "", fmt.Errorf("mfa: park challenge: %w", errPut)
	}
	redirectURL, errURL := o.duo.AuthURL(state, email)
	if errURL != nil {
		return "", errURL
	}
	return redirectURL, nil
}

// ResolveChallenge consumes the state token and exchanges the provider code
// for a verdict. A missing or expired state fails as ErrChallengeInvalid;
// replay looks identical by design. On allow it mints a session token with
// the completed-MFA claim.
func (o *Orchestrator) ResolveChallenge(ctx context.Context, state, code string) (Outcome, string, error) {
	challenge, found, errTake := o.store.TakeIfPresent(ctx, state)
	if errTake != nil {
		log.WithError(errTake).Error("mfa: challenge store unavailable")
		return OutcomeError, "", autherr.ErrUpstream
	}
	if !found {
		return OutcomeDenied, "", autherr.ErrChallengeInvalid
	}

	result, errExchange := o.duo.Exchange(ctx, code, challenge.Email)
	if errExchange != nil {
		log.WithError(errExchange).Error("mfa: provider exchange failed")
		return OutcomeError, "", autherr.ErrUpstream
	}
	if result != DuoAllow {
		return OutcomeDenied, "", nil
	}

	user, errUser := o.users.GetUserByID(ctx, challenge.UserID)
	if errUser != nil {
		log.WithError(errUser).WithField("user_id", challenge.UserID).Error("mfa: challenge subject vanished")
		return OutcomeError, "", autherr.ErrUpstream
	}

	token, errIssue := o.tokens.Issue(security.SessionClaims{
		UserID:       strconv.FormatUint(user.ID, 10),
		Username:     user.Username,
		Email:        user.Email,
		Role:         user.Role,
		AuthProvider: models.ProviderLocalDuo,
		MFA:          true,
	})
	if errIssue != nil {
		log.WithError(errIssue).Error("mfa: token issuance failed")
		return OutcomeError, "", autherr.ErrUpstream
	}
	return OutcomeAllowed, token, nil
}
