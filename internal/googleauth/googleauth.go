// Package googleauth signs users in with a verified Google identity.
// The provider is opaque: a credential goes in, a verified profile comes
// out, and the identity service decides whether to link or create.
package googleauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/caronline/vehiclesvc/internal/autherr"
	"github.com/caronline/vehiclesvc/internal/config"
	"github.com/caronline/vehiclesvc/internal/identity"
	"github.com/caronline/vehiclesvc/internal/models"
)

const (
	defaultTokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"
	verifyTimeout       = 5 * time.Second
)

// ProfileVerifier turns a provider credential into a verified profile.
type ProfileVerifier interface {
	Verify(ctx context.Context, credential string) (identity.ExternalProfile, error)
}

// TokenInfoVerifier verifies a Google ID token against the tokeninfo
// endpoint and checks the audience.
type TokenInfoVerifier struct {
	cfg    config.GoogleConfig
	client *http.Client
}

// NewTokenInfoVerifier constructs a verifier for the configured client ID.
func NewTokenInfoVerifier(cfg config.GoogleConfig) *TokenInfoVerifier {
	return &TokenInfoVerifier{
		cfg:    cfg,
		client: &http.Client{Timeout: verifyTimeout},
	}
}

// tokenInfo is the subset of the endpoint's response we read.
type tokenInfo struct {
	Aud           string `json:"aud"`
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified string `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	Locale        string `json:"locale"`
}

// Verify checks the credential and returns the verified profile. A token
// for a different audience or an unverified email is invalid.
func (v *TokenInfoVerifier) Verify(ctx context.Context, credential string) (identity.ExternalProfile, error) {
	endpoint := v.cfg.TokenInfoURL
	if endpoint == "" {
		endpoint = defaultTokenInfoURL
	}
	target := endpoint + "?id_token=" + url.QueryEscape(credential)

	req, errReq := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if errReq != nil {
		return identity.ExternalProfile{}, fmt.Errorf("googleauth: build request: %w", errReq)
	}
	resp, errDo := v.client.Do(req)
	if errDo != nil {
		return identity.ExternalProfile{}, fmt.Errorf("googleauth: %w: %w", autherr.ErrUpstream, errDo)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return identity.ExternalProfile{}, autherr.ErrBadCredentials
	}

	var info tokenInfo
	if errDecode := json.NewDecoder(resp.Body).Decode(&info); errDecode != nil {
		return identity.ExternalProfile{}, fmt.Errorf("googleauth: decode tokeninfo: %w", errDecode)
	}
	if info.Aud != v.cfg.ClientID || info.Sub == "" || info.EmailVerified != "true" {
		return identity.ExternalProfile{}, autherr.ErrBadCredentials
	}

	return identity.ExternalProfile{
		ProviderID: info.Sub,
		Email:      info.Email,
		Name:       info.Name,
		Avatar:     info.Picture,
		Locale:     info.Locale,
	}, nil
}

// Service resolves a Google credential to a local account.
type Service struct {
	verifier ProfileVerifier
	users    *identity.Service
}

// NewService wires the verifier and the identity service.
func NewService(verifier ProfileVerifier, users *identity.Service) *Service {
	return &Service{verifier: verifier, users: users}
}

// SignIn verifies the credential and links or creates the local account.
func (s *Service) SignIn(ctx context.Context, credential, ip, userAgent string) (*models.User, bool, error) {
	profile, errVerify := s.verifier.Verify(ctx, credential)
	if errVerify != nil {
		s.users.RecordFailure(ctx, "google", "google credential rejected", models.ProviderGoogle, ip, userAgent)
		return nil, false, errVerify
	}
	return s.users.LinkOrCreateFromExternalProfile(ctx, profile, ip, userAgent)
}
