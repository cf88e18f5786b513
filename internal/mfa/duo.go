package mfa

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/caronline/vehiclesvc/internal/config"
)

const (
	duoExchangeTimeout = 10 * time.Second
	duoRequestExpiry   = 5 * time.Minute

	clientAssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"
)

// DuoResult is the provider's factor-verification verdict.
type DuoResult string

const (
	DuoAllow DuoResult = "allow"
	DuoDeny  DuoResult = "deny"
)

// DuoClient speaks the provider's OIDC-style universal-prompt flow.
// Exchange failures fail closed: no verdict means no token.
type DuoClient struct {
	cfg     config.DuoConfig
	client  *http.Client
	baseURL string
	nowFn   func() time.Time
}

// NewDuoClient constructs a Duo client from the provider credentials.
func NewDuoClient(cfg config.DuoConfig) *DuoClient {
	base := cfg.APIHost
	if base != "" && !strings.HasPrefix(base, "http") {
		base = "https://" + base
	}
	return &DuoClient{
		cfg:     cfg,
		client:  &http.Client{Timeout: duoExchangeTimeout},
		baseURL: strings.TrimRight(base, "/"),
		nowFn:   time.Now,
	}
}

// AuthURL builds the provider redirect for one challenge, binding the state
// token and the user's email as the challenge subject.
func (d *DuoClient) AuthURL(state, email string) (string, error) {
	now := d.nowFn()
	request := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
		"response_type": "code",
		"scope":         "openid",
		"client_id":     d.cfg.ClientID,
		"redirect_uri":  d.cfg.RedirectURL,
		"state":         state,
		"duo_uname":     email,
		"exp":           now.Add(duoRequestExpiry).Unix(),
	})
	signed, errSign := request.SignedString([]byte(d.cfg.ClientSecret))
	if errSign != nil {
		return "", fmt.Errorf("mfa: sign duo request: %w", errSign)
	}

	query := url.Values{}
	query.Set("response_type", "code")
	query.Set("client_id", d.cfg.ClientID)
	query.Set("redirect_uri", d.cfg.RedirectURL)
	query.Set("state", state)
	query.Set("request", signed)
	return d.baseURL + "/oauth/v1/authorize?" + query.Encode(), nil
}

// idToken is the subset of the provider's token-endpoint response we read.
type idToken struct {
	PreferredUsername string `json:"preferred_username"`
	AuthResult        struct {
		Status string `json:"status"`
	} `json:"auth_result"`
	jwt.RegisteredClaims
}

// Exchange trades the callback code for a verdict scoped to the pending
// email. Anything other than an explicit allow is a denial.
func (d *DuoClient) Exchange(ctx context.Context, code, email string) (DuoResult, error) {
	tokenURL := d.baseURL + "/oauth/v1/token"
	now := d.nowFn()

	assertion := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
		"iss": d.cfg.ClientID,
		"sub": d.cfg.ClientID,
		"aud": tokenURL,
		"jti": uuid.NewString(),
		"iat": now.Unix(),
		"exp": now.Add(duoRequestExpiry).Unix(),
	})
	signed, errSign := assertion.SignedString([]byte(d.cfg.ClientSecret))
	if errSign != nil {
		return "", fmt.Errorf("mfa: sign client assertion: %w", errSign)
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", d.cfg.RedirectURL)
	form.Set("client_assertion_type", clientAssertionType)
	form.Set("client_assertion", signed)

	req, errReq := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if errReq != nil {
		return "", fmt.Errorf("mfa: build exchange request: %w", errReq)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, errDo := d.client.Do(req)
	if errDo != nil {
		return "", fmt.Errorf("mfa: duo exchange: %w", errDo)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("mfa: duo exchange status %d", resp.StatusCode)
	}

	var body struct {
		IDToken string `json:"id_token"`
	}
	if errDecode := json.NewDecoder(resp.Body).Decode(&body); errDecode != nil {
		return "", fmt.Errorf("mfa: decode exchange response: %w", errDecode)
	}

	var claims idToken
	_, errParse := jwt.ParseWithClaims(body.IDToken, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(d.cfg.ClientSecret), nil
	}, jwt.WithTimeFunc(d.nowFn))
	if errParse != nil {
		return "", fmt.Errorf("mfa: verify id token: %w", errParse)
	}

	if claims.PreferredUsername != "" && !strings.EqualFold(claims.PreferredUsername, email) {
		return DuoDeny, nil
	}
	if claims.AuthResult.Status == string(DuoAllow) {
		return DuoAllow, nil
	}
	return DuoDeny, nil
}
