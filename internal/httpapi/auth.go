package httpapi

import (
	"errors"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/caronline/vehiclesvc/internal/autherr"
	"github.com/caronline/vehiclesvc/internal/config"
	"github.com/caronline/vehiclesvc/internal/googleauth"
	"github.com/caronline/vehiclesvc/internal/identity"
	"github.com/caronline/vehiclesvc/internal/mfa"
	"github.com/caronline/vehiclesvc/internal/models"
	"github.com/caronline/vehiclesvc/internal/ratelimit"
	"github.com/caronline/vehiclesvc/internal/security"
)

const minPasswordLength = 6

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// AuthHandler serves login, registration, and the MFA legs.
type AuthHandler struct {
	users       *identity.Service
	tokens      *security.TokenService
	limiter     *ratelimit.Limiter
	mfa         *mfa.Orchestrator
	totp        *mfa.TOTPService
	google      *googleauth.Service
	duoCfg      config.DuoConfig
	frontendURL string
}

// NewAuthHandler constructs the auth handler.
func NewAuthHandler(
	users *identity.Service,
	tokens *security.TokenService,
	limiter *ratelimit.Limiter,
	orchestrator *mfa.Orchestrator,
	totp *mfa.TOTPService,
	google *googleauth.Service,
	duoCfg config.DuoConfig,
	frontend config.FrontendConfig,
) *AuthHandler {
	return &AuthHandler{
		users:       users,
		tokens:      tokens,
		limiter:     limiter,
		mfa:         orchestrator,
		totp:        totp,
		google:      google,
		duoCfg:      duoCfg,
		frontendURL: frontend.CallbackURL,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	MFA      bool   `json:"mfa"`
}

// Login validates credentials behind the rate limiter. Depending on the
// MFA request and provider configuration it either redirects to the
// challenge or issues a token directly.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if errBind := c.ShouldBindJSON(&req); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}

	ip := clientIP(c)
	user, ok := h.gateAndValidate(c, ip, req.Email, req.Password)
	if !ok {
		return
	}

	if req.MFA && h.duoCfg.Configured() {
		redirectURL, errBegin := h.mfa.BeginChallenge(c.Request.Context(), user.ID, user.Email)
		if errBegin != nil {
			log.WithError(errBegin).Error("login: challenge setup failed")
			c.JSON(http.StatusBadGateway, gin.H{"error": "mfa provider unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"mfaRequired": true, "redirectUrl": redirectURL})
		return
	}

	token, errIssue := h.issueFor(user, models.ProviderLocal)
	if errIssue != nil {
		log.WithError(errIssue).Error("login: token issuance failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue token"})
		return
	}

	response := gin.H{"user": user, "token": token}
	if req.MFA {
		// Provider unconfigured: the factor is simulated, not enforced.
		response["mfa"] = "simulated"
	}
	c.JSON(http.StatusOK, response)
}

type totpLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Code     string `json:"code"`
}

// LoginTOTP validates credentials plus an enrolled authenticator code.
func (h *AuthHandler) LoginTOTP(c *gin.Context) {
	var req totpLoginRequest
	if errBind := c.ShouldBindJSON(&req); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" || strings.TrimSpace(req.Code) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email, password, and code are required"})
		return
	}

	ip := clientIP(c)
	user, ok := h.gateAndValidate(c, ip, req.Email, req.Password)
	if !ok {
		return
	}

	if errVerify := h.totp.VerifyLogin(c.Request.Context(), user.ID, req.Code); errVerify != nil {
		if errors.Is(errVerify, autherr.ErrMFARequired) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no authenticator enrolled"})
			return
		}
		if errors.Is(errVerify, autherr.ErrBadCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": autherr.GenericAuthFailure})
			return
		}
		log.WithError(errVerify).Error("login: totp verification failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "verification failed"})
		return
	}

	token, errIssue := h.issueFor(user, models.ProviderLocal)
	if errIssue != nil {
		log.WithError(errIssue).Error("login: token issuance failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user, "token": token})
}

// gateAndValidate runs the rate limiter and credential validation shared by
// the login variants. It writes the failure response itself and reports
// whether the caller may proceed.
func (h *AuthHandler) gateAndValidate(c *gin.Context, ip, email, password string) (*models.User, bool) {
	decision, errCheck := h.limiter.Check(c.Request.Context(), ip, models.AttemptTypeIP)
	if errCheck != nil {
		log.WithError(errCheck).Error("login: rate limiter unavailable")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "try again later"})
		return nil, false
	}
	if !decision.Allowed {
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":    "too many attempts",
			"waitTime": decision.WaitSeconds(),
		})
		return nil, false
	}

	user, errValidate := h.users.ValidateCredentials(c.Request.Context(), email, password, ip, c.Request.UserAgent())
	if errValidate != nil {
		if errors.Is(errValidate, autherr.ErrNotFound) || errors.Is(errValidate, autherr.ErrBadCredentials) {
			// Same message for unknown user and wrong password.
			c.JSON(http.StatusUnauthorized, gin.H{"error": autherr.GenericAuthFailure})
			return nil, false
		}
		log.WithError(errValidate).Error("login: credential validation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "validation failed"})
		return nil, false
	}

	if errReset := h.limiter.ResetAttempts(c.Request.Context(), ip, models.AttemptTypeIP); errReset != nil {
		log.WithError(errReset).Warn("login: attempt reset failed")
	}
	return user, true
}

// issueFor mints the post-login session token. The completed-MFA claim is
// set because every login path either performed or simulated the factor.
func (h *AuthHandler) issueFor(user *models.User, provider string) (string, error) {
	return h.tokens.Issue(security.SessionClaims{
		UserID:       strconv.FormatUint(user.ID, 10),
		Username:     user.Username,
		Email:        user.Email,
		Role:         user.Role,
		AuthProvider: provider,
		MFA:          true,
	})
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// Register creates a local account.
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if errBind := c.ShouldBindJSON(&req); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Username) == "" || strings.TrimSpace(req.Email) == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username, email, and password are required"})
		return
	}
	if !emailPattern.MatchString(req.Email) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email address"})
		return
	}
	if len(req.Password) < minPasswordLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password must be at least 6 characters"})
		return
	}

	user, errCreate := h.users.CreateUser(c.Request.Context(), req.Username, req.Email, req.Password, req.Role, true)
	if errCreate != nil {
		if errors.Is(errCreate, autherr.ErrConflict) {
			c.JSON(http.StatusConflict, gin.H{"error": "username or email already exists"})
			return
		}
		log.WithError(errCreate).Error("register: create failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": user})
}

// CheckUsername reports whether a username or email is taken.
func (h *AuthHandler) CheckUsername(c *gin.Context) {
	identifier := strings.TrimSpace(c.Param("username"))
	if identifier == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username is required"})
		return
	}
	exists, errExists := h.users.UserExists(c.Request.Context(), identifier)
	if errExists != nil {
		log.WithError(errExists).Error("check username failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"exists": exists})
}

// GetUser returns one sanitized user record.
func (h *AuthHandler) GetUser(c *gin.Context) {
	id, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	user, errGet := h.users.GetUserByID(c.Request.Context(), id)
	if errGet != nil {
		if errors.Is(errGet, autherr.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		log.WithError(errGet).Error("get user failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// DuoCallback is the terminal leg of the MFA redirect. It always answers
// with a redirect to the front end; provider detail never crosses it.
func (h *AuthHandler) DuoCallback(c *gin.Context) {
	state := c.Query("state")
	code := c.Query("duo_code")
	if code == "" {
		code = c.Query("code")
	}
	if state == "" || code == "" {
		h.redirectFront(c, url.Values{"mfa": {"error"}})
		return
	}

	outcome, token, errResolve := h.mfa.ResolveChallenge(c.Request.Context(), state, code)
	switch outcome {
	case mfa.OutcomeAllowed:
		h.redirectFront(c, url.Values{"mfa": {"ok"}, "token": {token}})
	case mfa.OutcomeDenied:
		if errResolve != nil {
			log.WithError(errResolve).Warn("mfa callback: challenge rejected")
		}
		h.redirectFront(c, url.Values{"mfa": {"denied"}})
	default:
		h.redirectFront(c, url.Values{"mfa": {"error"}})
	}
}

func (h *AuthHandler) redirectFront(c *gin.Context, params url.Values) {
	target := h.frontendURL
	if strings.Contains(target, "?") {
		target += "&" + params.Encode()
	} else {
		target += "?" + params.Encode()
	}
	c.Redirect(http.StatusFound, target)
}

// GoogleLogin signs a user in with a verified Google credential.
func (h *AuthHandler) GoogleLogin(c *gin.Context) {
	var req struct {
		Credential string `json:"credential"`
	}
	if errBind := c.ShouldBindJSON(&req); errBind != nil || strings.TrimSpace(req.Credential) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "credential is required"})
		return
	}

	user, isNew, errSignIn := h.google.SignIn(c.Request.Context(), req.Credential, clientIP(c), c.Request.UserAgent())
	if errSignIn != nil {
		if errors.Is(errSignIn, autherr.ErrBadCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": autherr.GenericAuthFailure})
			return
		}
		log.WithError(errSignIn).Error("google login failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "identity provider unavailable"})
		return
	}

	token, errIssue := h.issueFor(user, models.ProviderGoogle)
	if errIssue != nil {
		log.WithError(errIssue).Error("google login: token issuance failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user, "token": token, "isNewUser": isNew})
}

// PrepareTOTP generates an enrollment secret for the caller.
func (h *AuthHandler) PrepareTOTP(c *gin.Context) {
	claims, ok := CurrentClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	secret, uri, errPrepare := h.totp.Prepare(claims.Email)
	if errPrepare != nil {
		log.WithError(errPrepare).Error("totp prepare failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enrollment failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"secret": secret, "provisionUri": uri})
}

// ConfirmTOTP persists the enrollment after the first valid code.
func (h *AuthHandler) ConfirmTOTP(c *gin.Context) {
	claims, ok := CurrentClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	var req struct {
		Secret string `json:"secret"`
		Code   string `json:"code"`
	}
	if errBind := c.ShouldBindJSON(&req); errBind != nil || req.Secret == "" || req.Code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "secret and code are required"})
		return
	}

	userID, errParse := strconv.ParseUint(claims.UserID, 10, 64)
	if errParse != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token subject"})
		return
	}
	if errConfirm := h.totp.Confirm(c.Request.Context(), userID, req.Secret, req.Code); errConfirm != nil {
		if errors.Is(errConfirm, autherr.ErrBadCredentials) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid code"})
			return
		}
		log.WithError(errConfirm).Error("totp confirm failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enrollment failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": true})
}

// DisableTOTP removes the caller's enrolled authenticator.
func (h *AuthHandler) DisableTOTP(c *gin.Context) {
	claims, ok := CurrentClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	userID, errParse := strconv.ParseUint(claims.UserID, 10, 64)
	if errParse != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token subject"})
		return
	}
	if errDisable := h.totp.Disable(c.Request.Context(), userID); errDisable != nil {
		log.WithError(errDisable).Error("totp disable failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "disable failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": false})
}
