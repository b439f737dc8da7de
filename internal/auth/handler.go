package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/inkpress/inkpress/internal/observability"
	"github.com/inkpress/inkpress/internal/platform/httpx"
)

// Handler error codes returned in the JSON envelope.
const (
	CodeValidationFailed      = "validation_failed"
	CodeConflict              = "conflict"
	CodeInvalidCredentials    = "invalid_credentials"
	CodeEmailNotVerified      = "email_not_verified"
	CodeAlreadyVerified       = "already_verified"
	CodeInvalidOrExpiredToken = "invalid_or_expired_token"
	CodeNotFound              = "not_found"
)

// Handler wires the HTTP endpoints of the auth service surface.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	metrics  *observability.Metrics
	validate *validator.Validate
}

// NewHandler constructs a Handler. metrics may be nil.
func NewHandler(logger *slog.Logger, service *Service, metrics *observability.Metrics) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	v := validator.New()
	// Report field errors under their wire names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{logger: logger, service: service, metrics: metrics, validate: v}
}

// MountRoutes registers the auth routes. The authentication gate decides
// which of them require a bearer token; handlers below the gate just read
// the user from the request context.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/register", h.register)
	r.Post("/login", h.login)
	r.Post("/logout", h.logout)
	r.Post("/verify-email", h.verifyEmail)
	r.Post("/resend-verification", h.resendVerification)
	r.Post("/forgot-password", h.forgotPassword)
	r.Post("/reset-password", h.resetPassword)
	r.Get("/me", h.me)
	r.Get("/check-auth", h.checkAuth)
	r.Get("/profile", h.me)
	r.Put("/profile", h.updateProfile)
}

type userResponse struct {
	ID              int64      `json:"id"`
	Email           string     `json:"email"`
	Username        string     `json:"username"`
	FirstName       string     `json:"first_name,omitempty"`
	LastName        string     `json:"last_name,omitempty"`
	IsEmailVerified bool       `json:"is_email_verified"`
	LastLoginAt     *time.Time `json:"last_login_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func newUserResponse(u *User) userResponse {
	return userResponse{
		ID:              u.ID,
		Email:           u.Email,
		Username:        u.Username,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		IsEmailVerified: u.IsEmailVerified,
		LastLoginAt:     u.LastLoginAt,
		CreatedAt:       u.CreatedAt,
	}
}

type registerRequest struct {
	Email           string `json:"email" validate:"required,email,max=254"`
	Username        string `json:"username" validate:"required,min=3,max=30"`
	Password        string `json:"password" validate:"required,min=8,max=72"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
	FirstName       string `json:"first_name" validate:"omitempty,max=30"`
	LastName        string `json:"last_name" validate:"omitempty,max=30"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.bind(w, r, &req) {
		return
	}

	user, err := h.service.Register(r.Context(), RegisterInput{
		Email:     req.Email,
		Username:  req.Username,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.logger.Info("user registered", slog.Int64("user_id", user.ID))
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"user_id": user.ID,
		"email":   user.Email,
		"message": "Registration successful. Check your email to verify your account.",
	})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.bind(w, r, &req) {
		return
	}

	token, user, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.metrics.ObserveLogin(false)
		h.respondError(w, err)
		return
	}

	h.metrics.ObserveLogin(true)
	httpx.JSON(w, http.StatusOK, map[string]any{
		"token": token,
		"user":  newUserResponse(user),
	})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	// Tokens are stateless; logout is an acknowledgement that the client
	// should discard its copy.
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "Logged out."})
}

type verifyEmailRequest struct {
	Token string `json:"token" validate:"required,max=100"`
}

func (h *Handler) verifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if !h.bind(w, r, &req) {
		return
	}

	user, err := h.service.VerifyEmail(r.Context(), req.Token)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.logger.Info("email verified", slog.Int64("user_id", user.ID))
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "Email verified successfully."})
}

type emailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (h *Handler) resendVerification(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !h.bind(w, r, &req) {
		return
	}

	if err := h.service.ResendVerification(r.Context(), req.Email); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "Verification email sent."})
}

func (h *Handler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !h.bind(w, r, &req) {
		return
	}

	if err := h.service.RequestPasswordReset(r.Context(), req.Email); err != nil {
		h.respondError(w, err)
		return
	}
	// Same body whether or not the address is registered.
	httpx.JSON(w, http.StatusOK, map[string]string{
		"message": "If the email is registered, a password reset link has been sent.",
	})
}

type resetPasswordRequest struct {
	Token           string `json:"token" validate:"required,max=100"`
	Password        string `json:"password" validate:"required,min=8,max=72"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !h.bind(w, r, &req) {
		return
	}

	if err := h.service.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "Password has been reset."})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		httpx.Error(w, http.StatusUnauthorized, CodeAuthenticationRequired,
			"Authentication credentials were not provided.")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user": newUserResponse(user)})
}

func (h *Handler) checkAuth(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		httpx.Error(w, http.StatusUnauthorized, CodeAuthenticationRequired,
			"Authentication credentials were not provided.")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"user_id":       user.ID,
		"email":         user.Email,
	})
}

type updateProfileRequest struct {
	Username  *string `json:"username" validate:"omitempty,min=3,max=30"`
	FirstName *string `json:"first_name" validate:"omitempty,max=30"`
	LastName  *string `json:"last_name" validate:"omitempty,max=30"`
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		httpx.Error(w, http.StatusUnauthorized, CodeAuthenticationRequired,
			"Authentication credentials were not provided.")
		return
	}

	var req updateProfileRequest
	if !h.bind(w, r, &req) {
		return
	}

	updated, err := h.service.UpdateProfile(r.Context(), user.ID, ProfileUpdate{
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user": newUserResponse(updated)})
}

// bind decodes and validates the request body, responding on failure.
func (h *Handler) bind(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Error(w, http.StatusBadRequest, CodeValidationFailed, "Request body must be valid JSON.")
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = validationMessage(fe)
			}
			httpx.FieldErrors(w, http.StatusBadRequest, CodeValidationFailed, "Validation failed.", fields)
			return false
		}
		httpx.Error(w, http.StatusBadRequest, CodeValidationFailed, "Validation failed.")
		return false
	}
	return true
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "email":
		return "Enter a valid email address."
	case "min":
		return "Value is too short (minimum " + fe.Param() + ")."
	case "max":
		return "Value is too long (maximum " + fe.Param() + ")."
	case "eqfield":
		return "Passwords do not match."
	default:
		return "Invalid value."
	}
}

// respondError maps service errors onto the HTTP envelope.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var policyErr *PolicyError
	switch {
	case errors.As(err, &policyErr):
		httpx.FieldErrors(w, http.StatusBadRequest, CodeValidationFailed, "Validation failed.",
			map[string]string{"password": policyErr.Reason})
	case errors.Is(err, ErrEmailTaken):
		httpx.FieldErrors(w, http.StatusBadRequest, CodeConflict, "Validation failed.",
			map[string]string{"email": "A user with this email already exists."})
	case errors.Is(err, ErrUsernameTaken):
		httpx.FieldErrors(w, http.StatusBadRequest, CodeConflict, "Validation failed.",
			map[string]string{"username": "A user with this username already exists."})
	case errors.Is(err, ErrInvalidCredentials):
		httpx.Error(w, http.StatusBadRequest, CodeInvalidCredentials, "Invalid credentials.")
	case errors.Is(err, ErrEmailNotVerified):
		httpx.Error(w, http.StatusBadRequest, CodeEmailNotVerified,
			"Email address is not verified. Check your inbox or request a new verification email.")
	case errors.Is(err, ErrAlreadyVerified):
		httpx.Error(w, http.StatusBadRequest, CodeAlreadyVerified, "Email address is already verified.")
	case errors.Is(err, ErrInvalidOrExpiredToken):
		httpx.Error(w, http.StatusBadRequest, CodeInvalidOrExpiredToken, "Invalid or expired token.")
	case errors.Is(err, ErrNotFound):
		httpx.Error(w, http.StatusNotFound, CodeNotFound, "No user found with this email address.")
	case errors.Is(err, ErrInvalidProfile):
		httpx.Error(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
	default:
		h.logger.Error("auth handler error", slog.Any("error", err))
		httpx.Internal(w)
	}
}
