package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/inkpress/inkpress/testing"
)

type apiFixture struct {
	repo     *memRepo
	notifier *recordingNotifier
	router   http.Handler
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	repo := newMemRepo()
	notifier := &recordingNotifier{}
	codec := NewTokenCodec("test-secret", time.Hour)
	service := NewService(repo, codec, notifier, nil, ServiceConfig{})
	handler := NewHandler(nil, service, nil)

	r := chi.NewRouter()
	r.Use(Gate(GateConfig{Codec: codec, Repo: repo}))
	r.Route("/api/v1/auth", handler.MountRoutes)
	return &apiFixture{repo: repo, notifier: notifier, router: r}
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func (f *apiFixture) register(t *testing.T, email, username string) {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email":            email,
		"username":         username,
		"password":         `Str0ng!pass`,
		"password_confirm": `Str0ng!pass`,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (f *apiFixture) registerVerified(t *testing.T, email, username string) {
	t.Helper()
	f.register(t, email, username)
	rec := f.do(t, http.MethodPost, "/api/v1/auth/verify-email", "", map[string]string{
		"token": f.notifier.lastToken,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func (f *apiFixture) login(t *testing.T, email string) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    email,
		"password": `Str0ng!pass`,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	token, _ := decodeBody(t, rec)["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestRegisterEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email":            "writer@example.com",
		"username":         "writer",
		"password":         `Str0ng!pass`,
		"password_confirm": `Str0ng!pass`,
		"first_name":       "First",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Equal(t, "writer@example.com", body["email"])
	assert.NotZero(t, body["user_id"])
	assert.Len(t, f.notifier.verifications, 1)
}

func TestRegisterEndpointValidation(t *testing.T) {
	f := newAPIFixture(t)

	cases := []struct {
		name      string
		payload   map[string]string
		wantField string
	}{
		{
			"mismatched confirmation",
			map[string]string{
				"email": "a@example.com", "username": "writer",
				"password": `Str0ng!pass`, "password_confirm": `Other!pass1`,
			},
			"password_confirm",
		},
		{
			"bad email",
			map[string]string{
				"email": "not-an-email", "username": "writer",
				"password": `Str0ng!pass`, "password_confirm": `Str0ng!pass`,
			},
			"email",
		},
		{
			"password over the bcrypt input limit",
			map[string]string{
				"email": "a@example.com", "username": "writer",
				"password":         "Aa1!" + strings.Repeat("x", 76),
				"password_confirm": "Aa1!" + strings.Repeat("x", 76),
			},
			"password",
		},
		{
			"short username",
			map[string]string{
				"email": "a@example.com", "username": "ab",
				"password": `Str0ng!pass`, "password_confirm": `Str0ng!pass`,
			},
			"username",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/v1/auth/register", "", tc.payload)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, CodeValidationFailed, body["error"])
			fields, ok := body["fields"].(map[string]any)
			require.True(t, ok, rec.Body.String())
			assert.Contains(t, fields, tc.wantField)
		})
	}
}

func TestRegisterEndpointWeakPassword(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email":            "writer@example.com",
		"username":         "writer",
		"password":         `weakpassword`,
		"password_confirm": `weakpassword`,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	fields, ok := body["fields"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, fields["password"], "uppercase")
}

func TestRegisterEndpointConflict(t *testing.T) {
	f := newAPIFixture(t)
	f.register(t, "writer@example.com", "writer")

	rec := f.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email":            "writer@example.com",
		"username":         "other",
		"password":         `Str0ng!pass`,
		"password_confirm": `Str0ng!pass`,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, CodeConflict, body["error"])
}

func TestRegisterEndpointRejectsMalformedJSON(t *testing.T) {
	f := newAPIFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeValidationFailed, decodeBody(t, rec)["error"])
}

func TestLoginEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.registerVerified(t, "writer@example.com", "writer")

	rec := f.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    "writer@example.com",
		"password": `Str0ng!pass`,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.NotEmpty(t, body["token"])
	user, ok := body["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "writer", user["username"])
	assert.Equal(t, true, user["is_email_verified"])
}

func TestLoginEndpointUnverified(t *testing.T) {
	f := newAPIFixture(t)
	f.register(t, "writer@example.com", "writer")

	rec := f.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    "writer@example.com",
		"password": `Str0ng!pass`,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeEmailNotVerified, decodeBody(t, rec)["error"])
}

func TestLoginEndpointBadCredentials(t *testing.T) {
	f := newAPIFixture(t)
	f.registerVerified(t, "writer@example.com", "writer")

	for _, payload := range []map[string]string{
		{"email": "writer@example.com", "password": `Wr0ng!pass`},
		{"email": "nobody@example.com", "password": `Str0ng!pass`},
	} {
		rec := f.do(t, http.MethodPost, "/api/v1/auth/login", "", payload)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, CodeInvalidCredentials, body["error"])
		assert.Equal(t, "Invalid credentials.", body["message"])
	}
}

func TestLogoutEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodPost, "/api/v1/auth/logout", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	f.registerVerified(t, "writer@example.com", "writer")
	token := f.login(t, "writer@example.com")
	rec = f.do(t, http.MethodPost, "/api/v1/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestVerifyEmailEndpointBadToken(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodPost, "/api/v1/auth/verify-email", "", map[string]string{
		"token": "bogus",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeInvalidOrExpiredToken, decodeBody(t, rec)["error"])
}

func TestResendVerificationEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.register(t, "writer@example.com", "writer")

	rec := f.do(t, http.MethodPost, "/api/v1/auth/resend-verification", "", map[string]string{
		"email": "writer@example.com",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, f.notifier.verifications, 2)

	// Unknown address is an explicit 404 here, unlike forgot-password.
	rec = f.do(t, http.MethodPost, "/api/v1/auth/resend-verification", "", map[string]string{
		"email": "nobody@example.com",
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeNotFound, decodeBody(t, rec)["error"])
}

func TestForgotPasswordEndpointNeutralResponse(t *testing.T) {
	f := newAPIFixture(t)
	f.registerVerified(t, "writer@example.com", "writer")

	known := f.do(t, http.MethodPost, "/api/v1/auth/forgot-password", "", map[string]string{
		"email": "writer@example.com",
	})
	unknown := f.do(t, http.MethodPost, "/api/v1/auth/forgot-password", "", map[string]string{
		"email": "nobody@example.com",
	})

	require.Equal(t, http.StatusOK, known.Code)
	require.Equal(t, http.StatusOK, unknown.Code)
	assert.Equal(t, known.Body.String(), unknown.Body.String())
	assert.Len(t, f.notifier.resets, 1)
}

func TestResetPasswordEndpointFlow(t *testing.T) {
	f := newAPIFixture(t)
	f.registerVerified(t, "writer@example.com", "writer")

	rec := f.do(t, http.MethodPost, "/api/v1/auth/forgot-password", "", map[string]string{
		"email": "writer@example.com",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	resetToken := f.notifier.lastToken

	rec = f.do(t, http.MethodPost, "/api/v1/auth/reset-password", "", map[string]string{
		"token":            resetToken,
		"password":         `N3w!passw0rd`,
		"password_confirm": `N3w!passw0rd`,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Replay is rejected.
	rec = f.do(t, http.MethodPost, "/api/v1/auth/reset-password", "", map[string]string{
		"token":            resetToken,
		"password":         `An0ther!pass`,
		"password_confirm": `An0ther!pass`,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeInvalidOrExpiredToken, decodeBody(t, rec)["error"])
}

func TestMeEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.registerVerified(t, "writer@example.com", "writer")
	token := f.login(t, "writer@example.com")

	rec := f.do(t, http.MethodGet, "/api/v1/auth/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	user, ok := decodeBody(t, rec)["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "writer@example.com", user["email"])

	// Same payload behind the profile alias.
	alias := f.do(t, http.MethodGet, "/api/v1/auth/profile", token, nil)
	require.Equal(t, http.StatusOK, alias.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCheckAuthEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.registerVerified(t, "writer@example.com", "writer")
	token := f.login(t, "writer@example.com")

	rec := f.do(t, http.MethodGet, "/api/v1/auth/check-auth", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["authenticated"])
	assert.Equal(t, "writer@example.com", body["email"])

	rec = f.do(t, http.MethodGet, "/api/v1/auth/check-auth", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpdateProfileEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.registerVerified(t, "writer@example.com", "writer")
	token := f.login(t, "writer@example.com")

	rec := f.do(t, http.MethodPut, "/api/v1/auth/profile", token, map[string]string{
		"username":   "renamed",
		"first_name": "New",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	user, ok := decodeBody(t, rec)["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "renamed", user["username"])
	assert.Equal(t, "New", user["first_name"])

	rec = f.do(t, http.MethodPut, "/api/v1/auth/profile", "", map[string]string{
		"username": "renamed",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
