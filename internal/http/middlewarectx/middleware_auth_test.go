package middlewarectx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/ocr-gateway/internal/models"
	credential "github.com/magabrotheeeer/ocr-gateway/internal/services/credential"
)

// Мок для Validator
type ValidatorMock struct {
	mock.Mock
}

func (m *ValidatorMock) Validate(token string) (*credential.Claims, error) {
	args := m.Called(token)
	claims, _ := args.Get(0).(*credential.Claims)
	return claims, args.Error(1)
}

func TestJWTMiddleware(t *testing.T) {
	claims := &credential.Claims{UserUID: "uid-1", Email: "a@x.com", Plan: models.PlanPro}

	tests := []struct {
		name           string
		authHeader     string
		mockClaims     *credential.Claims
		mockErr        error
		wantStatusCode int
		wantCalled     bool
		wantBody       string
	}{
		{
			name:           "missing Authorization header",
			wantStatusCode: http.StatusUnauthorized,
			wantBody:       "missing or invalid authorization header",
		},
		{
			name:           "invalid Authorization header prefix",
			authHeader:     "Basic sometoken",
			wantStatusCode: http.StatusUnauthorized,
			wantBody:       "missing or invalid authorization header",
		},
		{
			name:           "empty bearer",
			authHeader:     "Bearer  ",
			wantStatusCode: http.StatusUnauthorized,
			wantBody:       "missing or invalid authorization header",
		},
		{
			name:           "forged token",
			authHeader:     "Bearer forged",
			mockErr:        credential.ErrInvalid,
			wantStatusCode: http.StatusUnauthorized,
			wantBody:       "invalid token",
		},
		{
			name:           "expired token",
			authHeader:     "Bearer old",
			mockErr:        credential.ErrExpired,
			wantStatusCode: http.StatusUnauthorized,
			wantBody:       "token expired",
		},
		{
			name:           "valid token",
			authHeader:     "Bearer validtoken",
			mockClaims:     claims,
			wantStatusCode: http.StatusOK,
			wantCalled:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			validator := new(ValidatorMock)
			if tt.mockClaims != nil || tt.mockErr != nil {
				token, _ := BearerToken(&http.Request{Header: http.Header{"Authorization": {tt.authHeader}}})
				validator.On("Validate", token).Return(tt.mockClaims, tt.mockErr).Once()
			}

			handlerCalled := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handlerCalled = true
				uid, email, plan, ok := UserFromContext(r.Context())
				assert.True(t, ok)
				assert.Equal(t, "uid-1", uid)
				assert.Equal(t, "a@x.com", email)
				assert.Equal(t, models.PlanPro, plan)
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/somepath", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()

			JWTMiddleware(validator, newNoopLogger())(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatusCode, rec.Code)
			assert.Equal(t, tt.wantCalled, handlerCalled)
			if tt.wantBody != "" {
				assert.Contains(t, rec.Body.String(), tt.wantBody)
			}
			validator.AssertExpectations(t)
		})
	}
}

func TestUserFromContext_Missing(t *testing.T) {
	_, _, _, ok := UserFromContext(context.Background())
	assert.False(t, ok)
}
