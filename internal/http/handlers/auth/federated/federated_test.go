package federated

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/ocr-gateway/internal/introspect"
	"github.com/magabrotheeeer/ocr-gateway/internal/models"
	credential "github.com/magabrotheeeer/ocr-gateway/internal/services/credential"
	identity "github.com/magabrotheeeer/ocr-gateway/internal/services/identity"
)

// Мок для Identity
type IdentityMock struct {
	mock.Mock
}

func (m *IdentityMock) FederatedLogin(ctx context.Context, providerToken, claimedEmail string) (*models.User, error) {
	args := m.Called(ctx, providerToken, claimedEmail)
	user, _ := args.Get(0).(*models.User)
	return user, args.Error(1)
}

// Мок для Issuer
type IssuerMock struct {
	mock.Mock
}

func (m *IssuerMock) Issue(user *models.User, flow credential.Flow) (credential.Credential, error) {
	args := m.Called(user, flow)
	return args.Get(0).(credential.Credential), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestFederatedHandler_ServeHTTP(t *testing.T) {
	user := &models.User{UUID: "uid-1", Email: "a@x.com", Plan: models.PlanPro}
	validBody := `{"access_token":"provider-token","email":"a@x.com"}`

	tests := []struct {
		name           string
		body           string
		setupMocks     func(*IdentityMock, *IssuerMock)
		wantStatusCode int
		wantBody       string
	}{
		{
			name: "success",
			body: validBody,
			setupMocks: func(id *IdentityMock, is *IssuerMock) {
				id.On("FederatedLogin", mock.Anything, "provider-token", "a@x.com").Return(user, nil).Once()
				is.On("Issue", user, credential.FlowPrimary).
					Return(credential.Credential{Token: "jwt", ExpiresAt: time.Now().Add(time.Hour)}, nil).Once()
			},
			wantStatusCode: http.StatusOK,
			wantBody:       `"token":"jwt"`,
		},
		{
			name:           "invalid json",
			body:           `{`,
			setupMocks:     func(*IdentityMock, *IssuerMock) {},
			wantStatusCode: http.StatusBadRequest,
			wantBody:       "invalid request body",
		},
		{
			name:           "missing token",
			body:           `{"email":"a@x.com"}`,
			setupMocks:     func(*IdentityMock, *IssuerMock) {},
			wantStatusCode: http.StatusUnprocessableEntity,
			wantBody:       "field AccessToken is a required field",
		},
		{
			name: "provider rejected token",
			body: validBody,
			setupMocks: func(id *IdentityMock, _ *IssuerMock) {
				id.On("FederatedLogin", mock.Anything, "provider-token", "a@x.com").
					Return(nil, fmt.Errorf("wrap: %w", introspect.ErrInvalidToken)).Once()
			},
			wantStatusCode: http.StatusUnauthorized,
			wantBody:       "invalid provider token",
		},
		{
			name: "email mismatch",
			body: validBody,
			setupMocks: func(id *IdentityMock, _ *IssuerMock) {
				id.On("FederatedLogin", mock.Anything, "provider-token", "a@x.com").
					Return(nil, identity.ErrEmailMismatch).Once()
			},
			wantStatusCode: http.StatusUnauthorized,
			wantBody:       "invalid provider token",
		},
		{
			name: "provider unavailable",
			body: validBody,
			setupMocks: func(id *IdentityMock, _ *IssuerMock) {
				id.On("FederatedLogin", mock.Anything, "provider-token", "a@x.com").
					Return(nil, errors.New("dial tcp: timeout")).Once()
			},
			wantStatusCode: http.StatusBadGateway,
			wantBody:       "identity provider unavailable",
		},
		{
			name: "timeout",
			body: validBody,
			setupMocks: func(id *IdentityMock, _ *IssuerMock) {
				id.On("FederatedLogin", mock.Anything, "provider-token", "a@x.com").
					Return(nil, fmt.Errorf("identity.Resolve: %w", context.DeadlineExceeded)).Once()
			},
			wantStatusCode: http.StatusGatewayTimeout,
			wantBody:       "timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := new(IdentityMock)
			is := new(IssuerMock)
			tt.setupMocks(id, is)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/oauth", bytes.NewBufferString(tt.body))
			rec := httptest.NewRecorder()
			New(newNoopLogger(), id, is).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatusCode, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
			id.AssertExpectations(t)
			is.AssertExpectations(t)
		})
	}
}
