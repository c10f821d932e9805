package services_test

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/ocr-gateway/internal/lib/jwt"
	"github.com/magabrotheeeer/ocr-gateway/internal/models"
	identity "github.com/magabrotheeeer/ocr-gateway/internal/services/identity"
	services "github.com/magabrotheeeer/ocr-gateway/internal/services/credential"
)

const testSecret = "test_secret_key_1234567890_abcdef"

// Мок для UserGetter
type UserGetterMock struct {
	mock.Mock
}

func (m *UserGetterMock) Get(ctx context.Context, userUID string) (*models.User, error) {
	args := m.Called(ctx, userUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func newIssuer(users services.UserGetter) (*services.Issuer, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	maker := jwt.NewJWTMaker(testSecret).WithClock(clock.Now)
	return services.NewIssuer(maker, users, 0, 0), clock
}

var alice = &models.User{UUID: "u-1", Email: "a@x.com", Plan: models.PlanFree}

func TestIssuer_RoundTrip(t *testing.T) {
	issuer, clock := newIssuer(new(UserGetterMock))

	tests := []struct {
		flow    services.Flow
		wantTTL time.Duration
	}{
		{services.FlowPrimary, 30 * 24 * time.Hour},
		{services.FlowMagicLink, 7 * 24 * time.Hour},
		{services.Flow("other"), 30 * 24 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(string(tt.flow), func(t *testing.T) {
			cred, err := issuer.Issue(alice, tt.flow)
			require.NoError(t, err)
			assert.Equal(t, clock.t.Add(tt.wantTTL), cred.ExpiresAt)

			claims, err := issuer.Validate(cred.Token)
			require.NoError(t, err)
			assert.Equal(t, alice.UUID, claims.UserUID)
			assert.Equal(t, alice.Email, claims.Email)
			assert.Equal(t, alice.Plan, claims.Plan)
			assert.Equal(t, clock.t, claims.IssuedAt)
			assert.Equal(t, cred.ExpiresAt, claims.ExpiresAt)
		})
	}
}

func TestIssuer_Expiry(t *testing.T) {
	issuer, clock := newIssuer(new(UserGetterMock))
	start := clock.t

	cred, err := issuer.Issue(alice, services.FlowMagicLink)
	require.NoError(t, err)

	clock.t = start.Add(7*24*time.Hour - time.Second)
	_, err = issuer.Validate(cred.Token)
	require.NoError(t, err)

	clock.t = start.Add(7*24*time.Hour + time.Second)
	_, err = issuer.Validate(cred.Token)
	assert.ErrorIs(t, err, services.ErrExpired)
	assert.NotErrorIs(t, err, services.ErrInvalid)
}

func TestIssuer_Tampering(t *testing.T) {
	issuer, _ := newIssuer(new(UserGetterMock))
	cred, err := issuer.Issue(alice, services.FlowPrimary)
	require.NoError(t, err)

	parts := strings.Split(cred.Token, ".")
	require.Len(t, parts, 3)
	payload := parts[1]

	for i := 0; i < len(payload); i++ {
		flipped := []byte(payload)
		if flipped[i] == 'A' {
			flipped[i] = 'B'
		} else {
			flipped[i] = 'A'
		}
		tampered := parts[0] + "." + string(flipped) + "." + parts[2]

		claims, err := issuer.Validate(tampered)
		assert.ErrorIs(t, err, services.ErrInvalid, "position %d", i)
		assert.Nil(t, claims, "position %d", i)
	}
}

func TestIssuer_PlanEscalationRejected(t *testing.T) {
	issuer, _ := newIssuer(new(UserGetterMock))
	cred, err := issuer.Issue(alice, services.FlowPrimary)
	require.NoError(t, err)

	parts := strings.Split(cred.Token, ".")
	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	forged := strings.Replace(string(raw), `"plan":"free"`, `"plan":"enterprise"`, 1)
	require.NotEqual(t, string(raw), forged)

	token := parts[0] + "." + base64.RawURLEncoding.EncodeToString([]byte(forged)) + "." + parts[2]
	_, err = issuer.Validate(token)
	assert.ErrorIs(t, err, services.ErrInvalid)
}

func TestIssuer_ForeignKeyRejected(t *testing.T) {
	issuer, clock := newIssuer(new(UserGetterMock))
	other := jwt.NewJWTMaker("another_secret_key_0987654321_zyxwvu").WithClock(clock.Now)
	token, _, err := other.GenerateToken(jwt.Subject{UserUID: "u-1", Plan: "enterprise"}, time.Hour)
	require.NoError(t, err)

	_, err = issuer.Validate(token)
	assert.ErrorIs(t, err, services.ErrInvalid)
}

func TestIssuer_ValidateGarbage(t *testing.T) {
	issuer, _ := newIssuer(new(UserGetterMock))

	for _, token := range []string{"", "abc", "a.b.c", "eyJhbGciOiJub25lIn0.eyJzdWIiOiJ1LTEifQ."} {
		_, err := issuer.Validate(token)
		assert.ErrorIs(t, err, services.ErrInvalid, token)
	}
}

func TestIssuer_Issue_EmptyUser(t *testing.T) {
	issuer, _ := newIssuer(new(UserGetterMock))

	_, err := issuer.Issue(nil, services.FlowPrimary)
	assert.Error(t, err)
	_, err = issuer.Issue(&models.User{}, services.FlowPrimary)
	assert.Error(t, err)
}

func TestIssuer_Refresh(t *testing.T) {
	t.Run("reflects plan change", func(t *testing.T) {
		users := new(UserGetterMock)
		issuer, clock := newIssuer(users)
		cred, err := issuer.Issue(alice, services.FlowMagicLink)
		require.NoError(t, err)

		upgraded := *alice
		upgraded.Plan = models.PlanPro
		users.On("Get", mock.Anything, alice.UUID).Return(&upgraded, nil).Once()

		clock.t = clock.t.Add(time.Hour)
		refreshed, err := issuer.Refresh(context.Background(), cred.Token)
		require.NoError(t, err)
		assert.Equal(t, clock.t.Add(30*24*time.Hour), refreshed.ExpiresAt)

		claims, err := issuer.Validate(refreshed.Token)
		require.NoError(t, err)
		assert.Equal(t, models.PlanPro, claims.Plan)
		assert.Equal(t, services.FlowPrimary, claims.Flow)
		users.AssertExpectations(t)
	})

	t.Run("expired token", func(t *testing.T) {
		users := new(UserGetterMock)
		issuer, clock := newIssuer(users)
		cred, err := issuer.Issue(alice, services.FlowMagicLink)
		require.NoError(t, err)

		clock.t = clock.t.Add(8 * 24 * time.Hour)
		_, err = issuer.Refresh(context.Background(), cred.Token)
		assert.ErrorIs(t, err, services.ErrExpired)
		users.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
	})

	t.Run("user gone", func(t *testing.T) {
		users := new(UserGetterMock)
		issuer, _ := newIssuer(users)
		cred, err := issuer.Issue(alice, services.FlowPrimary)
		require.NoError(t, err)
		users.On("Get", mock.Anything, alice.UUID).Return(nil, identity.ErrUserNotFound).Once()

		_, err = issuer.Refresh(context.Background(), cred.Token)
		assert.ErrorIs(t, err, services.ErrInvalid)
	})

	t.Run("storage failure keeps token valid", func(t *testing.T) {
		tests := []struct {
			name string
			err  error
		}{
			{name: "timeout", err: context.DeadlineExceeded},
			{name: "db down", err: errors.New("db down")},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				users := new(UserGetterMock)
				issuer, _ := newIssuer(users)
				cred, err := issuer.Issue(alice, services.FlowPrimary)
				require.NoError(t, err)
				users.On("Get", mock.Anything, alice.UUID).Return(nil, tt.err).Once()

				_, err = issuer.Refresh(context.Background(), cred.Token)
				assert.ErrorIs(t, err, tt.err)
				assert.NotErrorIs(t, err, services.ErrInvalid)
				assert.NotErrorIs(t, err, services.ErrExpired)
			})
		}
	})
}

func TestIssuer_Issue_StoredUsers(t *testing.T) {
	issuer, _ := newIssuer(new(UserGetterMock))

	for _, plan := range []models.Plan{models.PlanFree, models.PlanPro, models.PlanProPlus, models.PlanEnterprise, models.Plan("legacy")} {
		for _, flow := range []services.Flow{services.FlowPrimary, services.FlowMagicLink} {
			user := &models.User{UUID: "u-" + string(plan), Email: "a@x.com", Plan: plan}
			cred, err := issuer.Issue(user, flow)
			require.NoError(t, err, "plan %s flow %s", plan, flow)
			assert.NotEmpty(t, cred.Token)
		}
	}
}
