package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPlan_Valid(t *testing.T) {
	for _, p := range []Plan{PlanFree, PlanPro, PlanProPlus, PlanEnterprise} {
		assert.True(t, p.Valid(), p)
	}
	for _, p := range []Plan{"", "FREE", "premium", "pro_plus"} {
		assert.False(t, p.Valid(), p)
	}
}

func TestAuthSession_Expired(t *testing.T) {
	exp := time.Date(2024, 1, 1, 12, 10, 0, 0, time.UTC)
	s := AuthSession{ExpiresAt: exp}

	assert.False(t, s.Expired(exp.Add(-time.Second)))
	assert.False(t, s.Expired(exp))
	assert.True(t, s.Expired(exp.Add(time.Nanosecond)))
}

func TestValidEmail(t *testing.T) {
	tests := []struct {
		email string
		want  bool
	}{
		{"a@x.com", true},
		{"A@X", true},
		{"quoted\"@\"local@x.com", true},
		{"no-at-sign", false},
		{"@x.com", false},
		{"a@", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidEmail(tt.email))
		})
	}
}
