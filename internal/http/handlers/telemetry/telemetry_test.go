package telemetry

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/ocr-gateway/internal/models"
	telemetry "github.com/magabrotheeeer/ocr-gateway/internal/services/telemetry"
)

// Мок для Recorder
type RecorderMock struct {
	mock.Mock
}

func (m *RecorderMock) Record(ctx context.Context, report models.ErrorReport) (int64, error) {
	args := m.Called(ctx, report)
	return args.Get(0).(int64), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestTelemetryHandler_ServeHTTP(t *testing.T) {
	report := models.ErrorReport{Source: "popup", Message: "boom", Stack: "at x", UserAgent: "ext/1.0"}

	tests := []struct {
		name           string
		body           string
		setupMocks     func(*RecorderMock)
		wantStatusCode int
		wantBody       string
	}{
		{
			name: "accepted",
			body: `{"source":"popup","message":"boom","stack":"at x"}`,
			setupMocks: func(m *RecorderMock) {
				m.On("Record", mock.Anything, report).Return(int64(1), nil).Once()
			},
			wantStatusCode: http.StatusAccepted,
			wantBody:       `"status":"OK"`,
		},
		{
			name:           "invalid json",
			body:           `{`,
			setupMocks:     func(*RecorderMock) {},
			wantStatusCode: http.StatusBadRequest,
			wantBody:       "invalid request body",
		},
		{
			name:           "missing message",
			body:           `{"source":"popup"}`,
			setupMocks:     func(*RecorderMock) {},
			wantStatusCode: http.StatusUnprocessableEntity,
			wantBody:       "field Message is a required field",
		},
		{
			name: "blank message",
			body: `{"source":"popup","message":" "}`,
			setupMocks: func(m *RecorderMock) {
				m.On("Record", mock.Anything, mock.Anything).Return(int64(0), telemetry.ErrEmptyMessage).Once()
			},
			wantStatusCode: http.StatusUnprocessableEntity,
			wantBody:       "field Message is a required field",
		},
		{
			name: "store error",
			body: `{"source":"popup","message":"boom","stack":"at x"}`,
			setupMocks: func(m *RecorderMock) {
				m.On("Record", mock.Anything, report).Return(int64(0), errors.New("db down")).Once()
			},
			wantStatusCode: http.StatusInternalServerError,
			wantBody:       "internal error",
		},
		{
			name: "store timeout",
			body: `{"source":"popup","message":"boom","stack":"at x"}`,
			setupMocks: func(m *RecorderMock) {
				m.On("Record", mock.Anything, report).Return(int64(0), context.DeadlineExceeded).Once()
			},
			wantStatusCode: http.StatusGatewayTimeout,
			wantBody:       "storage timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := new(RecorderMock)
			tt.setupMocks(recorder)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/telemetry/errors", bytes.NewBufferString(tt.body))
			req.Header.Set("User-Agent", "ext/1.0")
			rec := httptest.NewRecorder()
			New(newNoopLogger(), recorder).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatusCode, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
			recorder.AssertExpectations(t)
		})
	}
}
