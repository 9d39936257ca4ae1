package siteconfig

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thgate/internal/audit"
	"thgate/internal/platform/config"
	"thgate/pkg/platform/httputil"
)

var firebase = config.Firebase{
	APIKey:            "AIza-test",
	AuthDomain:        "themehackers.firebaseapp.com",
	ProjectID:         "themehackers",
	StorageBucket:     "themehackers.appspot.com",
	MessagingSenderID: "1234",
	AppID:             "1:1234:web:abcd",
	MeasurementID:     "G-XYZ",
}

func serve(h *Handler, req *http.Request) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	h.Register(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body httputil.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.True(t, body.Error)
	return body.Message
}

func TestFirebaseConfig_Success(t *testing.T) {
	rec := serve(New(firebase), httptest.NewRequest(http.MethodGet, "/firebase-config", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"success": true,
		"config": {
			"apiKey": "AIza-test",
			"authDomain": "themehackers.firebaseapp.com",
			"projectId": "themehackers",
			"storageBucket": "themehackers.appspot.com",
			"messagingSenderId": "1234",
			"appId": "1:1234:web:abcd",
			"measurementId": "G-XYZ"
		}
	}`, rec.Body.String())
}

func TestFirebaseConfig_MethodNotAllowed(t *testing.T) {
	rec := serve(New(firebase), httptest.NewRequest(http.MethodPost, "/firebase-config", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "Method not allowed", errorMessage(t, rec))
}

func TestFirebaseConfig_Incomplete(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*config.Firebase)
		status int
	}{
		{"missing api key", func(f *config.Firebase) { f.APIKey = "" }, http.StatusInternalServerError},
		{"missing project id", func(f *config.Firebase) { f.ProjectID = "" }, http.StatusInternalServerError},
		{"missing optional fields only", func(f *config.Firebase) { f.MeasurementID = ""; f.AppID = "" }, http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := firebase
			tc.modify(&cfg)
			h := New(cfg, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
			rec := serve(h, httptest.NewRequest(http.MethodGet, "/firebase-config", nil))

			assert.Equal(t, tc.status, rec.Code)
			if tc.status != http.StatusOK {
				assert.Equal(t, "Firebase configuration incomplete", errorMessage(t, rec))
			}
		})
	}
}

func TestFirebaseConfig_OriginAllowList(t *testing.T) {
	sink := audit.NewMemorySink()
	h := New(firebase,
		WithAllowedOrigins([]string{"https://ThemeHackers.com", "https://www.themehackers.com/"}),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithAuditPublisher(audit.NewPublisher([]audit.Sink{sink})),
	)

	tests := []struct {
		name    string
		origin  string
		referer string
		status  int
	}{
		{"allowed origin", "https://themehackers.com", "", http.StatusOK},
		{"allowed referer", "", "https://www.themehackers.com/login/index.html", http.StatusOK},
		{"origin wins over referer", "https://evil.example", "https://themehackers.com/", http.StatusForbidden},
		{"other origin", "https://evil.example", "", http.StatusForbidden},
		{"scheme matters", "http://themehackers.com", "", http.StatusForbidden},
		{"no origin at all", "", "", http.StatusForbidden},
		{"opaque origin", "null", "", http.StatusForbidden},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/firebase-config", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			if tc.referer != "" {
				req.Header.Set("Referer", tc.referer)
			}
			rec := serve(h, req)

			assert.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusForbidden {
				assert.Equal(t, "Origin not allowed", errorMessage(t, rec))
			}
		})
	}
	assert.Len(t, sink.OfType(audit.EventOriginDenied), 5)
}
