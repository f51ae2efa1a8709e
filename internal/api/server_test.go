package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aadhaar-drishti/backend/internal/bootstrap"
	"github.com/aadhaar-drishti/backend/pkg/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			AllowedOrigins: []string{"http://localhost:3000"},
			IsDevelopment:  true,
			BodyLimit:      1 << 20,
		},
		Storage: config.StorageConfig{Driver: "memory"},
		Auth: config.AuthConfig{
			JWTSecret:     "test-secret",
			TokenTTLHours: 1,
			OTPTTLMinutes: 10,
			OTPMode:       "fixed",
			FixedOTP:      "123456",
			Region:        "IN",
		},
		Import:      config.ImportConfig{BatchSize: 100, Concurrency: 2, MaxAttempts: 1},
		Aggregation: config.AggregationConfig{Workers: 2},
		LLM:         config.LLMConfig{Provider: "gemini"},
		RateLimit:   config.RateLimitConfig{OTPRequestsPerMinute: 5},
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := testConfig()
	svc, err := bootstrap.New(context.Background(), cfg)
	require.NoError(t, err)

	srv := NewServer(cfg, svc)
	t.Cleanup(func() {
		srv.limiter.Stop()
		svc.Close()
	})
	return srv
}

func do(t *testing.T, srv *Server, method, path, body, token string) (int, map[string]interface{}) {
	t.Helper()
	status, raw := doRaw(t, srv, method, path, body, token)

	out := map[string]interface{}{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return status, out
}

func doRaw(t *testing.T, srv *Server, method, path, body, token string) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := srv.App.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func seedPune(t *testing.T, srv *Server) {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"biometric": writeFile(t, dir, "bio.csv",
			"date,state,district,pincode,bio_age_5_17,bio_age_17_\n"+
				"01-03-2025,Maharashtra,Pune,411001,100,200\n"+
				"01-03-2025,Maharashtra,Pune,411002,50,100\n"),
		"demographic": writeFile(t, dir, "demo.csv",
			"date,state,district,pincode,demo_age_5_17,demo_age_17_\n"+
				"01-03-2025,Maharashtra,Pune,411001,40,60\n"),
		"enrolment": writeFile(t, dir, "enrol.csv",
			"date,state,district,pincode,age_0_5,age_5_17,age_18_greater\n"+
				"01-03-2025,Maharashtra,Pune,411001,20,30,50\n"),
	}

	for kind, path := range files {
		status, body := do(t, srv, http.MethodPost, "/api/data/import",
			fmt.Sprintf(`{"filePath":%q,"dataType":%q}`, path, kind), "")
		require.Equal(t, http.StatusOK, status, body)
		assert.Equal(t, true, body["success"])
	}

	status, body := do(t, srv, http.MethodPost, "/api/data/calculate-metrics", "", "")
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "Calculated metrics for 1 districts", body["message"])
}

func login(t *testing.T, srv *Server) string {
	t.Helper()
	status, body := do(t, srv, http.MethodPost, "/api/citizen/send-otp", `{"mobile":"9876543210","last4Aadhaar":"1234"}`, "")
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, float64(600), body["expiresIn"])

	status, body = do(t, srv, http.MethodPost, "/api/citizen/verify-otp", `{"mobile":"9876543210","otp":"123456","last4Aadhaar":"1234"}`, "")
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "OTP verified successfully", body["message"])

	token, ok := body["token"].(string)
	require.True(t, ok)
	return token
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/health", "/api/health"} {
		status, body := do(t, srv, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "OK", body["status"])
		assert.Equal(t, "AADHAAR Drishti API is running", body["message"])
	}

	status, body := do(t, srv, http.MethodGet, "/api/ready", "", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ready", body["status"])
}

func TestImportValidation(t *testing.T) {
	srv := newTestServer(t)

	cases := []struct {
		name   string
		body   string
		status int
		errMsg string
	}{
		{"missing fields", `{"filePath":""}`, http.StatusBadRequest, "filePath and dataType required"},
		{"bad kind", `{"filePath":"x.csv","dataType":"vaccination"}`, http.StatusBadRequest, "Invalid dataType. Use: biometric, demographic, or enrolment"},
		{"missing file", `{"filePath":"/does/not/exist.csv","dataType":"biometric"}`, http.StatusInternalServerError, "Failed to import CSV"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := do(t, srv, http.MethodPost, "/api/data/import", tc.body, "")
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.errMsg, body["error"])
		})
	}
}

func TestImportCountsObservedRows(t *testing.T) {
	srv := newTestServer(t)
	path := writeFile(t, t.TempDir(), "bio.csv",
		"date,state,district,pincode,bio_age_5_17,bio_age_17_\n"+
			"01-03-2025,Maharashtra,Pune,411001,1,2\n"+
			"01-03-2025,,Pune,411002,3,4\n")

	status, body := do(t, srv, http.MethodPost, "/api/data/import",
		fmt.Sprintf(`{"filePath":%q,"dataType":"biometric"}`, path), "")
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, float64(2), body["count"])
	assert.Equal(t, float64(1), body["inserted"])
	assert.Equal(t, float64(1), body["skipped"])
}

func TestAdminEndpointsOnEmptyStore(t *testing.T) {
	srv := newTestServer(t)

	status, raw := doRaw(t, srv, http.MethodGet, "/api/admin/stats", "", "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"freshnessScore":0,"recordsNeedingUpdatePct":0,"highRiskDistricts":0,"avgFailureRate":0}`, string(raw))

	status, raw = doRaw(t, srv, http.MethodGet, "/api/admin/districts", "", "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, string(raw))

	status, raw = doRaw(t, srv, http.MethodGet, "/api/admin/states", "", "")
	assert.Equal(t, http.StatusOK, status)
	var states []string
	require.NoError(t, json.Unmarshal(raw, &states))
	assert.Len(t, states, 36)

	status, raw = doRaw(t, srv, http.MethodPost, "/api/admin/recommendations", `{"context":"festival season"}`, "")
	assert.Equal(t, http.StatusOK, status)
	var recs []map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &recs))
	assert.Len(t, recs, 4)
}

func TestAdminAfterPipeline(t *testing.T) {
	srv := newTestServer(t)
	seedPune(t, srv)

	status, body := do(t, srv, http.MethodGet, "/api/admin/stats", "", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(100), body["freshnessScore"])
	assert.Equal(t, float64(0), body["highRiskDistricts"])

	status, raw := doRaw(t, srv, http.MethodGet, "/api/admin/districts?state=Maharashtra&riskLevel=Low", "", "")
	require.Equal(t, http.StatusOK, status)
	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "Pune", rows[0]["name"])

	status, raw = doRaw(t, srv, http.MethodGet, "/api/admin/districts?riskLevel=Critical", "", "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, string(raw))

	status, body = do(t, srv, http.MethodGet, "/api/admin/districts?riskLevel=Extreme", "", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["error"], "Invalid riskLevel")

	status, raw = doRaw(t, srv, http.MethodGet, "/api/admin/update-gaps", "", "")
	require.Equal(t, http.StatusOK, status)
	var gaps []map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &gaps))
	assert.Len(t, gaps, 3)

	status, raw = doRaw(t, srv, http.MethodGet, "/api/admin/migration-impact", "", "")
	require.Equal(t, http.StatusOK, status)
	var points []map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &points))
	require.Len(t, points, 1)
	assert.Equal(t, float64(10), points[0]["migrationIndex"])

	status, raw = doRaw(t, srv, http.MethodGet, "/api/admin/states", "", "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `["Maharashtra"]`, string(raw))
}

func TestCitizenFlow(t *testing.T) {
	srv := newTestServer(t)
	seedPune(t, srv)
	token := login(t, srv)

	status, body := do(t, srv, http.MethodGet, "/api/citizen/status", "", token)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "Pune", body["district"])
	assert.Equal(t, "9876543210", body["mobile"])
	assert.Equal(t, true, body["simulated"])

	status, body = do(t, srv, http.MethodPost, "/api/citizen/chatbot", `{"message":"Do I need to update my address?"}`, token)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["response"])
	assert.NotNil(t, body["citizenData"])
}

func TestCitizenAuthErrors(t *testing.T) {
	srv := newTestServer(t)

	status, body := do(t, srv, http.MethodGet, "/api/citizen/status", "", "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Access token required", body["error"])

	status, body = do(t, srv, http.MethodGet, "/api/citizen/status", "", "not-a-token")
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "Invalid or expired token", body["error"])

	cases := []struct {
		path   string
		body   string
		errMsg string
	}{
		{"/api/citizen/send-otp", `{"mobile":"9876543210"}`, "Mobile and last 4 digits of Aadhaar required"},
		{"/api/citizen/send-otp", `{"mobile":"12345","last4Aadhaar":"1234"}`, "Invalid mobile number"},
		{"/api/citizen/send-otp", `{"mobile":"9876543210","last4Aadhaar":"12a4"}`, "Invalid Aadhaar digits"},
		{"/api/citizen/verify-otp", `{"mobile":"9876543210","otp":"123456"}`, "Mobile, OTP, and last 4 Aadhaar digits required"},
		{"/api/citizen/verify-otp", `{"mobile":"9876543210","otp":"123456","last4Aadhaar":"9999"}`, "Invalid OTP or Aadhaar number"},
	}
	for _, tc := range cases {
		status, body := do(t, srv, http.MethodPost, tc.path, tc.body, "")
		assert.Equal(t, http.StatusBadRequest, status, tc.body)
		assert.Equal(t, tc.errMsg, body["error"], tc.body)
	}
}

func TestCitizenWithoutDistricts(t *testing.T) {
	srv := newTestServer(t)
	token := login(t, srv)

	status, body := do(t, srv, http.MethodGet, "/api/citizen/status", "", token)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "No district data available", body["error"])

	status, body = do(t, srv, http.MethodPost, "/api/citizen/chatbot", `{"message":"hello"}`, token)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "No district data available", body["error"])
}

func TestChatbotRejectsScript(t *testing.T) {
	srv := newTestServer(t)
	seedPune(t, srv)
	token := login(t, srv)

	status, _ := do(t, srv, http.MethodPost, "/api/citizen/chatbot", `{"message":"<script>alert(1)</script>"}`, token)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestOTPRateLimit(t *testing.T) {
	srv := newTestServer(t)

	for i := 0; i < 5; i++ {
		status, _ := do(t, srv, http.MethodPost, "/api/citizen/send-otp", `{"mobile":"9876543210","last4Aadhaar":"1234"}`, "")
		require.Equal(t, http.StatusOK, status)
	}

	status, _ := do(t, srv, http.MethodPost, "/api/citizen/send-otp", `{"mobile":"9876543210","last4Aadhaar":"1234"}`, "")
	assert.Equal(t, http.StatusTooManyRequests, status)
}

func TestChatSocketRequiresUpgrade(t *testing.T) {
	srv := newTestServer(t)
	token := login(t, srv)

	status, _ := do(t, srv, http.MethodGet, "/api/citizen/chat/ws?token="+token, "", "")
	assert.Equal(t, http.StatusUpgradeRequired, status)

	status, _ = do(t, srv, http.MethodGet, "/api/citizen/chat/ws", "", "")
	assert.Equal(t, http.StatusUnauthorized, status)
}
