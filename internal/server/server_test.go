package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kkkkikiki/referral/internal/database"
	"github.com/kkkkikiki/referral/internal/repository"
	"github.com/kkkkikiki/referral/internal/service"
	"github.com/kkkkikiki/referral/internal/testutil"
)

const dashboardURL = "http://localhost:3000/dashboard"

type testServer struct {
	*httptest.Server
	db     *database.DB
	client *http.Client
}

func newTestServer(t *testing.T) *testServer {
	return newTestServerWith(t, 5*time.Second, 1<<20)
}

func newTestServerWith(t *testing.T, queryTimeout time.Duration, maxImageBytes int64) *testServer {
	t.Helper()

	db := testutil.NewSQLiteDB(t)
	attribution := repository.NewAttributionRepository(db.SQL, queryTimeout)
	campaigns := repository.NewCampaignRepository(db.SQL, queryTimeout)
	users := repository.NewUserRepository(db.SQL, queryTimeout)

	srv := New(Services{
		Referrals: service.NewReferralIssuer(attribution, "http://localhost:3001"),
		QRCodes:   service.NewQRTokenIssuer(attribution),
		Scans:     service.NewScanHandler(attribution, dashboardURL),
		Query:     service.NewQueryFacade(attribution, campaigns, users),
		Campaigns: service.NewCampaignService(campaigns),
	}, db, testutil.TestLogger(), maxImageBytes)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testServer{
		Server: ts,
		db:     db,
		client: &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (ts *testServer) postJSON(t *testing.T, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := ts.client.Post(ts.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp, decodeBody(t, resp)
}

func (ts *testServer) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := ts.client.Get(ts.URL + path)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func readText(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return strings.TrimSpace(string(b))
}

func TestGenerateReferral(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.postJSON(t, "/generate-referral", `{"userId": 7, "campaignId": 42}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "http://localhost:3001/scan?ref=42_7", body["url"])

	// numeric strings are accepted and the second call is idempotent
	resp, body = ts.postJSON(t, "/generate-referral", `{"userId": "7", "campaignId": "42"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "http://localhost:3001/scan?ref=42_7", body["url"])

	var rows int
	require.NoError(t, ts.db.SQL.Get(&rows, `SELECT COUNT(*) FROM referrals`))
	assert.Equal(t, 1, rows)
}

func TestGenerateReferralRejectsBadInput(t *testing.T) {
	ts := newTestServer(t)

	for _, body := range []string{
		`{"userId": 7}`,
		`{"campaignId": 42}`,
		`{"userId": "abc", "campaignId": 42}`,
		`not json`,
	} {
		resp, decoded := ts.postJSON(t, "/generate-referral", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
		assert.NotEmpty(t, decoded["error"], body)
	}
}

func TestQRScanFlow(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.postJSON(t, "/generate-qr", `{"user_id": 7, "campaign_id": 42}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token, ok := body["qr_token"].(string)
	require.True(t, ok)
	require.Len(t, token, 32)

	_, again := ts.postJSON(t, "/generate-qr", `{"user_id": "7", "campaign_id": "42"}`)
	assert.Equal(t, token, again["qr_token"])

	total := decodeBody(t, ts.get(t, "/referidos?user_id=7&campaign_id=42"))
	assert.EqualValues(t, 0, total["total"])

	for range 3 {
		resp := ts.get(t, "/scan?token="+token)
		_ = resp.Body.Close()
		require.Equal(t, http.StatusFound, resp.StatusCode)
		assert.Equal(t, dashboardURL, resp.Header.Get("Location"))
	}

	total = decodeBody(t, ts.get(t, "/referidos?user_id=7&campaign_id=42"))
	assert.EqualValues(t, 3, total["total"])

	resp = ts.get(t, "/referrals/7/42")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 3, decodeBody(t, resp)["referrals"])
}

func TestScanErrors(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.get(t, "/scan")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "token required", readText(t, resp))

	resp = ts.get(t, "/scan?token=doesnotexist")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "invalid token", readText(t, resp))
}

func TestQueriesWithoutQRRow(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.get(t, "/referidos?user_id=1&campaign_id=2")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 0, decodeBody(t, resp)["total"])

	resp = ts.get(t, "/referrals/1/2")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()

	resp = ts.get(t, "/referidos?user_id=1")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()

	resp = ts.get(t, "/referrals/x/2")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestStoreTimeoutIsRetryable(t *testing.T) {
	// Every statement deadline has already passed by the time it runs.
	ts := newTestServerWith(t, time.Nanosecond, 1<<20)

	resp, body := ts.postJSON(t, "/generate-qr", `{"user_id": 7, "campaign_id": 42}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))
	assert.Equal(t, true, body["retryable"])
}

func newCampaignForm(t *testing.T, userID, description string, image []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if userID != "" {
		require.NoError(t, mw.WriteField("user_id", userID))
	}
	if description != "" {
		require.NoError(t, mw.WriteField("description", description))
	}
	if image != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="image"; filename="banner.png"`)
		h.Set("Content-Type", "image/png")
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestCampaignEndpoints(t *testing.T) {
	ts := newTestServer(t)
	userID := testutil.SeedUser(t, ts.db, "alice")
	image := []byte("\x89PNG\r\n\x1a\nfake")

	form, contentType := newCampaignForm(t, jsonNumber(userID), "Spring sale", image)
	resp, err := ts.client.Post(ts.URL+"/creacampana", contentType, form)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody(t, resp)
	assert.Equal(t, "campaign created", created["message"])
	id := int64(created["id"].(float64))
	require.Positive(t, id)

	resp = ts.get(t, "/campaign/"+jsonNumber(id))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	campaign := decodeBody(t, resp)
	assert.Equal(t, "Spring sale", campaign["description"])
	assert.Equal(t, "image/png", campaign["image_type"])
	assert.Equal(t, "iVBORw0KGgpmYWtl", campaign["image_data"])

	resp = ts.get(t, "/usercampana?user_id="+jsonNumber(userID))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	_ = resp.Body.Close()
	require.Len(t, list, 1)

	resp = ts.get(t, "/getuserid?username=alice")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, userID, decodeBody(t, resp)["user_id"])

	resp = ts.get(t, "/getuserid?username=bob")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()

	resp = ts.get(t, "/campaign/999")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestCreateCampaignValidation(t *testing.T) {
	ts := newTestServerWith(t, 5*time.Second, 1<<10)
	image := []byte("\x89PNG\r\n\x1a\nfake")

	tests := []struct {
		name        string
		userID      string
		description string
		image       []byte
		want        int
	}{
		{"missing user", "", "desc", image, http.StatusBadRequest},
		{"missing description", "1", "", image, http.StatusBadRequest},
		{"missing image", "1", "desc", nil, http.StatusBadRequest},
		{"image too large", "1", "desc", bytes.Repeat([]byte("a"), 2<<10), http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form, contentType := newCampaignForm(t, tt.userID, tt.description, tt.image)
			resp, err := ts.client.Post(ts.URL+"/creacampana", contentType, form)
			require.NoError(t, err)
			_ = resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.get(t, "/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	assert.Equal(t, "ok", decodeBody(t, resp)["status"])

	resp = ts.get(t, "/health/db")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	require.NoError(t, ts.db.Close())
	resp = ts.get(t, "/health/db")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestAttributionRPC(t *testing.T) {
	ts := newTestServer(t)
	client := NewAttributionClient(ts.Client(), ts.URL)
	ctx := context.Background()

	ref, err := client.IssueReferral(ctx, 7, 42)
	require.NoError(t, err)
	assert.Equal(t, "42_7", ref.Code)
	assert.Equal(t, "http://localhost:3001/scan?ref=42_7", ref.URL)

	token, err := client.IssueQRToken(ctx, 7, 42)
	require.NoError(t, err)

	target, err := client.Scan(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, dashboardURL, target)

	counters, err := client.GetCounters(ctx, 7, 42)
	require.NoError(t, err)
	assert.EqualValues(t, 1, counters.Hits)
	assert.EqualValues(t, 1, counters.Referrals)

	_, err = client.Scan(ctx, "unknown")
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))

	_, err = client.Scan(ctx, "")
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	_, err = client.GetCounters(ctx, 1, 1)
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))
}

func TestFlexID(t *testing.T) {
	var req generateQRRequest
	require.NoError(t, json.Unmarshal([]byte(`{"user_id": "12", "campaign_id": 34}`), &req))
	assert.EqualValues(t, 12, req.UserID)
	assert.EqualValues(t, 34, req.CampaignID)

	require.Error(t, json.Unmarshal([]byte(`{"user_id": "1.5"}`), &req))
	require.Error(t, json.Unmarshal([]byte(`{"user_id": true}`), &req))
}

func jsonNumber(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
