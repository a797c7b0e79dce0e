package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/brojonat/geneva/service/actions"
	"github.com/brojonat/geneva/service/config"
	"github.com/brojonat/geneva/service/db"
	"github.com/brojonat/geneva/service/solana"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAccount = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"

type stubConfirmer struct{ err error }

func (s stubConfirmer) Confirm(ctx context.Context, signature string) (solana.ConfirmationStatus, error) {
	if s.err != nil {
		return "", s.err
	}
	return solana.StatusConfirmed, nil
}

type stubBuilder struct{}

func (stubBuilder) Build(ctx context.Context, feePayer solanago.PublicKey, ixs ...solanago.Instruction) (*solanago.Transaction, error) {
	return solanago.NewTransaction(ixs, solanago.Hash{1, 2, 3}, solanago.TransactionPayer(feePayer))
}

type stubGenerator struct{ url string }

func (s stubGenerator) Generate(ctx context.Context, prompt, model string) (string, error) {
	return s.url, nil
}

type stubLedger struct {
	events  []*db.ActionEvent
	err     error
	account string
	limit   int32
}

func (s *stubLedger) ListActionEventsByAccount(ctx context.Context, account string, withImage bool, limit int32) ([]*db.ActionEvent, error) {
	s.account = account
	s.limit = limit
	return s.events, s.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testServer(t *testing.T, ledger Ledger) http.Handler {
	t.Helper()

	orch, err := actions.NewOrchestrator(actions.Config{
		Tiers: actions.DefaultTiers(0, 0),
	}, actions.Dependencies{
		Confirmer: stubConfirmer{},
		Builder:   stubBuilder{},
		Generator: stubGenerator{url: "https://fal.media/files/fox.png"},
	}, nil, testLogger())
	require.NoError(t, err)

	cfg := &config.Config{Network: config.NetworkDevnet}
	return New(":0", cfg, orch, ledger, nil, testLogger()).Handler()
}

func decodeMessage(t *testing.T, body io.Reader) string {
	t.Helper()
	var resp actions.ErrorResponse
	require.NoError(t, json.NewDecoder(body).Decode(&resp))
	return resp.Message
}

func assertActionHeaders(t *testing.T, h http.Header) {
	t.Helper()
	assert.Equal(t, "*", h.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, h.Get("Access-Control-Allow-Methods"), "OPTIONS")
	assert.Contains(t, h.Get("Access-Control-Allow-Headers"), "Accept-Encoding")
	assert.Equal(t, actionVersion, h.Get("X-Action-Version"))
	assert.Equal(t, "solana:EtWTRABZaYq6iMfeYKouRu166VU2xqa1", h.Get("X-Blockchain-Ids"))
}

func TestDescribe(t *testing.T) {
	h := testServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/actions/geneva/generate", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assertActionHeaders(t, w.Header())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var d actions.Descriptor
	require.NoError(t, json.NewDecoder(w.Body).Decode(&d))
	assert.Equal(t, actions.TypeAction, d.Type)
	require.NotNil(t, d.Links)
	require.Len(t, d.Links.Actions, 1)
	assert.True(t, strings.HasPrefix(d.Links.Actions[0].Href,
		"http://example.com/api/actions/geneva/generate?prompt={prompt}"), d.Links.Actions[0].Href)
}

func TestDescribe_ForwardedProto(t *testing.T) {
	h := testServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/actions/geneva/generate", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var d actions.Descriptor
	require.NoError(t, json.NewDecoder(w.Body).Decode(&d))
	assert.True(t, strings.HasPrefix(d.Links.Actions[0].Href, "https://example.com/"))
}

func TestDescribe_IgnoresForwardedHost(t *testing.T) {
	h := testServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/actions/geneva/generate", nil)
	req.Header.Set("X-Forwarded-Host", "attacker.example")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var d actions.Descriptor
	require.NoError(t, json.NewDecoder(w.Body).Decode(&d))
	for _, link := range d.Links.Actions {
		assert.True(t, strings.HasPrefix(link.Href, "http://example.com/"), link.Href)
	}
	assert.Equal(t, "http://example.com/api/actions/geneva/generate", requestURL(req))
}

func TestDescribe_UnknownStep(t *testing.T) {
	h := testServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/actions/geneva/teleport", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assertActionHeaders(t, w.Header())
	assert.Contains(t, decodeMessage(t, w.Body), "unknown step")
}

func TestOptions(t *testing.T) {
	h := testServer(t, nil)

	for _, path := range []string{"/api/actions/geneva/generate", "/api/actions/geneva/mint", "/actions.json"} {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, path, nil)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			assertActionHeaders(t, w.Header())
			assert.Empty(t, w.Body.String())
		})
	}
}

func TestExecute_Generate(t *testing.T) {
	h := testServer(t, nil)

	body := `{"account":"` + testAccount + `","data":{"prompt":"a fox in the snow"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/actions/geneva/generate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assertActionHeaders(t, w.Header())

	var resp actions.StepResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, actions.TypeTransaction, resp.Type)
	assert.NotEmpty(t, resp.Transaction)
	require.NotNil(t, resp.Links)
	assert.Equal(t, actions.TypePost, resp.Links.Next.Type)

	next, err := url.Parse(resp.Links.Next.Href)
	require.NoError(t, err)
	assert.Equal(t, "/api/actions/geneva/complete", next.Path)
	assert.Equal(t, "https://fal.media/files/fox.png", next.Query().Get("url"))
	assert.Equal(t, "a fox in the snow", next.Query().Get("prompt"))

	tx, err := solana.DecodeTransaction(resp.Transaction)
	require.NoError(t, err)
	assert.Equal(t, testAccount, tx.Message.AccountKeys[0].String())
}

func TestExecute_PromptFromQuery(t *testing.T) {
	h := testServer(t, nil)

	body := `{"account":"` + testAccount + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/actions/geneva/generate?prompt=a%20fox&tier=ultra", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestExecute_Complete(t *testing.T) {
	h := testServer(t, nil)

	body := `{"account":"` + testAccount + `","signature":"` + solanago.Signature{7}.String() + `"}`
	target := "/api/actions/geneva/complete?url=" + url.QueryEscape("https://fal.media/files/fox.png")
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp actions.StepResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, actions.TypeCompleted, resp.Type)
	assert.Equal(t, "https://fal.media/files/fox.png", resp.Icon)
	assert.Nil(t, resp.Links)
}

func TestExecute_Errors(t *testing.T) {
	h := testServer(t, nil)

	tests := []struct {
		name           string
		path           string
		body           string
		expectedStatus int
		expectedMsg    string
	}{
		{
			name:           "malformed account",
			path:           "/api/actions/geneva/generate?prompt=fox",
			body:           `{"account":"not-a-key"}`,
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "account",
		},
		{
			name:           "empty body",
			path:           "/api/actions/geneva/generate?prompt=fox",
			body:           ``,
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "account",
		},
		{
			name:           "invalid json",
			path:           "/api/actions/geneva/generate?prompt=fox",
			body:           `{"account":`,
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request body",
		},
		{
			name:           "missing prompt",
			path:           "/api/actions/geneva/generate",
			body:           `{"account":"` + testAccount + `"}`,
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "prompt",
		},
		{
			name:           "missing signature",
			path:           "/api/actions/geneva/complete?url=https%3A%2F%2Ffal.media%2Ffox.png",
			body:           `{"account":"` + testAccount + `"}`,
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "signature",
		},
		{
			name:           "unknown step",
			path:           "/api/actions/geneva/teleport",
			body:           `{"account":"` + testAccount + `"}`,
			expectedStatus: http.StatusNotFound,
			expectedMsg:    "unknown step",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assertActionHeaders(t, w.Header())
			assert.Contains(t, decodeMessage(t, w.Body), tt.expectedMsg)
		})
	}
}

func TestExecute_BodyTooLarge(t *testing.T) {
	h := testServer(t, nil)

	body := `{"account":"` + testAccount + `","data":{"prompt":"` + strings.Repeat("a", maxRequestBodySize) + `"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/actions/geneva/generate", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp actions.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "request body too large", resp.Message)
}

func TestActionsJSON(t *testing.T) {
	h := testServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/actions.json", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assertActionHeaders(t, w.Header())
	assert.JSONEq(t, `{"rules":[{"pathPattern":"/api/actions/**","apiPath":"/api/actions/**"}]}`, w.Body.String())
}

func TestBlinkQR(t *testing.T) {
	h := testServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/blink/qr", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(w.Body.String(), "\x89PNG"))

	for _, target := range []string{"/api/v1/blink/qr?step=teleport", "/api/v1/blink/qr?size=big", "/api/v1/blink/qr?size=5000"} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.GreaterOrEqual(t, w.Code, 400, target)
	}
}

func TestBlinkURL(t *testing.T) {
	got := blinkURL("https://geneva.example", actions.StepGenerate)
	assert.Equal(t, "solana-action:https%3A%2F%2Fgeneva.example%2Fapi%2Factions%2Fgeneva%2Fgenerate", got)
}

func TestListGenerations(t *testing.T) {
	prompt := "a fox"
	image := "https://fal.media/files/fox.png"
	ledger := &stubLedger{events: []*db.ActionEvent{{
		ID:         uuid.New(),
		Step:       "render",
		Account:    testAccount,
		Prompt:     &prompt,
		ImageURL:   &image,
		OccurredAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}}}
	h := testServer(t, ledger)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/generations?account="+testAccount+"&limit=5", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, testAccount, ledger.account)
	assert.Equal(t, int32(5), ledger.limit)

	var resp struct {
		Generations []generationResponse `json:"generations"`
		Count       int                  `json:"count"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, image, *resp.Generations[0].ImageURL)
}

func TestListGenerations_Validation(t *testing.T) {
	h := testServer(t, &stubLedger{})

	tests := []struct {
		name   string
		query  string
		status int
	}{
		{"missing account", "", http.StatusBadRequest},
		{"bad account", "?account=nope", http.StatusBadRequest},
		{"bad limit", "?account=" + testAccount + "&limit=x", http.StatusBadRequest},
		{"limit too large", "?account=" + testAccount + "&limit=1000", http.StatusBadRequest},
		{"bad with_image", "?account=" + testAccount + "&with_image=maybe", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/generations"+tt.query, nil)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestListGenerations_LedgerError(t *testing.T) {
	h := testServer(t, &stubLedger{err: errors.New("connection refused")})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/generations?account="+testAccount, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal server error", decodeMessage(t, w.Body))
}

func TestListGenerations_DisabledWithoutLedger(t *testing.T) {
	h := testServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/generations?account="+testAccount, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealth(t *testing.T) {
	h := testServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}
