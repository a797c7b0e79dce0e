package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/brojonat/geneva/service/actions"
	"github.com/brojonat/geneva/service/config"
	"github.com/brojonat/geneva/service/db"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/skip2/go-qrcode"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB - a prompt is at most a few KB
	defaultQRSize      = 256
	maxQRSize          = 1024
)

// handleDescribe returns a handler that serves the descriptor of a step.
// GET /api/actions/geneva/{step}
func handleDescribe(exec Executor, cfg *config.Config, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		step := actions.StepName(r.PathValue("step"))

		descriptor, err := exec.Describe(step, publicOrigin(cfg, r))
		if err != nil {
			logger.Debug("describe failed", "step", step, "error", err)
			writeError(w, err.Error(), actions.HTTPStatus(err))
			return
		}

		writeJSON(w, descriptor, http.StatusOK)
	})
}

// handleOptions answers preflight requests with the shared headers and no body.
func handleOptions() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// handleExecute returns a handler that runs a step.
// POST /api/actions/geneva/{step}?prompt=...&tier=...&url=...
func handleExecute(exec Executor, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		step := actions.StepName(r.PathValue("step"))

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req actions.StepRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			var maxBytesErr *http.MaxBytesError
			switch {
			case errors.As(err, &maxBytesErr):
				writeError(w, "request body too large", http.StatusBadRequest)
			case errors.Is(err, io.EOF):
				writeError(w, `invalid "account" provided`, http.StatusBadRequest)
			default:
				writeError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			}
			return
		}

		start := time.Now()
		resp, err := exec.Execute(r.Context(), step, req, r.URL.Query(), requestURL(r))
		if err != nil {
			logger.Warn("step failed",
				"step", step,
				"account", req.Account,
				"duration", time.Since(start),
				"error", err,
			)
			writeError(w, err.Error(), actions.HTTPStatus(err))
			return
		}

		logger.Info("step completed",
			"step", step,
			"account", req.Account,
			"type", resp.Type,
			"duration", time.Since(start),
		)
		writeJSON(w, resp, http.StatusOK)
	})
}

type actionsRule struct {
	PathPattern string `json:"pathPattern"`
	APIPath     string `json:"apiPath"`
}

type actionsManifest struct {
	Rules []actionsRule `json:"rules"`
}

// handleActionsJSON serves the rules file that lets clients unfurl the action
// routes when they are shared as plain links.
// GET /actions.json
func handleActionsJSON() http.Handler {
	manifest := actionsManifest{
		Rules: []actionsRule{
			{PathPattern: "/api/actions/**", APIPath: "/api/actions/**"},
		},
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, manifest, http.StatusOK)
	})
}

// handleBlinkQR returns a PNG QR code of the solana-action: URL of a step.
// GET /api/v1/blink/qr?step=generate&size=256
func handleBlinkQR(cfg *config.Config, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		step := actions.StepName(query.Get("step"))
		if step == "" {
			step = actions.StepGenerate
		}
		if !knownStep(step) {
			writeError(w, "unknown step: "+string(step), http.StatusNotFound)
			return
		}

		size := defaultQRSize
		if sizeStr := query.Get("size"); sizeStr != "" {
			parsed, err := strconv.Atoi(sizeStr)
			if err != nil {
				writeError(w, "invalid size parameter: must be an integer", http.StatusBadRequest)
				return
			}
			if parsed < 64 || parsed > maxQRSize {
				writeError(w, "size must be between 64 and 1024", http.StatusBadRequest)
				return
			}
			size = parsed
		}

		png, err := generateQRCode(blinkURL(publicOrigin(cfg, r), step), size)
		if err != nil {
			logger.Error("failed to generate QR code", "step", step, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.WriteHeader(http.StatusOK)
		w.Write(png)
	})
}

// generationResponse is the API representation of a ledger row.
type generationResponse struct {
	ID         string    `json:"id"`
	Step       string    `json:"step"`
	Account    string    `json:"account"`
	Signature  *string   `json:"signature,omitempty"`
	Prompt     *string   `json:"prompt,omitempty"`
	Tier       *string   `json:"tier,omitempty"`
	ImageURL   *string   `json:"image_url,omitempty"`
	AssetID    *string   `json:"asset_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// handleListGenerations returns a handler that lists the recorded steps of an account.
// GET /api/v1/generations?account={account}&limit={limit}&with_image={bool}
func handleListGenerations(ledger Ledger, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		account := query.Get("account")
		if account == "" {
			writeError(w, "account query parameter is required", http.StatusBadRequest)
			return
		}
		if _, err := solanago.PublicKeyFromBase58(account); err != nil {
			writeError(w, `invalid "account" provided`, http.StatusBadRequest)
			return
		}

		limit := int32(defaultGenerations)
		if limitStr := query.Get("limit"); limitStr != "" {
			parsed, err := strconv.Atoi(limitStr)
			if err != nil {
				writeError(w, "invalid limit parameter: must be an integer", http.StatusBadRequest)
				return
			}
			if parsed < 1 || parsed > maxGenerationsPerReq {
				writeError(w, "limit must be between 1 and 100", http.StatusBadRequest)
				return
			}
			limit = int32(parsed)
		}

		withImage := true
		if v := query.Get("with_image"); v != "" {
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				writeError(w, "invalid with_image parameter: must be a boolean", http.StatusBadRequest)
				return
			}
			withImage = parsed
		}

		events, err := ledger.ListActionEventsByAccount(r.Context(), account, withImage, limit)
		if err != nil {
			logger.Error("failed to list generations", "account", account, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		resp := make([]generationResponse, len(events))
		for i, e := range events {
			resp[i] = generationToResponse(e)
		}

		writeJSON(w, map[string]interface{}{
			"generations": resp,
			"count":       len(resp),
		}, http.StatusOK)
	})
}

func generationToResponse(e *db.ActionEvent) generationResponse {
	return generationResponse{
		ID:         e.ID.String(),
		Step:       e.Step,
		Account:    e.Account,
		Signature:  e.Signature,
		Prompt:     e.Prompt,
		Tier:       e.Tier,
		ImageURL:   e.ImageURL,
		AssetID:    e.AssetID,
		OccurredAt: e.OccurredAt,
	}
}

func knownStep(step actions.StepName) bool {
	switch step {
	case actions.StepGenerate, actions.StepRender, actions.StepMint, actions.StepComplete:
		return true
	}
	return false
}

// blinkURL is the solana-action: URI wallets resolve to the step's endpoint.
func blinkURL(origin string, step actions.StepName) string {
	return "solana-action:" + url.QueryEscape(origin+actions.BasePath+"/"+string(step))
}

// generateQRCode encodes data as a square PNG of size pixels.
func generateQRCode(data string, size int) ([]byte, error) {
	qr, err := qrcode.New(data, qrcode.Medium)
	if err != nil {
		return nil, err
	}
	return qr.PNG(size)
}

// publicOrigin prefers the configured public URL and otherwise derives the
// origin from the request. Set PUBLIC_BASE_URL when the host clients see
// differs from the Host header.
func publicOrigin(cfg *config.Config, r *http.Request) string {
	if cfg.PublicBaseURL != "" {
		return cfg.PublicBaseURL
	}
	return requestOrigin(r)
}

// requestURL is the absolute URL the client POSTed to.
func requestURL(r *http.Request) string {
	return requestOrigin(r) + r.URL.RequestURI()
}

// requestOrigin is scheme and Host of r, honoring a TLS-terminating proxy.
func requestOrigin(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes the action error envelope.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, actions.ErrorResponse{Message: message}, statusCode)
}
