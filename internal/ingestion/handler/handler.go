package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/Asset-Ingestion-Service/internal/auth/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/Asset-Ingestion-Service/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Asset-Ingestion-Service/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/Asset-Ingestion-Service/internal/ingestion/signature"
	"github.com/Adithya-Monish-Kumar-K/Asset-Ingestion-Service/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/Asset-Ingestion-Service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Asset-Ingestion-Service/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Asset-Ingestion-Service/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Asset-Ingestion-Service/pkg/tracing"
)

// Internal reasons for a 401. They are logged and counted but never sent to
// the caller.
const (
	reasonMissingHeaders   = "missing_headers"
	reasonKeyMismatch      = "key_mismatch"
	reasonInvalidTimestamp = "invalid_timestamp"
	reasonStaleTimestamp   = "stale_timestamp"
	reasonBadSignature     = "bad_signature"
)

// Config carries the endpoint's secrets and limits.
type Config struct {
	Secret          string
	APIKeyID        string
	TimestampWindow time.Duration
	MaxBodyBytes    int64
	RateLimit       int
}

type Handler struct {
	cfg       Config
	limiter   ratelimit.Admitter
	publisher *publisher.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger

	now    func() time.Time
	verify func(secret []byte, timestamp string, body []byte, sig string) error
	parse  func(body []byte) (validator.Fields, error)
}

func New(cfg Config, limiter ratelimit.Admitter, pub *publisher.Publisher, m *metrics.Metrics) *Handler {
	return &Handler{
		cfg:       cfg,
		limiter:   limiter,
		publisher: pub,
		metrics:   m,
		logger:    slog.Default().With("component", "ingestion-handler"),
		now:       time.Now,
		verify:    signature.Verify,
		parse:     validator.Parse,
	}
}

// Ingest authenticates, validates, and stores one signed asset. Stages run
// cheapest first and stop at the first failure; nothing is written until
// every check has passed.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.StartSpan(r.Context(), "asset.ingest", logger.RequestID(r.Context()))
	defer func() {
		span.End()
		span.Log()
	}()
	log := logger.FromContext(ctx)

	if h.cfg.Secret == "" || h.cfg.APIKeyID == "" {
		log.Error("ingest endpoint misconfigured: shared secret or api key id not set")
		h.fail(w, metrics.OutcomeMisconfigured,
			apperrors.New(apperrors.ErrMisconfigured, http.StatusInternalServerError, "server misconfigured"))
		return
	}

	admitted, err := h.limiter.Admit(ctx)
	if err != nil {
		// The limiter is soft backpressure; an unreachable backend must not
		// take the endpoint down with it.
		log.Warn("rate limiter unavailable, admitting request", "error", err)
		admitted = true
	}
	if !admitted {
		log.Warn("ingest rate limit exceeded", "limit", h.cfg.RateLimit)
		h.fail(w, metrics.OutcomeRateLimited,
			apperrors.New(apperrors.ErrRateLimited, http.StatusTooManyRequests, "rate limit exceeded").
				WithDetail("limit", h.cfg.RateLimit))
		return
	}

	key := r.Header.Get(signature.HeaderKey)
	timestamp := r.Header.Get(signature.HeaderTimestamp)
	sig := r.Header.Get(signature.HeaderSignature)
	if key == "" || timestamp == "" || sig == "" {
		h.unauthorized(w, log, reasonMissingHeaders, nil)
		return
	}
	if key != h.cfg.APIKeyID {
		h.unauthorized(w, log, reasonKeyMismatch, nil)
		return
	}
	if err := signature.CheckTimestamp(timestamp, h.now(), h.cfg.TimestampWindow); err != nil {
		reason := reasonStaleTimestamp
		if errors.Is(err, signature.ErrInvalidTimestamp) {
			reason = reasonInvalidTimestamp
		}
		h.unauthorized(w, log, reason, err)
		return
	}

	body, tooLarge, err := h.readBody(r)
	if err != nil {
		log.Warn("failed to read request body", "error", err)
		h.fail(w, metrics.OutcomeMalformed,
			apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "could not read request body"))
		return
	}
	if tooLarge {
		log.Warn("ingest body too large", "max_bytes", h.cfg.MaxBodyBytes)
		h.fail(w, metrics.OutcomeTooLarge,
			apperrors.Newf(apperrors.ErrPayloadTooLarge, http.StatusRequestEntityTooLarge,
				"body exceeds %d bytes", h.cfg.MaxBodyBytes))
		return
	}

	if err := h.verify([]byte(h.cfg.Secret), timestamp, body, sig); err != nil {
		h.unauthorized(w, log, reasonBadSignature, err)
		return
	}

	fields, err := h.parse(body)
	if errors.Is(err, validator.ErrMalformedJSON) {
		h.fail(w, metrics.OutcomeMalformed,
			apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid JSON body"))
		return
	}
	var payload *ingestion.AssetPayload
	if err == nil {
		payload, err = validator.Validate(fields)
	}
	if err != nil {
		var vErr *validator.ValidationError
		if !errors.As(err, &vErr) {
			log.Error("unexpected validation failure", "error", err)
			h.fail(w, metrics.OutcomeInvalid,
				apperrors.New(apperrors.ErrInternal, http.StatusInternalServerError, "internal error"))
			return
		}
		h.fail(w, metrics.OutcomeInvalid,
			apperrors.New(apperrors.ErrValidation, http.StatusUnprocessableEntity, "validation failed").
				WithDetail("errors", vErr.Errors))
		return
	}
	span.SetAttr("title", payload.Title)

	entry, err := h.publisher.Ingest(ctx, payload)
	if err != nil {
		outcome := metrics.OutcomePersistFailure
		if errors.Is(err, apperrors.ErrDuplicateTitle) {
			outcome = metrics.OutcomeDuplicate
			log.Info("duplicate asset title rejected", "title", payload.Title)
		}
		h.fail(w, outcome, err)
		return
	}

	h.metrics.ObserveIngest(metrics.OutcomeCreated)
	log.Info("asset ingested",
		"asset_id", entry.ID,
		"asset_type", entry.AssetType,
		"is_premium", entry.IsPremium,
	)
	h.writeJSON(w, http.StatusCreated, ingestion.IngestResponse{
		AssetID:   entry.ID,
		Title:     entry.Title,
		AssetType: entry.AssetType,
		IsPremium: entry.IsPremium,
		CreatedAt: entry.CreatedAt,
	})
}

// GetAsset returns a stored catalog entry. It requires the configured API key
// but not a body signature.
func (h *Handler) GetAsset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	if h.cfg.APIKeyID == "" {
		log.Error("asset lookup misconfigured: api key id not set")
		h.writeAppError(w, apperrors.New(apperrors.ErrMisconfigured, http.StatusInternalServerError, "server misconfigured"))
		return
	}
	if r.Header.Get(signature.HeaderKey) != h.cfg.APIKeyID {
		h.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		h.writeError(w, http.StatusNotFound, "asset not found")
		return
	}
	entry, err := h.publisher.Get(ctx, id)
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, entry)
}

// readBody reads at most MaxBodyBytes. tooLarge is reported without reading
// past the limit.
func (h *Handler) readBody(r *http.Request) (body []byte, tooLarge bool, err error) {
	if r.ContentLength > h.cfg.MaxBodyBytes {
		return nil, true, nil
	}
	body, err = io.ReadAll(io.LimitReader(r.Body, h.cfg.MaxBodyBytes+1))
	if err != nil {
		return nil, false, err
	}
	if int64(len(body)) > h.cfg.MaxBodyBytes {
		return nil, true, nil
	}
	return body, false, nil
}

// unauthorized answers every authentication failure identically so callers
// cannot tell which check failed.
func (h *Handler) unauthorized(w http.ResponseWriter, log *slog.Logger, reason string, err error) {
	args := []any{"reason", reason}
	if err != nil {
		args = append(args, "error", err)
	}
	log.Warn("ingest authentication failed", args...)
	h.metrics.ObserveAuthFailure(reason)
	h.fail(w, metrics.OutcomeUnauthorized,
		apperrors.New(apperrors.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"))
}

func (h *Handler) fail(w http.ResponseWriter, outcome string, err error) {
	h.metrics.ObserveIngest(outcome)
	h.writeAppError(w, err)
}

func (h *Handler) writeAppError(w http.ResponseWriter, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		h.logger.Error("unclassified error", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	body := make(map[string]any, len(appErr.Details)+1)
	for k, v := range appErr.Details {
		body[k] = v
	}
	body["error"] = appErr.Message
	h.writeJSON(w, appErr.StatusCode, body)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
