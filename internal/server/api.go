package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"
)

const (
	internalErrorMessage = "Internal server error"
	unauthorizedMessage  = "Unauthorized - Invalid API key"
	rateLimitedMessage   = "Rate limit exceeded"
	recordedMessage      = "Analytics recorded"
)

// apiIngestHandler runs one report through the pipeline. Each stage either answers the request
// or hands on to the next; nothing is written unless every earlier stage passed.
func (s *Server) apiIngestHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := requestLogger(ctx, s.logger)

	if r.Method == http.MethodOptions {
		setCORSHeaders(w.Header())
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
		s.incr("analytics.ingest", "outcome:preflight")
		return
	}

	presented := bearerCredential(r)
	if !checkCredential(presented, s.apiKey) {
		logger.WithField("received_key", presence(presented)).Warn("rejected request with invalid API key")
		writeJSON(w, logger, http.StatusUnauthorized, errorResponse{
			Error: unauthorizedMessage,
			Debug: &authDebug{
				ReceivedKey: presence(presented),
				ExpectedKey: presence(s.apiKey),
			},
		})
		s.incr("analytics.ingest", "outcome:unauthorized")
		return
	}

	origin := getOrigin(r)

	data, err := io.ReadAll(r.Body)
	if err != nil {
		s.fail(w, logger, "failed to read request body", err)
		return
	}
	body, err := decodeBody(data)
	if err != nil {
		s.fail(w, logger, "failed to decode request body", err)
		return
	}

	fields, err := validatePayload(body)
	if err != nil {
		var missing *MissingFieldsError
		if errors.As(err, &missing) {
			logger.WithField("missing", missing.Fields).Info("rejected incomplete report")
			writeError(w, logger, http.StatusBadRequest, missing.Error())
			s.incr("analytics.ingest", "outcome:invalid")
			return
		}
		s.fail(w, logger, "failed to validate request body", err)
		return
	}

	allowed, cnt, err := s.limiter.allow(ctx, origin)
	if err != nil {
		s.fail(w, logger, "failed to check rate limit", err)
		return
	}
	if !allowed {
		logger.WithField("count", cnt).Warn("rate limited origin")
		writeError(w, logger, http.StatusTooManyRequests, rateLimitedMessage)
		s.incr("analytics.ingest", "outcome:rate_limited")
		return
	}

	record, err := buildRecord(fields, origin)
	if err != nil {
		s.fail(w, logger, "failed to build analytics record", err)
		return
	}
	now := s.now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now
	if err := s.store.UpsertAnalyticsRecord(ctx, record); err != nil {
		s.fail(w, logger, "failed to store analytics record", err)
		return
	}

	logger.WithFields(logrus.Fields{
		"first_install_date": record.FirstInstallDate,
		"platform":           record.Platform,
	}).Debug("recorded analytics")
	writeJSON(w, logger, http.StatusOK, successResponse{Success: true, Message: recordedMessage})
	s.incr("analytics.ingest", "outcome:accepted")
}

// fail logs the underlying error and answers with the generic server error.
func (s *Server) fail(w http.ResponseWriter, logger logrus.FieldLogger, msg string, err error) {
	logger.WithError(err).Error(msg)
	writeError(w, logger, http.StatusInternalServerError, internalErrorMessage)
	s.incr("analytics.ingest", "outcome:error")
}
