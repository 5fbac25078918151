package server

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"
)

const (
	allowOrigin  = "*"
	allowHeaders = "authorization, x-client-info, apikey, content-type, x-api-key"
)

type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error string     `json:"error"`
	Debug *authDebug `json:"debug,omitempty"`
}

// authDebug says whether each side of the credential check had a value, never the values.
type authDebug struct {
	ReceivedKey string `json:"receivedKey"`
	ExpectedKey string `json:"expectedKey"`
}

// setCORSHeaders is applied to every response, including errors and preflight.
func setCORSHeaders(h http.Header) {
	h.Set("Access-Control-Allow-Origin", allowOrigin)
	h.Set("Access-Control-Allow-Headers", allowHeaders)
}

func writeJSON(w http.ResponseWriter, logger logrus.FieldLogger, status int, body any) {
	resp, err := json.Marshal(body)
	if err != nil {
		// Only our own response types reach here.
		panic(err)
	}
	setCORSHeaders(w.Header())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(resp); err != nil {
		logger.WithError(err).Warn("failed to write response")
	}
}

func writeError(w http.ResponseWriter, logger logrus.FieldLogger, status int, msg string) {
	writeJSON(w, logger, status, errorResponse{Error: msg})
}
