package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sungrid/leadflow/internal/flows"
	"github.com/sungrid/leadflow/internal/models"
)

// handleFlowExchange is the endpoint the Flow runtime calls. The body is
// either an encrypted envelope or, for local development, a plaintext
// FlowRequest. Encrypted responses go back as bare base64 with Content-Type
// text/plain; plaintext responses are JSON.
func (s *Server) handleFlowExchange(w http.ResponseWriter, r *http.Request) {
	kind := models.FlowKind(chi.URLParam(r, "kind"))
	if !models.IsValidFlowKind(kind) {
		writeJSONResponse(w, http.StatusNotFound, models.Error("unknown flow"))
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("reading request body"))
		return
	}

	var env flows.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("invalid JSON body"))
		return
	}

	if env.IsEncrypted() {
		s.handleEncryptedExchange(w, kind, env)
		return
	}
	s.handlePlaintextExchange(w, kind, body)
}

func (s *Server) handleEncryptedExchange(w http.ResponseWriter, kind models.FlowKind, env flows.Envelope) {
	if s.privateKey == nil {
		slog.Error("encrypted flow request without configured private key", "kind", kind)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("flow encryption not configured"))
		return
	}

	payload, key, iv, err := flows.DecryptEnvelope(env, s.privateKey)
	if err != nil {
		s.writeFlowCryptoError(w, kind, err)
		return
	}

	var req flows.FlowRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("invalid flow payload"))
		return
	}

	res, err := s.flowHandler.Handle(kind, req)
	if err != nil {
		s.writeFlowHandlerError(w, kind, err)
		return
	}

	plaintext, err := json.Marshal(res)
	if err != nil {
		slog.Error("flow response marshal failed", "kind", kind, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("flow response failed"))
		return
	}
	encrypted, err := flows.EncryptResponse(plaintext, key, iv)
	if err != nil {
		slog.Error("flow response encryption failed", "kind", kind, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("flow response failed"))
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(encrypted)); err != nil {
		slog.Error("flow response write failed", "kind", kind, "error", err)
	}
}

func (s *Server) handlePlaintextExchange(w http.ResponseWriter, kind models.FlowKind, body []byte) {
	var req flows.FlowRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("invalid flow payload"))
		return
	}
	if req.Action == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("missing action"))
		return
	}

	res, err := s.flowHandler.Handle(kind, req)
	if err != nil {
		s.writeFlowHandlerError(w, kind, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(res); err != nil {
		slog.Error("flow response write failed", "kind", kind, "error", err)
	}
}

// writeFlowCryptoError maps envelope decryption failures onto the protocol's
// status codes. 421 tells the Flow client to refresh its cached public key.
func (s *Server) writeFlowCryptoError(w http.ResponseWriter, kind models.FlowKind, err error) {
	switch {
	case errors.Is(err, flows.ErrKeyMismatch):
		slog.Warn("flow envelope key mismatch", "kind", kind, "error", err)
		writeJSONResponse(w, http.StatusMisdirectedRequest, models.Error("encryption key mismatch"))
	case errors.Is(err, flows.ErrMalformedEnvelope):
		slog.Warn("malformed flow envelope", "kind", kind, "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("malformed envelope"))
	default:
		slog.Error("flow envelope decryption failed", "kind", kind, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("flow decryption failed"))
	}
}

func (s *Server) writeFlowHandlerError(w http.ResponseWriter, kind models.FlowKind, err error) {
	var badReq *flows.BadRequestError
	if errors.As(err, &badReq) {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(badReq.Reason))
		return
	}
	slog.Error("flow handling failed", "kind", kind, "error", err)
	writeJSONResponse(w, http.StatusInternalServerError, models.Error("flow handling failed"))
}
