package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/riskgate/internal/auth"
	"github.com/BradenHooton/riskgate/internal/models"
	"github.com/BradenHooton/riskgate/internal/services"
	pkghttp "github.com/BradenHooton/riskgate/pkg/http"
	"github.com/go-chi/chi/v5"
)

// FlowRegistry holds the login flows in progress
type FlowRegistry interface {
	Start(client models.ClientContext) *services.LoginFlow
	Get(id string) (*services.LoginFlow, error)
	Remove(id string)
}

// LoginHandler drives login flows over HTTP
type LoginHandler struct {
	flows    FlowRegistry
	timing   *auth.TimingDelay
	ipConfig *pkghttp.IPConfig
	logger   *slog.Logger
}

// NewLoginHandler creates a new LoginHandler
func NewLoginHandler(flows FlowRegistry, timing *auth.TimingDelay, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *LoginHandler {
	return &LoginHandler{
		flows:    flows,
		timing:   timing,
		ipConfig: ipConfig,
		logger:   logger,
	}
}

// clientContext describes the caller from transport metadata
func (h *LoginHandler) clientContext(r *http.Request) models.ClientContext {
	return models.ClientContext{
		IPAddress:      pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent:      r.UserAgent(),
		AcceptLanguage: r.Header.Get("Accept-Language"),
	}
}

// Login handles POST /auth/login. Without a flow_id a new flow is started;
// with one, credentials are retried on the existing flow.
func (h *LoginHandler) Login(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	var flow *services.LoginFlow
	if req.FlowID != "" {
		existing, err := h.flows.Get(req.FlowID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		flow = existing
	} else {
		flow = h.flows.Start(h.clientContext(r))
	}

	res, err := flow.SubmitCredentials(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, models.ErrInvalidCredentials) {
			h.timing.WaitFrom(r.Context(), start)
		}
		h.writeFlowError(w, res, err)
		return
	}

	h.respond(w, res)
}

// GetFlow handles GET /auth/login/{flowID}
func (h *LoginHandler) GetFlow(w http.ResponseWriter, r *http.Request) {
	flow, err := h.flows.Get(chi.URLParam(r, "flowID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{
		FlowID: flow.ID(),
		State:  flow.State(),
	})
}

// SubmitSecondFactor handles POST /auth/login/{flowID}/second-factor
func (h *LoginHandler) SubmitSecondFactor(w http.ResponseWriter, r *http.Request) {
	flow, err := h.flows.Get(chi.URLParam(r, "flowID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	var req SecondFactorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	method, err := models.ParseTwoFactorMethod(req.Method)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	res, err := flow.SubmitSecondFactor(r.Context(), method, req.Code, h.clientContext(r))
	if err != nil {
		h.writeFlowError(w, res, err)
		return
	}

	h.respond(w, res)
}

// SendSecondFactorCode handles POST /auth/login/{flowID}/second-factor/send
func (h *LoginHandler) SendSecondFactorCode(w http.ResponseWriter, r *http.Request) {
	flow, err := h.flows.Get(chi.URLParam(r, "flowID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	channel, err := flow.SendSecondFactorCode(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusAccepted, CodeSentResponse{Channel: channel})
}

// ResolveVerification handles POST /auth/login/{flowID}/verification
func (h *LoginHandler) ResolveVerification(w http.ResponseWriter, r *http.Request) {
	flow, err := h.flows.Get(chi.URLParam(r, "flowID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	var req VerificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	res, err := flow.ResolveAdditionalVerification(r.Context(), *req.Confirm)
	if err != nil {
		h.writeFlowError(w, res, err)
		return
	}

	h.respond(w, res)
}

// respond writes the flow result and drops flows that accept no further input
func (h *LoginHandler) respond(w http.ResponseWriter, res *services.LoginResult) {
	if res.State.IsTerminal() {
		h.flows.Remove(res.FlowID)
	}
	pkghttp.WriteJSON(w, http.StatusOK, toLoginResponse(res))
}

// writeFlowError echoes the flow alongside a mapped error so the client can
// re-prompt on the same flow
func (h *LoginHandler) writeFlowError(w http.ResponseWriter, res *services.LoginResult, err error) {
	m, ok := lookupError(err)
	if !ok {
		h.logger.Error("login flow failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}
	if res == nil {
		pkghttp.WriteError(w, m.status, m.code, m.message)
		return
	}

	pkghttp.WriteJSON(w, m.status, LoginErrorResponse{
		Error:   m.code,
		Message: m.message,
		FlowID:  res.FlowID,
		State:   res.State,
	})
}
