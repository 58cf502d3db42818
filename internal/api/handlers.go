// Package api provides HTTP handlers for SlotPipe endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/BTreeMap/SlotPipe/internal/models"
)

// emptyTwiML tells Twilio to send no auto-reply to the inbound message.
const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

func (s *Server) cancellationHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.cancellationHandler: processing cancellation webhook", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.cancellationHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	accountID := strings.TrimSpace(r.Header.Get(AccountIDHeader))
	if accountID == "" {
		slog.Warn("Server.cancellationHandler: missing account header")
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing "+AccountIDHeader+" header"))
		return
	}

	var ev models.CancellationEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		slog.Warn("Server.cancellationHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	campaign, err := s.engine.HandleCancellation(r.Context(), accountID, ev)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrAccountNotFound):
			slog.Warn("Server.cancellationHandler: unknown account", "account", accountID)
			writeJSONResponse(w, http.StatusNotFound, models.Error("Account not found"))
		case errors.Is(err, models.ErrInvalidProviderKind) || errors.Is(err, models.ErrMissingSlotTime):
			slog.Warn("Server.cancellationHandler: validation failed", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		default:
			slog.Error("Server.cancellationHandler: failed to start campaign", "error", err, "account", accountID)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to start campaign"))
		}
		return
	}
	if campaign == nil {
		slog.Info("Server.cancellationHandler: no eligible candidates", "account", accountID)
		writeJSONResponse(w, http.StatusOK, models.Ignored("No eligible candidates for this opening"))
		return
	}

	slog.Info("Server.cancellationHandler: campaign started", "account", accountID, "campaign", campaign.ID)
	writeJSONResponse(w, http.StatusAccepted, models.Accepted("Campaign started"))
}

// emailReplyPayload is the inbound email webhook body posted by the mail
// ingress. The recipient address may carry a per-campaign reply token.
type emailReplyPayload struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body"`
}

func (s *Server) emailReplyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.emailReplyHandler: processing email reply", "method", r.Method)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.emailReplyHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var p emailReplyPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		slog.Warn("Server.emailReplyHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	reply := models.InboundReply{
		Channel:          models.ChannelEmail,
		Sender:           p.From,
		RecipientAddress: p.To,
		Body:             p.Body,
	}
	if err := s.engine.HandleReply(r.Context(), reply); err != nil {
		if errors.Is(err, models.ErrInvalidChannel) || errors.Is(err, models.ErrEmptySender) || errors.Is(err, models.ErrReplyBodyTooLong) {
			slog.Warn("Server.emailReplyHandler: validation failed", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		slog.Error("Server.emailReplyHandler: failed to process reply", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process reply"))
		return
	}

	slog.Debug("Server.emailReplyHandler: reply processed", "from", p.From)
	writeJSONResponse(w, http.StatusOK, models.Success(nil))
}

func (s *Server) smsReplyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.smsReplyHandler: processing SMS reply", "method", r.Method)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.smsReplyHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseForm(); err != nil {
		slog.Warn("Server.smsReplyHandler: failed to parse form", "error", err)
		s.writeTwiML(w)
		return
	}
	reply := models.InboundReply{
		Channel: models.ChannelText,
		Sender:  r.FormValue("From"),
		Body:    r.FormValue("Body"),
	}

	// Twilio retries non-2xx responses, and a failed inbound reply is not
	// recoverable by retrying, so always acknowledge.
	if err := s.engine.HandleReply(r.Context(), reply); err != nil {
		slog.Warn("Server.smsReplyHandler: failed to process reply", "error", err, "from", reply.Sender)
	} else {
		slog.Debug("Server.smsReplyHandler: reply processed", "from", reply.Sender)
	}
	s.writeTwiML(w)
}

// writeTwiML acknowledges a Twilio webhook with an empty TwiML document so no
// automatic reply is sent to the contact.
func (s *Server) writeTwiML(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/xml")
	w.Header().Set("Content-Length", strconv.Itoa(len(emptyTwiML)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(emptyTwiML)); err != nil {
		slog.Error("Server.writeTwiML: failed to write TwiML response", "error", err)
	}
}

func (s *Server) campaignsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.campaignsHandler: processing list request", "method", r.Method)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		slog.Warn("Server.campaignsHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	campaigns, err := s.campaigns.ListCampaigns()
	if err != nil {
		slog.Error("Server.campaignsHandler: failed to list campaigns", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list campaigns"))
		return
	}
	slog.Debug("Server.campaignsHandler: retrieved campaigns", "count", len(campaigns))
	writeJSONResponse(w, http.StatusOK, models.Success(campaigns))
}

func (s *Server) campaignHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.campaignHandler: processing get request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		slog.Warn("Server.campaignHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/campaigns/")
	if id == "" || strings.Contains(id, "/") {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid campaign id"))
		return
	}

	campaign, err := s.campaigns.GetCampaign(id)
	if err != nil {
		slog.Error("Server.campaignHandler: failed to get campaign", "error", err, "campaign", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to get campaign"))
		return
	}
	if campaign == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Campaign not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(campaign))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Service is healthy", nil))
}
