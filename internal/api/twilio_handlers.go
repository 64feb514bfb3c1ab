package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/AgentBuilder/internal/session"
	"github.com/BTreeMap/AgentBuilder/internal/twiliowhatsapp"
)

// emptyTwiML acknowledges a webhook without an inline reply; replies go out via the REST API.
const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

func writeTwiML(w http.ResponseWriter, statusCode int) {
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(statusCode)
	if _, err := w.Write([]byte(emptyTwiML)); err != nil {
		slog.Error("Server.writeTwiML: failed to write response", "error", err)
	}
}

// twilioWebhookHandler handles POST /twilio/webhook
func (s *Server) twilioWebhookHandler(w http.ResponseWriter, r *http.Request) {
	msg, err := twiliowhatsapp.ParseInbound(r, s.validator)
	switch {
	case errors.Is(err, twiliowhatsapp.ErrInvalidSignature):
		slog.Warn("Server.twilioWebhookHandler: invalid signature", "remoteAddr", r.RemoteAddr)
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	case err != nil:
		slog.Warn("Server.twilioWebhookHandler: bad request", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if msg.Body == "" {
		slog.Debug("Server.twilioWebhookHandler: ignoring message without text", "from", msg.From, "messageSID", msg.MessageSID)
		writeTwiML(w, http.StatusOK)
		return
	}

	sessionID := session.WhatsAppSessionID(msg.From)
	slog.Debug("Server.twilioWebhookHandler: inbound message", "from", msg.From, "sessionID", sessionID, "messageSID", msg.MessageSID)

	ctx := r.Context()
	resp, duplicate, err := s.sessions.Converse(ctx, sessionID, msg.MessageSID, msg.Body)
	if err != nil {
		code, text := errorStatus(err)
		if code >= http.StatusInternalServerError {
			slog.Error("Server.twilioWebhookHandler: failed to process message", "error", err, "sessionID", sessionID)
			http.Error(w, text, code)
			return
		}
		slog.Warn("Server.twilioWebhookHandler: message rejected", "error", err, "sessionID", sessionID)
		if sendErr := s.sender.SendMessage(ctx, msg.From, text); sendErr != nil {
			slog.Error("Server.twilioWebhookHandler: failed to send rejection", "error", sendErr, "to", msg.From)
		}
		writeTwiML(w, http.StatusOK)
		return
	}

	// A redelivered MessageSid resends the recorded reply; the turn is not run again.
	reply := session.ReplyText(resp)
	if duplicate && reply == "" {
		writeTwiML(w, http.StatusOK)
		return
	}
	if err := s.sender.SendMessage(ctx, msg.From, reply); err != nil {
		slog.Error("Server.twilioWebhookHandler: failed to send reply", "error", err, "to", msg.From, "sessionID", sessionID)
		http.Error(w, "failed to send reply", http.StatusBadGateway)
		return
	}
	slog.Info("WhatsApp reply sent", "sessionID", sessionID, "stage", resp.Stage, "duplicate", duplicate)
	writeTwiML(w, http.StatusOK)
}
