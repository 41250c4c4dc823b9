package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"i4.energy/across/mbmril/modem"
	"i4.energy/across/mbmril/ril"
)

// DefaultRequestTimeout bounds how long an HTTP caller waits for a
// completion. It is longer than the channel's default command timeout.
const DefaultRequestTimeout = 5 * time.Minute

// Server exposes the RIL over HTTP.
type Server struct {
	Logger  *slog.Logger
	Radio   Radio
	Host    *Host
	Timeout time.Duration

	once   sync.Once
	router *mux.Router
}

// ServeHTTP implements the http.Handler interface for the Server struct
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.once.Do(func() {
		s.router = mux.NewRouter()
		s.router.HandleFunc("/requests/{name}", s.handleRequest).Methods(http.MethodPost)
		s.router.HandleFunc("/sms", s.handleSMS).Methods(http.MethodPost)
		s.router.HandleFunc("/at", s.handleAT).Methods(http.MethodPost)
		s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
		s.router.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)
	})
	s.router.ServeHTTP(w, r)
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	if message == "" {
		w.WriteHeader(statusCode)
		return
	}

	type ErrorResponse struct {
		Message string `json:"message"`
	}
	s.sendJSON(w, ErrorResponse{Message: message}, statusCode)
}

func (s *Server) sendJSON(w http.ResponseWriter, v any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Logger.Warn("Failed to write response", "error", err)
	}
}

func (s *Server) request(ctx context.Context, code ril.Code, data any) (Result, error) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.Host.Request(ctx, s.Radio, code, data)
}

// sendResult writes a completion with the HTTP status its RIL status maps
// to.
func (s *Server) sendResult(w http.ResponseWriter, res Result) {
	s.sendJSON(w, res, httpStatus(res.Status))
}

func httpStatus(status ril.Status) int {
	switch status {
	case ril.StatusSuccess:
		return http.StatusOK
	case ril.StatusRadioNotAvailable:
		return http.StatusServiceUnavailable
	case ril.StatusRequestNotSupported:
		return http.StatusNotImplemented
	case ril.StatusPasswordIncorrect, ril.StatusSIMPUK2:
		return http.StatusForbidden
	default:
		return http.StatusBadGateway
	}
}

// handleRequest dispatches the request named in the path. The body, if
// any, is decoded into the argument type the request expects.
func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	code, err := ril.ParseCode(mux.Vars(r)["name"])
	if err != nil {
		s.sendError(w, err.Error(), http.StatusNotFound)
		return
	}

	data := ril.DataFor(code)
	if data != nil {
		if err := json.NewDecoder(r.Body).Decode(data); err != nil && !errors.Is(err, io.EOF) {
			s.sendError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	res, err := s.request(r.Context(), code, data)
	if err != nil {
		s.Logger.Warn("Request not completed", "request", code, "error", err)
		s.sendError(w, err.Error(), http.StatusGatewayTimeout)
		return
	}

	s.Logger.Debug("Request completed", "request", code, "token", res.Token, "status", res.Status)
	s.sendResult(w, res)
}

// handleSMS processes incoming HTTP POST requests to send SMS messages
func (s *Server) handleSMS(w http.ResponseWriter, r *http.Request) {
	type SMSRequest struct {
		To      string `json:"to"`
		Message string `json:"message"`
	}

	var req SMSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.To == "" || req.Message == "" {
		s.sendError(w, "both 'to' and 'message' fields are required", http.StatusBadRequest)
		return
	}

	res, err := s.request(r.Context(), ril.RequestSendText, ril.TextMessage{To: req.To, Text: req.Message})
	if err != nil {
		s.Logger.Error("Failed to send SMS", "error", err, "to", req.To)
		s.sendError(w, err.Error(), http.StatusGatewayTimeout)
		return
	}
	if res.Status != ril.StatusSuccess {
		s.Logger.Error("Failed to send SMS", "status", res.Status, "to", req.To)
		s.sendResult(w, res)
		return
	}

	s.Logger.Info("SMS sent successfully", "to", req.To, "message_length", len(req.Message))
	s.sendResult(w, res)
}

// handleAT passes a command to the default channel and returns the reply
// as is, including modem errors.
func (s *Server) handleAT(w http.ResponseWriter, r *http.Request) {
	type ATRequest struct {
		Command string `json:"command"`
	}
	type ATResponse struct {
		Success       bool     `json:"success"`
		Final         string   `json:"final"`
		Intermediates []string `json:"intermediates"`
	}

	var req ATRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Command == "" {
		s.sendError(w, "'command' field is required", http.StatusBadRequest)
		return
	}

	ch, err := s.Radio.Session().Default()
	if err != nil {
		s.sendError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	resp, err := ch.Raw(r.Context(), req.Command)
	if resp == nil {
		s.Logger.Warn("AT command failed", "command", req.Command, "error", err)
		s.sendError(w, err.Error(), http.StatusBadGateway)
		return
	}

	s.sendJSON(w, ATResponse{
		Success:       resp.Success,
		Final:         resp.Final,
		Intermediates: resp.Intermediates,
	}, http.StatusOK)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	type StatusResponse struct {
		RadioState ril.RadioState                   `json:"radio_state"`
		ScreenOn   bool                             `json:"screen_on"`
		Channels   map[string]modem.MetricsSnapshot `json:"channels"`
	}

	session := s.Radio.Session()
	resp := StatusResponse{
		RadioState: session.RadioState(),
		ScreenOn:   session.ScreenOn(),
		Channels:   make(map[string]modem.MetricsSnapshot),
	}
	for _, lane := range []ril.Lane{ril.LaneNormal, ril.LanePrio} {
		if ch := s.Radio.Channel(lane); ch != nil {
			resp.Channels[lane.String()] = ch.Metrics().Snapshot()
		}
	}
	s.sendJSON(w, resp, http.StatusOK)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, s.Host.Events(), http.StatusOK)
}
