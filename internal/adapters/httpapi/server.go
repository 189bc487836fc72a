package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/mikey/llm-freight-intake/internal/adapters/intake"
	"github.com/mikey/llm-freight-intake/internal/config"
	"github.com/mikey/llm-freight-intake/internal/core"
	"github.com/mikey/llm-freight-intake/internal/utils"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const requestTimeout = 2 * time.Minute

// RecordReader is the read side of the repository exposed over HTTP
type RecordReader interface {
	GetClarification(ctx context.Context, brokerID, id string) (*core.ClarificationRequest, error)
	GetLoad(ctx context.Context, brokerID, id string) (*core.Load, error)
}

// Server accepts emails posted by webhook providers and serves read access
// to clarification requests, loads and metrics
type Server struct {
	handler         *intake.Handler
	records         RecordReader
	textProcessor   *utils.TextProcessor
	logger          *zap.Logger
	addr            string
	maxMessageBytes int64
	srv             *http.Server
	listener        net.Listener
}

// EmailRequest is the JSON form of an inbound email
type EmailRequest struct {
	BrokerID   string    `json:"broker_id"`
	From       string    `json:"from"`
	To         []string  `json:"to"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	HTML       string    `json:"html"`
	MessageID  string    `json:"message_id"`
	InReplyTo  string    `json:"in_reply_to"`
	References []string  `json:"references"`
	ReceivedAt time.Time `json:"received_at"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewServer creates a new HTTP API server
func NewServer(handler *intake.Handler, records RecordReader, tp *utils.TextProcessor, logger *zap.Logger, cfg config.ServerConfig) *Server {
	maxBytes := cfg.MaxMessageBytes
	if maxBytes <= 0 {
		maxBytes = 10 * 1024 * 1024
	}
	return &Server{
		handler:         handler,
		records:         records,
		textProcessor:   tp,
		logger:          logger,
		addr:            cfg.HTTPAddress,
		maxMessageBytes: maxBytes,
	}
}

// Router builds the route table
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/emails", s.postEmail)
		r.Get("/brokers/{brokerID}/clarifications/{id}", s.getClarification)
		r.Get("/brokers/{brokerID}/loads/{id}", s.getLoad)
	})
	return r
}

// Start binds the listener and serves in the background
func (s *Server) Start() error {
	l, err := net.Listen("tcp", s.addr)
	if err != nil {
		return eris.Wrapf(err, "httpapi: listen on %s", s.addr)
	}
	s.listener = l
	s.srv = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("HTTP API starting", zap.String("address", l.Addr().String()))
	go func() {
		if err := s.srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
	return nil
}

// Stop drains in-flight requests
func (s *Server) Stop() error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		return eris.Wrap(err, "httpapi: shutdown")
	}
	return nil
}

func (s *Server) postEmail(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxMessageBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "message too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "failed to read request body"})
		return
	}

	email, err := s.decodeEmail(r.Header.Get("Content-Type"), body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	result, err := s.handler.Handle(ctx, email)
	if err != nil {
		s.logger.Error("Failed to process posted email",
			zap.Error(err),
			zap.String("request_id", middleware.GetReqID(r.Context())))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "processing failed"})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) decodeEmail(contentType string, body []byte) (*core.Email, error) {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType != "application/json" {
		email, err := intake.ParseMessage(body, s.textProcessor)
		if err != nil {
			return nil, eris.Wrap(err, "invalid message")
		}
		return email, nil
	}

	var req EmailRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, eris.New("invalid request body")
	}
	if req.From == "" {
		return nil, eris.New("from is required")
	}
	text := req.Body
	if text == "" && req.HTML != "" {
		text = s.textProcessor.HTMLToText(req.HTML)
	}
	if text == "" && req.Subject == "" {
		return nil, eris.New("subject or body is required")
	}
	received := req.ReceivedAt
	if received.IsZero() {
		received = time.Now()
	}
	return &core.Email{
		From:       core.NormalizeAddress(req.From),
		To:         req.To,
		Subject:    req.Subject,
		Body:       s.textProcessor.SanitizeUTF8(text),
		MessageID:  req.MessageID,
		InReplyTo:  req.InReplyTo,
		References: req.References,
		BrokerID:   req.BrokerID,
		Headers:    map[string][]string{},
		ReceivedAt: received,
	}, nil
}

func (s *Server) getClarification(w http.ResponseWriter, r *http.Request) {
	req, err := s.records.GetClarification(r.Context(), chi.URLParam(r, "brokerID"), chi.URLParam(r, "id"))
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) getLoad(w http.ResponseWriter, r *http.Request) {
	load, err := s.records.GetLoad(r.Context(), chi.URLParam(r, "brokerID"), chi.URLParam(r, "id"))
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, load)
}

func (s *Server) writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, core.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
		return
	}
	s.logger.Error("Lookup failed", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "lookup failed"})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
