package server

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/voxsched/voxsched/pkg/auth"
	"github.com/voxsched/voxsched/pkg/calendar"
	"github.com/voxsched/voxsched/pkg/call"
	"github.com/voxsched/voxsched/pkg/gateway/config"
	"github.com/voxsched/voxsched/pkg/gateway/handlers"
	"github.com/voxsched/voxsched/pkg/gateway/mw"
	"github.com/voxsched/voxsched/pkg/pipeline"
	"github.com/voxsched/voxsched/pkg/telephony"
)

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	registry *call.Registry
	outcomes *call.Outcomes
	tokens   *auth.Manager

	httpClient *http.Client
}

// New wires the gateway. The extractor and token store are injected because
// their construction depends on runtime credentials the caller owns.
func New(cfg config.Config, logger *slog.Logger, extractor pipeline.Extractor, store auth.Store) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout: 10 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
		},
	}

	refresher := auth.NewGoogleRefresher(cfg.GoogleClientID, cfg.GoogleClientSecret,
		auth.WithHTTPClient(httpClient))
	tokens := auth.NewManager(store, refresher, logger)

	cal := calendar.New(
		calendar.WithTimeZone(cfg.CalendarTimeZone),
		calendar.WithHTTPClient(httpClient),
	)

	s := &Server{
		cfg:        cfg,
		logger:     logger,
		mux:        http.NewServeMux(),
		registry:   call.NewRegistry(logger),
		outcomes:   call.NewOutcomes(cfg.OutcomeHistoryLimit),
		tokens:     tokens,
		httpClient: httpClient,
	}

	runner := pipeline.NewRunner(extractor, cal, tokens, cfg.CalendarID, logger)
	finisher := handlers.Finisher{
		Registry: s.registry,
		Outcomes: s.outcomes,
		Runner:   runner,
		Timeout:  cfg.PipelineTimeout,
		Logger:   logger,
	}

	twilio := telephony.New(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber,
		telephony.WithBaseURL(cfg.TwilioBaseURL),
		telephony.WithHTTPClient(httpClient),
	)

	s.routes(twilio, finisher)
	return s
}

func (s *Server) routes(twilio *telephony.Client, finisher handlers.Finisher) {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Registry: s.registry})

	s.mux.Handle("/api/calls", handlers.CallsHandler{
		Config:    s.cfg,
		Telephony: twilio,
		Registry:  s.registry,
		Logger:    s.logger,
	})
	s.mux.Handle("/api/calls/", handlers.MeetingHandler{
		Registry: s.registry,
		Outcomes: s.outcomes,
		Logger:   s.logger,
	})

	s.mux.Handle("/api/twilio/voice", handlers.VoiceHandler{
		Config: s.cfg,
		Logger: s.logger,
	})
	s.mux.Handle("/api/twilio/media-stream", handlers.StreamHandler{
		Config:   s.cfg,
		Registry: s.registry,
		Finisher: finisher,
		Logger:   s.logger,
	})
	s.mux.Handle("/api/twilio/status", handlers.StatusHandler{
		Registry: s.registry,
		Finisher: finisher,
		Logger:   s.logger,
	})

	s.mux.Handle("/api/users/", handlers.TokensHandler{
		Tokens: s.tokens,
		Logger: s.logger,
	})

	s.mux.Handle("/", handlers.NotFoundHandler{})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}
