package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Request metrics
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "focusmunk_requests_total",
			Help: "Total number of API requests processed",
		},
		[]string{"method", "route", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "focusmunk_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Config lifecycle metrics
	ConfigsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "focusmunk_configs_created_total",
			Help: "Total configurations created",
		},
	)

	// Free time metrics
	SessionsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "focusmunk_free_time_sessions_started_total",
			Help: "Total free time sessions started",
		},
	)

	SessionsEnded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "focusmunk_free_time_sessions_ended_total",
			Help: "Total free time sessions ended",
		},
		[]string{"reason"},
	)

	FreeSecondsConsumed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "focusmunk_free_seconds_consumed_total",
			Help: "Total free time seconds consumed across all configurations",
		},
	)

	BudgetExhaustions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "focusmunk_budget_exhaustions_total",
			Help: "Total sessions terminated by exhausting the daily budget",
		},
	)

	// Auth metrics
	PasswordFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "focusmunk_password_failures_total",
			Help: "Total failed password verifications",
		},
	)

	// YouTube lookup metrics
	YouTubeLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "focusmunk_youtube_lookups_total",
			Help: "Total YouTube video info lookups",
		},
		[]string{"result"},
	)
)

// Session end reasons
const (
	EndReasonExplicit  = "explicit"
	EndReasonExhausted = "exhausted"
	EndReasonDisable   = "disable"
)

func init() {
	// Register all metrics
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		ConfigsCreated,
		SessionsStarted,
		SessionsEnded,
		FreeSecondsConsumed,
		BudgetExhaustions,
		PasswordFailures,
		YouTubeLookups,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			// Use systemd socket-activated listener
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
			// Create and bind listener ourselves
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
