package server

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pixwallet/internal/clock"
	"pixwallet/internal/config"
	"pixwallet/internal/handler"
	"pixwallet/internal/idempotency"
	"pixwallet/internal/keyedlease"
	"pixwallet/internal/metrics"
	"pixwallet/internal/repository"
	"pixwallet/internal/scheduler"
	"pixwallet/internal/transfer"
	"pixwallet/internal/usecase"
	"pixwallet/internal/walletengine"
)

const maxWalletLocks = 1000

// Server represents the HTTP server and everything it owns.
type Server struct {
	router    *mux.Router
	server    *http.Server
	db        *sql.DB
	scheduler *scheduler.Scheduler
	logger    *slog.Logger
	port      string
}

// NewServer creates a new server instance wired end to end: database,
// repositories, the wallet engine, idempotency and transfer services, the
// HTTP surface, metrics, and the housekeeping scheduler.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sql.Open("postgres", cfg.GetDBConnectionString())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	if logger != nil {
		logger.Info("successfully connected to database")
	}

	store := repository.NewStore(db, logger)
	clk := clock.Real{}

	walletLeases := keyedlease.New(maxWalletLocks)
	engine := walletengine.New(store, walletLeases, clk, logger)
	idemService := idempotency.New(store, clk, logger)
	atomicService := transfer.New(store, engine, clk, logger)

	walletUseCase := usecase.NewWalletUseCase(store, engine, clk, logger)
	orchestrator := usecase.NewTransferOrchestrator(store, atomicService, idemService, clk, logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	walletHandler := handler.NewWalletHandler(walletUseCase, m)
	transferHandler := handler.NewTransferHandler(orchestrator, idemService, m, logger)

	sched, err := scheduler.New(atomicService, idemService, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	router := mux.NewRouter()
	router.Use(loggingMiddleware(logger))

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/wallets", walletHandler.CreateWallet).Methods("POST")
	api.HandleFunc("/wallets/{id}/pix-keys", walletHandler.RegisterPixKey).Methods("POST")
	api.HandleFunc("/wallets/{id}/balance", walletHandler.GetBalance).Methods("GET")
	api.HandleFunc("/wallets/{id}/deposit", walletHandler.Deposit).Methods("POST")
	api.HandleFunc("/wallets/{id}/withdraw", walletHandler.Withdraw).Methods("POST")
	api.HandleFunc("/pix/transfers", transferHandler.CreateTransfer).Methods("POST")
	api.HandleFunc("/pix/webhook", transferHandler.HandleWebhook).Methods("POST")

	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods("GET")

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy", "error": "database unavailable"})
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}).Methods("GET")

	return &Server{
		router:    router,
		db:        db,
		scheduler: sched,
		logger:    logger,
	}, nil
}

// ApplyMigrations runs every *.sql file in fsys's migrations directory, in
// filename order, against connStr. Shared by production bootstrap and the
// integration test harness.
func ApplyMigrations(fsys embed.FS, connStr string) error {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return err
	}
	defer db.Close()

	files, err := fsys.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name() < files[j].Name() })

	for _, f := range files {
		if !strings.HasSuffix(f.Name(), ".sql") {
			continue
		}

		path := filepath.Join("migrations", f.Name())
		sqlBytes, err := fsys.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", f.Name(), err)
		}

		if _, err := db.Exec(string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", f.Name(), err)
		}
	}

	return nil
}

func loggingMiddleware(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.statusCode,
				"duration", time.Since(start),
				"user_agent", r.UserAgent(),
			)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server on the specified port, using ":0" to let the
// OS pick a free port.
func (s *Server) Start(port string) (string, error) {
	listener, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return "", err
	}

	addr := listener.Addr().(*net.TCPAddr)
	s.port = strconv.Itoa(addr.Port)

	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if s.logger != nil {
		s.logger.Info("starting server", "port", s.port)
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			if s.logger != nil {
				s.logger.Error("server failed to start", "error", err)
			}
		}
	}()

	return s.port, nil
}

// Stop gracefully shuts down the HTTP server, the scheduler, and the
// database connection.
func (s *Server) Stop(ctx context.Context) error {
	if s.logger != nil {
		s.logger.Info("shutting down server")
	}

	if s.scheduler != nil {
		if err := s.scheduler.Stop(); err != nil && s.logger != nil {
			s.logger.Error("scheduler shutdown failed", "error", err)
		}
	}

	if s.db != nil {
		defer s.db.Close()
	}

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// GetPort returns the port the server is listening on.
func (s *Server) GetPort() string { return s.port }

// GetBaseURL returns the base URL for the server.
func (s *Server) GetBaseURL() string { return "http://localhost:" + s.port }

// GetRouter returns the router for testing purposes.
func (s *Server) GetRouter() *mux.Router { return s.router }

// StartServer starts the server with the given configuration.
func StartServer(cfg *config.Config) (*Server, string, error) {
	var logger *slog.Logger
	if cfg.ServerPort == "0" {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	} else {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}

	srv, err := NewServer(cfg, logger)
	if err != nil {
		return nil, "", err
	}

	port, err := srv.Start(cfg.ServerPort)
	if err != nil {
		return nil, "", err
	}

	return srv, port, nil
}
