package web

import (
	"context"
	"fmt"
	"net/http"

	"github.com/vitos/lendflow/internal/domain"
	"github.com/vitos/lendflow/internal/usecase"
	"go.uber.org/zap"
)

// WalletConnector is the wallet surface the controllers need.
type WalletConnector interface {
	domain.WalletProvider
	Connect(address string) error
	Disconnect()
}

type Server struct {
	router  *http.ServeMux
	server  *http.Server
	app     *usecase.AppState
	wallet  WalletConnector
	metrics http.Handler
	logger  *zap.Logger
}

// NewServer wires the JSON controllers. metrics may be nil.
func NewServer(
	port int,
	app *usecase.AppState,
	wallet WalletConnector,
	metrics http.Handler,
	logger *zap.Logger,
) *Server {
	s := &Server{
		router:  http.NewServeMux(),
		app:     app,
		wallet:  wallet,
		metrics: metrics,
		logger:  logger,
	}
	s.routes()
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.router,
	}
	return s
}

func (s *Server) routes() {
	// Forms
	s.router.HandleFunc("GET /api/forms/{form}", s.handleFormView)
	s.router.HandleFunc("POST /api/forms/{form}/values", s.handleSetFormValues)
	s.router.HandleFunc("POST /api/forms/{form}/steps/{step}", s.handleRunStep)

	// Read-only slices
	s.router.HandleFunc("GET /api/markets", s.handleMarkets)
	s.router.HandleFunc("GET /api/markets/{id}", s.handleMarket)
	s.router.HandleFunc("GET /api/loans", s.handleLoans)
	s.router.HandleFunc("GET /api/prices", s.handlePrices)
	s.router.HandleFunc("GET /api/history", s.handleHistory)

	// Page and wallet state
	s.router.HandleFunc("POST /api/visibility", s.handleVisibility)
	s.router.HandleFunc("POST /api/wallet", s.handleConnectWallet)
	s.router.HandleFunc("DELETE /api/wallet", s.handleDisconnectWallet)

	if s.metrics != nil {
		s.router.Handle("GET /metrics", s.metrics)
	}
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
