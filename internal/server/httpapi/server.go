// Package httpapi exposes the auth services over JSON/HTTP using fiber.
//
// Every response uses one envelope: {status:true, message, data} on success
// and {status:false, error:{message[, fields]}} on failure.
package httpapi

import (
	"context"
	"net"
	"time"

	"github.com/dmitrijs2005/storeauth/internal/logging"
	"github.com/dmitrijs2005/storeauth/internal/server/models"
	"github.com/dmitrijs2005/storeauth/internal/server/services"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

const shutdownTimeout = 5 * time.Second

// UserService is what the handlers need from services.UserService.
type UserService interface {
	Register(ctx context.Context, in services.RegisterInput) (*models.User, error)
	Login(ctx context.Context, email, password, origin string) (*models.User, *services.TokenPair, error)
	Refresh(ctx context.Context, token, origin string) (*services.TokenPair, error)
	Logout(ctx context.Context, userID, presented string) error
	ChangePassword(ctx context.Context, userID, current, password string) error
	GetUser(ctx context.Context, userID string) (*models.User, error)
}

// Authorizer resolves the access token of a protected request.
type Authorizer interface {
	Authorize(ctx context.Context, accessToken, origin string) (*models.User, error)
}

type HTTPServer struct {
	address    string
	app        *fiber.App
	users      UserService
	authorizer Authorizer
	logger     logging.Logger
}

// NewHTTPServer builds the fiber app and registers all routes. proxyHeader,
// when set, names the header fiber reads the client IP from.
func NewHTTPServer(address string, l logging.Logger, us UserService, az Authorizer, proxyHeader string) *HTTPServer {
	s := &HTTPServer{
		address:    address,
		users:      us,
		authorizer: az,
		logger:     l.With("module", "http_server"),
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "storeauth",
		DisableStartupMessage: true,
		ProxyHeader:           proxyHeader,
		EnableIPValidation:    true,
		ErrorHandler:          s.errorHandler,
	})
	s.app.Use(requestid.New(), s.accessLog, recover.New())
	s.routes()

	return s
}

func (s *HTTPServer) routes() {
	api := s.app.Group("/api")
	api.Get("/health", s.health)

	auth := api.Group("/auth")
	auth.Post("/login", s.login)
	auth.Post("/register", s.register)
	auth.Post("/refresh-token", s.refreshToken)
	auth.Post("/logout", s.requireAuth, s.logout)
	auth.Get("/me", s.requireAuth, s.me)
	auth.Post("/change-password", s.requireAuth, s.changePassword)

	api.Get("/users/:id", s.requireAuth, RequireRole(models.RoleAdmin), s.getUser)
}

// Run serves until ctx is done, then shuts the app down gracefully.
func (s *HTTPServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
			s.logger.Error(shutdownCtx, "HTTP server shutdown failed", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	return s.app.Listener(listen)
}
