package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/xela07ax/agent-pulse/internal/handler"
	"github.com/xela07ax/agent-pulse/internal/infra"
	"github.com/xela07ax/agent-pulse/internal/infra/auth"
	"github.com/xela07ax/agent-pulse/internal/metrics"
	"go.uber.org/zap"
)

type Server struct {
	router *chi.Mux
	logger *zap.Logger
	cfg    *infra.Config

	// Проверка токенов операторов; nil = открытый локальный режим
	authValidator auth.TokenValidator

	// Обработчики доменов
	eventHandler  *handler.EventHandler  // /events
	alertHandler  *handler.AlertHandler  // /alerts/trigger
	streamHandler *handler.StreamHandler // /stream (WebSocket)
	themeHandler  *handler.ThemeHandler  // /api/themes
	authHandler   *handler.AuthHandler   // /auth/token (опционально)

	metrics *metrics.Metrics
}

// NewServer собирает HTTP-слой со всеми зависимостями
func NewServer(
	cfg *infra.Config,
	logger *zap.Logger,
	validator auth.TokenValidator,
	eventH *handler.EventHandler,
	alertH *handler.AlertHandler,
	streamH *handler.StreamHandler,
	themeH *handler.ThemeHandler,
	authH *handler.AuthHandler,
	m *metrics.Metrics,
) *Server {
	s := &Server{
		router:        chi.NewRouter(),
		logger:        logger.Named("http"),
		cfg:           cfg,
		authValidator: validator,
		eventHandler:  eventH,
		alertHandler:  alertH,
		streamHandler: streamH,
		themeHandler:  themeH,
		authHandler:   authH,
		metrics:       m,
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(TracingMiddleware)
	r.Use(RequestLogMiddleware(s.logger))

	// Дашборд живет на отдельном origin
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	r.Use(MetricsMiddleware(s.metrics))

	// --- 2. Пайплайн событий (открыт: агенты не носят токенов) ---
	r.Route("/events", func(r chi.Router) {
		r.Post("/", s.eventHandler.Create)
		r.Get("/recent", s.eventHandler.Recent)
		r.Get("/filter-options", s.eventHandler.FilterOptions)
		r.Post("/{id}/respond", s.eventHandler.Respond)
	})

	// Вебхук внешней алертинговой системы
	r.Post("/alerts/trigger", s.alertHandler.Trigger)

	// Realtime-поток дашборда
	r.Get("/stream", s.streamHandler.Serve)

	// Healthcheck для мониторинга
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// --- 3. Операторский периметр ---
	if s.authHandler != nil {
		r.Post("/auth/token", s.authHandler.Login)
	}

	// Темы требуют личность автора: строгий JWT, если авторизация
	// настроена, иначе мягкий заголовок X-Author-ID
	r.Route("/api/themes", func(r chi.Router) {
		r.Use(auth.NewIdentityMiddleware(s.authValidator, s.logger))
		r.Mount("/", s.themeHandler.Routes())
	})
}

// ServeHTTP позволяет использовать Server как стандартный http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
