package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"library-api/internal/exporter"
	"library-api/internal/metrics"
	"library-api/internal/service"
)

// Services bundles the domain services exposed over HTTP. Exports and
// Exporter are nil when catalog export is not configured.
type Services struct {
	Users    service.UserService
	Authors  service.AuthorService
	Books    service.BookService
	Auth     service.AuthService
	Exports  service.ExportService
	Exporter exporter.Manager
}

type Options struct {
	Logger *logrus.Logger
	// LoginCounter enables the login rate limit; nil disables it.
	LoginCounter   Counter
	LoginPerWindow int
	LoginWindow    time.Duration
}

// Handler wires HTTP routes to domain services.
type Handler struct {
	users    service.UserService
	authors  service.AuthorService
	books    service.BookService
	auth     service.AuthService
	exports  service.ExportService
	exporter exporter.Manager
	opts     Options
	logger   *logrus.Logger
}

func NewHandler(svc Services, opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.LoginPerWindow <= 0 {
		opts.LoginPerWindow = 10
	}
	if opts.LoginWindow <= 0 {
		opts.LoginWindow = time.Minute
	}
	return &Handler{
		users:    svc.Users,
		authors:  svc.Authors,
		books:    svc.Books,
		auth:     svc.Auth,
		exports:  svc.Exports,
		exporter: svc.Exporter,
		opts:     opts,
		logger:   opts.Logger,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(requestID(), accessLog(h.logger), metrics.Handler(), corsMiddleware())
	router.NoRoute(func(c *gin.Context) {
		writeError(c, http.StatusNotFound, "Not found")
	})

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "API running"})
	})
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": "ok"})
	})
	router.GET("/metrics", metrics.Exposer())

	login := []gin.HandlerFunc{}
	if h.opts.LoginCounter != nil {
		login = append(login, rateLimit(h.opts.LoginCounter, "login", h.opts.LoginPerWindow, h.opts.LoginWindow, clientIP, h.logger))
	}
	login = append(login, h.login)

	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", login...)
		authGroup.GET("/me", h.requireUser(), h.me)
	}

	users := router.Group("/users")
	{
		users.GET("", h.listUsers)
		users.POST("", h.createUser)
		users.GET("/by_email", h.getUserByEmail)
		users.GET("/:id", h.getUser)
		users.PATCH("/:id", h.updateUser)
		users.DELETE("/:id", h.deleteUser)
	}

	authors := router.Group("/authors")
	{
		authors.GET("", h.listAuthors)
		authors.POST("", h.createAuthor)
		authors.GET("/:id", h.getAuthor)
		authors.PATCH("/:id", h.updateAuthor)
		authors.DELETE("/:id", h.deleteAuthor)
	}

	books := router.Group("/books")
	{
		books.GET("", h.listBooks)
		books.POST("", h.createBook)
		books.GET("/search", h.searchBooks)
		books.GET("/:id", h.getBook)
		books.PATCH("/:id", h.updateBook)
		books.DELETE("/:id", h.deleteBook)
		books.POST("/:id/borrow", h.borrowBook)
		books.POST("/:id/return", h.returnBook)
	}

	exports := router.Group("/exports", h.requireUser())
	{
		exports.POST("", h.queueExport)
		exports.GET("", h.listExports)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Request-Id")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func clientIP(c *gin.Context) string {
	return c.ClientIP()
}
