package client

import (
	"net/http"
	"time"

	"github.com/AzPepoze/gdrive-bisync/internal/client/handlers"
	"github.com/AzPepoze/gdrive-bisync/internal/client/middleware"
	"github.com/AzPepoze/gdrive-bisync/internal/version"
	"github.com/gin-gonic/gin"
)

type RouteConfig struct {
	Auth middleware.TokenAuthConfig
}

func SetupRoutes(svc handlers.SyncService, routeConfig *RouteConfig) http.Handler {
	r := gin.New()

	statusH := handlers.NewStatusHandler(svc)
	syncH := handlers.NewSyncHandler(svc)
	eventsH := handlers.NewEventsHandler(svc)

	r.Use(gin.Recovery())
	r.Use(middleware.Logger(nil))
	r.Use(middleware.SecureHeaders())
	r.Use(middleware.CORS())
	r.Use(middleware.Gzip())
	r.Use(middleware.RateLimit(time.Second, 10))

	r.GET("/", IndexHandler)

	v1 := r.Group("/v1")
	v1.Use(middleware.TokenAuth(routeConfig.Auth))
	{
		v1.GET("/status", statusH.Status)
		v1.GET("/events", eventsH.Events)

		v1.POST("/sync", syncH.TriggerSync)
		v1Sync := v1.Group("/sync")
		{
			v1Sync.GET("/status", syncH.Status)
			v1Sync.GET("/status/file", syncH.StatusByPath)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, handlers.ControlPlaneError{
			ErrorCode: handlers.ErrCodeNotFound,
			Error:     "not found",
		})
	})

	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, handlers.ControlPlaneError{
			ErrorCode: handlers.ErrCodeBadRequest,
			Error:     "method not allowed",
		})
	})

	return r.Handler()
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}

func IndexHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"app":     version.AppName,
		"version": version.Detailed(),
	})
}
