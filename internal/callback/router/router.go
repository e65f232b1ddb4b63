package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/videoauto/mps-callback/internal/callback/handler"
)

// SetupRouter configures the Gin router: the callback endpoint plus the
// side-effect-free health probes.
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Service banner kept from the original deployment's probe path.
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "running",
			"service":   "mps-callback",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "mps-callback",
		})
	})

	callbackHandler := handler.NewCallbackHandler(deps)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/mps/callback", callbackHandler.HandleCallback)
		v1.GET("/jobs/:job_id", callbackHandler.GetJobResult)
	}

	return r
}
