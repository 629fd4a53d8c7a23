package middleware

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	appconfig "github.com/PulseTrack/pulsetrack-go/pkg/config"
)

// CORSMiddleware provides CORS configuration for browser trackers.
func CORSMiddleware() gin.HandlerFunc {
	config := cors.Config{
		AllowOrigins: appconfig.AllowedOrigins,
		AllowMethods: []string{
			"GET", "POST", "OPTIONS",
		},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept", "Authorization",
			"X-Requested-With", "X-PulseTrack-Session-ID",
			"Cache-Control",
		},
		AllowCredentials: true,
		ExposeHeaders: []string{
			"Content-Type", "Cache-Control",
		},
	}

	return cors.New(config)
}
