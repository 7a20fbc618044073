package handler

import (
	"context"
	"net/http"
	"time"

	"kasabot/internal/infra"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// BreakerReporter exposes the state of an outbound API's circuit breaker.
type BreakerReporter interface {
	BreakerState() infra.CBState
}

// Health reports store and queue connectivity plus the outbound breaker
// states. A nil db means the JSON file store; a nil rdb means direct
// delivery. Only connectivity failures turn the answer into a 503; an open
// breaker is reported but the process itself is healthy.
//
// @Summary      Liveness and dependency status
// @Tags         health
// @Produce      json
// @Success      200  {object}  map[string]any
// @Failure      503  {object}  map[string]any
// @Router       /health [get]
func Health(db *gorm.DB, rdb *redis.Client, breakers map[string]BreakerReporter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		storeStatus := "file"
		if db != nil {
			storeStatus = "connected"
			sqlDB, err := db.DB()
			if err != nil || sqlDB.PingContext(ctx) != nil {
				storeStatus = "error"
			}
		}

		redisStatus := "disabled"
		if rdb != nil {
			redisStatus = "connected"
			if rdb.Ping(ctx).Err() != nil {
				redisStatus = "error"
			}
		}

		states := make(map[string]string, len(breakers))
		for name, b := range breakers {
			states[name] = b.BreakerState().String()
		}

		status := http.StatusOK
		if storeStatus == "error" || redisStatus == "error" {
			status = http.StatusServiceUnavailable
		}

		c.JSON(status, gin.H{
			"ok":       status == http.StatusOK,
			"store":    storeStatus,
			"redis":    redisStatus,
			"breakers": states,
		})
	}
}
