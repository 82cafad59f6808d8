package v1

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	cacheport "github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/infrastructure/cache/port"
	"github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/infrastructure/metrics"
	"github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/infrastructure/realtime"
	"github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/pkg/council/application/manager"
	httpHandler "github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/pkg/council/presentation/http"
)

// RegisterRoutes mounts all version 1 API routes under /api/v1.
func RegisterRoutes(r *gin.Engine, pool *pgxpool.Pool, registry *manager.Registry,
	hub *realtime.Hub, cache cacheport.Cache, met *metrics.Metrics, log *slog.Logger) {
	v1 := r.Group("/api/v1")
	httpHandler.RegisterRoutes(v1, pool, registry, hub, cache, met, log)
}
