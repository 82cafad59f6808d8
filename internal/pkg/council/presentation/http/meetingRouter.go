package http

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	cacheport "github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/infrastructure/cache/port"
	"github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/infrastructure/metrics"
	"github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/infrastructure/realtime"
	"github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/pkg/council/application/manager"
	"github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/pkg/council/presentation/controller"
)

// RegisterRoutes registers meeting endpoints under the given router group.
// It constructs per-endpoint controllers and binds them directly to routes.
func RegisterRoutes(g *gin.RouterGroup, pool *pgxpool.Pool, registry *manager.Registry,
	hub *realtime.Hub, cache cacheport.Cache, met *metrics.Metrics, log *slog.Logger) {
	getMeetingCtl := controller.NewGetMeetingController(pool)
	socketCtl := controller.NewMeetingSocketController(hub, registry, cache, met, log)

	// GET /api/v1/meeting/:meetingId -> fetch a stored meeting
	g.GET("/meeting/:meetingId", getMeetingCtl.Handle())

	// GET /api/v1/meeting/ws -> websocket endpoint carrying all live traffic
	g.GET("/meeting/ws", socketCtl.Handle())
}
