package system

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	httptransport "visionbridge-server-go/internal/transport/http"
	"visionbridge-server-go/internal/platform/errors"
	"visionbridge-server-go/internal/platform/logging"
)

// SessionCounter reports how many live sessions the server holds.
type SessionCounter interface {
	SessionCount() int
}

// Service exposes the server status endpoint.
type Service struct {
	logger   *logging.Logger
	sessions SessionCounter
	started  time.Time
}

// NewService creates the status service. sessions may be nil.
func NewService(logger *logging.Logger, sessions SessionCounter) (*Service, error) {
	if logger == nil {
		return nil, errors.New(errors.KindConfig, "system.new", "logger is required")
	}
	return &Service{
		logger:   logger,
		sessions: sessions,
		started:  time.Now(),
	}, nil
}

// Register mounts the status route on the API group.
func (s *Service) Register(ctx context.Context, router *gin.RouterGroup) error {
	router.GET("/system/status", s.handleStatus)
	s.logger.InfoTag("HTTP", "system status route registered")
	return nil
}

type statusSnapshot struct {
	UptimeSeconds int64   `json:"uptime_seconds"`
	Sessions      int     `json:"sessions"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemPercent    float64 `json:"mem_percent"`
	MemUsedMB     uint64  `json:"mem_used_mb"`
	Goroutines    int     `json:"goroutines"`
	GoVersion     string  `json:"go_version"`
}

func (s *Service) handleStatus(c *gin.Context) {
	snapshot := statusSnapshot{
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Goroutines:    runtime.NumGoroutine(),
		GoVersion:     runtime.Version(),
	}
	if s.sessions != nil {
		snapshot.Sessions = s.sessions.SessionCount()
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		snapshot.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		snapshot.MemPercent = vm.UsedPercent
		snapshot.MemUsedMB = vm.Used / 1024 / 1024
	}

	httptransport.RespondSuccess(c, http.StatusOK, snapshot, "")
}
