package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// HealthChecker is anything that can report its own liveness.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type HealthHandler struct {
	checks    map[string]HealthChecker
	version   string
	startTime time.Time
}

type SystemStats struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	MemoryUsedMB  uint64  `json:"memory_used_mb"`
	Goroutines    int     `json:"goroutines"`
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
	System    *SystemStats      `json:"system,omitempty"`
	Version   string            `json:"version"`
	Uptime    string            `json:"uptime"`
}

// NewHealthHandler reports on every named checker. A nil checker is shown
// as not configured and makes the service unhealthy.
func NewHealthHandler(checks map[string]HealthChecker, version string) *HealthHandler {
	return &HealthHandler{checks: checks, version: version, startTime: time.Now()}
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	services := make(map[string]string, len(h.checks))
	overall := "healthy"
	for name, check := range h.checks {
		switch {
		case check == nil:
			services[name] = "unhealthy: not configured"
		default:
			if err := check.HealthCheck(ctx); err != nil {
				services[name] = "unhealthy: " + err.Error()
			} else {
				services[name] = "healthy"
			}
		}
		if services[name] != "healthy" {
			overall = "unhealthy"
		}
	}

	resp := HealthResponse{
		Status:    overall,
		Timestamp: time.Now(),
		Services:  services,
		System:    systemStats(ctx),
		Version:   h.version,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	}

	status := http.StatusOK
	if overall != "healthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}

// systemStats samples host load without blocking; a zero interval compares
// against the previous call.
func systemStats(ctx context.Context) *SystemStats {
	stats := &SystemStats{Goroutines: runtime.NumGoroutine()}
	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		stats.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		stats.MemoryPercent = vm.UsedPercent
		stats.MemoryUsedMB = vm.Used / 1024 / 1024
	}
	return stats
}
