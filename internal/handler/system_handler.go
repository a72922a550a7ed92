package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/response"
)

const (
	metricsInterval = 7 * time.Second
	healthTimeout   = 2 * time.Second
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SessionCounter reports the number of live sessions.
type SessionCounter interface {
	Count() int
}

// SystemHandler serves health checks and streams runtime metrics via SSE.
type SystemHandler struct {
	db        Pinger
	rdb       *redis.Client
	sessions  SessionCounter
	startTime time.Time
	log       zerolog.Logger

	prevIdle  uint64
	prevTotal uint64
}

func NewSystemHandler(db Pinger, rdb *redis.Client, sessions SessionCounter, log zerolog.Logger) *SystemHandler {
	h := &SystemHandler{
		db:        db,
		rdb:       rdb,
		sessions:  sessions,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
	h.prevIdle, h.prevTotal, _ = readCPUStat()
	return h
}

type healthStatus struct {
	Status       string            `json:"status"`
	Checks       map[string]string `json:"checks"`
	LiveSessions int               `json:"live_sessions"`
	Uptime       string            `json:"uptime"`
}

// Health godoc
// GET /health
// Returns 503 when Postgres or Redis is unreachable.
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	status := healthStatus{
		Status:       "ok",
		Checks:       map[string]string{"postgres": "ok", "redis": "ok"},
		LiveSessions: h.sessions.Count(),
		Uptime:       formatDuration(time.Since(h.startTime)),
	}
	if err := h.db.Ping(ctx); err != nil {
		status.Status = "degraded"
		status.Checks["postgres"] = err.Error()
	}
	if err := h.rdb.Ping(ctx).Err(); err != nil {
		status.Status = "degraded"
		status.Checks["redis"] = err.Error()
	}

	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
		h.log.Warn().Interface("checks", status.Checks).Msg("Health check degraded")
	}
	response.Success(c, code, status)
}

// ---------- SSE Endpoint ----------

type systemMetrics struct {
	Timestamp int64  `json:"timestamp"`
	Uptime    string `json:"uptime"`

	CPUPercent    float64 `json:"cpu_percent"`
	MemUsedBytes  uint64  `json:"mem_used_bytes"`
	MemTotalBytes uint64  `json:"mem_total_bytes"`
	LoadAvg1      float64 `json:"load_avg_1"`

	Goroutines  int    `json:"goroutines"`
	HeapAlloc   uint64 `json:"heap_alloc"`
	NumGC       uint32 `json:"num_gc"`
	AppRSSBytes uint64 `json:"app_rss_bytes"`
	GoVersion   string `json:"go_version"`

	LiveSessions  int   `json:"live_sessions"`
	QueueAttempts int64 `json:"queue_attempts"`
	QueueDead     int64 `json:"queue_dead"`
}

// SystemMetricsSSE godoc
// GET /api/v1/admin/system/metrics
func (h *SystemHandler) SystemMetricsSSE(c *gin.Context) {
	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	h.log.Info().Msg("Admin connected to system metrics SSE")

	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()

	h.writeMetrics(c)
	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Msg("Admin disconnected from system metrics SSE")
			return
		case <-ticker.C:
			h.writeMetrics(c)
		}
	}
}

func (h *SystemHandler) writeMetrics(c *gin.Context) {
	data, err := json.Marshal(h.collect(c.Request.Context()))
	if err != nil {
		return
	}
	fmt.Fprintf(c.Writer, "data: %s\n\n", data)
	c.Writer.Flush()
}

func (h *SystemHandler) collect(ctx context.Context) systemMetrics {
	m := systemMetrics{
		Timestamp:    time.Now().Unix(),
		Uptime:       formatDuration(time.Since(h.startTime)),
		GoVersion:    runtime.Version(),
		Goroutines:   runtime.NumGoroutine(),
		LiveSessions: h.sessions.Count(),
	}

	// ── CPU ──
	if idle, total, err := readCPUStat(); err == nil && total > h.prevTotal {
		m.CPUPercent = (1 - float64(idle-h.prevIdle)/float64(total-h.prevTotal)) * 100
		h.prevIdle, h.prevTotal = idle, total
	}

	// ── Memory ──
	if info, err := readKeyedKB("/proc/meminfo", "MemTotal", "MemAvailable"); err == nil {
		m.MemTotalBytes = info["MemTotal"]
		m.MemUsedBytes = info["MemTotal"] - info["MemAvailable"]
	}
	if status, err := readKeyedKB("/proc/self/status", "VmRSS"); err == nil {
		m.AppRSSBytes = status["VmRSS"]
	}
	if data, err := os.ReadFile("/proc/loadavg"); err == nil {
		if fields := strings.Fields(string(data)); len(fields) > 0 {
			m.LoadAvg1, _ = strconv.ParseFloat(fields[0], 64)
		}
	}

	// ── Go Runtime ──
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.HeapAlloc = ms.HeapAlloc
	m.NumGC = ms.NumGC

	// ── Attempt queues (pipelined LLEN) ──
	pipe := h.rdb.Pipeline()
	pending := pipe.LLen(ctx, config.WorkerKey.PersistAttemptsQueue)
	dead := pipe.LLen(ctx, config.WorkerKey.DeadAttemptsQueue)
	if _, err := pipe.Exec(ctx); err == nil {
		m.QueueAttempts = pending.Val()
		m.QueueDead = dead.Val()
	}

	return m
}

// ---------- /proc Readers ----------

// readCPUStat returns idle and total ticks from the aggregate cpu line.
func readCPUStat() (idle, total uint64, err error) {
	data, err := os.ReadFile("/proc/stat")
	if err != nil {
		return 0, 0, err
	}
	fields := strings.Fields(strings.SplitN(string(data), "\n", 2)[0])
	if len(fields) < 5 || fields[0] != "cpu" {
		return 0, 0, fmt.Errorf("unexpected /proc/stat format")
	}
	for i, f := range fields[1:] {
		val, _ := strconv.ParseUint(f, 10, 64)
		total += val
		if i == 3 {
			idle = val
		}
	}
	return idle, total, nil
}

// readKeyedKB reads "Key:   1234 kB" lines and returns the wanted keys in bytes.
func readKeyedKB(path string, keys ...string) (map[string]uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := make(map[string]uint64, len(keys))
	scanner := bufio.NewScanner(f)
	for scanner.Scan() && len(out) < len(keys) {
		name, rest, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		for _, k := range keys {
			if name != k {
				continue
			}
			fields := strings.Fields(rest)
			if len(fields) > 0 {
				val, _ := strconv.ParseUint(fields[0], 10, 64)
				out[k] = val * 1024
			}
		}
	}
	return out, scanner.Err()
}

// ---------- Helpers ----------

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}
