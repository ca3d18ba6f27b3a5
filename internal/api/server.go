package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"OpenAgent-Sim/internal/action"
	"OpenAgent-Sim/internal/actionlog"
	"OpenAgent-Sim/internal/episode"
	"OpenAgent-Sim/internal/observability/metrics"
	"OpenAgent-Sim/pkg/logger"
)

// Stepper 提供时钟与轮次信息，*episode.Scheduler 满足该接口。
type Stepper interface {
	Clock() *episode.Clock
	EpisodeOf(tick int) int
}

// Server 暴露只读的模拟状态接口。
type Server struct {
	addr      string
	records   actionlog.Reader
	catalog   *action.Catalog
	scheduler Stepper
	logger    *slog.Logger
}

// Option 定义可选配置。
type Option func(*Server)

// WithLogger 指定日志输出。
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer 构造 API 服务实例。任一依赖为 nil 时对应接口返回 503。
func NewServer(addr string, records actionlog.Reader, catalog *action.Catalog, scheduler Stepper, opts ...Option) *Server {
	s := &Server{addr: addr, records: records, catalog: catalog, scheduler: scheduler}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.logger == nil {
		s.logger = logger.Named("api")
	}
	return s
}

// Handler 返回带指标统计的路由。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/v1/records", instrument("/api/v1/records", http.HandlerFunc(s.handleRecords)))
	mux.Handle("/api/v1/effects", instrument("/api/v1/effects", http.HandlerFunc(s.handleEffects)))
	mux.Handle("/api/v1/clock", instrument("/api/v1/clock", http.HandlerFunc(s.handleClock)))
	mux.Handle("/api/v1/catalog", instrument("/api/v1/catalog", http.HandlerFunc(s.handleCatalog)))
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.logger.Info("状态接口已启动", slog.String("address", s.addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.records == nil {
		http.Error(w, "动作日志未启用查询", http.StatusServiceUnavailable)
		return
	}
	opts, err := queryOptions(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	q := r.URL.Query()
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			http.Error(w, "limit 必须是正整数", http.StatusBadRequest)
			return
		}
		opts = append(opts, actionlog.WithLimit(limit))
	}
	if raw := q.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			http.Error(w, "offset 必须是非负整数", http.StatusBadRequest)
			return
		}
		opts = append(opts, actionlog.WithOffset(offset))
	}

	records, err := s.records.Query(r.Context(), actionlog.NewFilter(opts...))
	if err != nil {
		s.logger.Error("查询动作日志失败", slog.Any("error", err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, records)
}

func (s *Server) handleEffects(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.records == nil {
		http.Error(w, "动作日志未启用查询", http.StatusServiceUnavailable)
		return
	}
	opts, err := queryOptions(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	records, err := actionlog.QueryAll(r.Context(), s.records, opts...)
	if err != nil {
		s.logger.Error("查询动作日志失败", slog.Any("error", err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, struct {
		Effects []actionlog.EpisodeEffects `json:"effects"`
		Summary actionlog.Summary          `json:"summary"`
	}{Effects: actionlog.Effects(records), Summary: actionlog.Summarize(records)})
}

type clockResponse struct {
	Tick    int       `json:"tick"`
	Episode int       `json:"episode"`
	Now     time.Time `json:"now"`
}

func (s *Server) handleClock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.scheduler == nil {
		http.Error(w, "调度器未初始化", http.StatusServiceUnavailable)
		return
	}
	tick, now := s.scheduler.Clock().Snapshot()
	writeJSON(w, clockResponse{Tick: tick, Episode: s.scheduler.EpisodeOf(tick), Now: now})
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.catalog == nil {
		http.Error(w, "动作目录未初始化", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, s.catalog.List())
}

func queryOptions(r *http.Request) ([]actionlog.QueryOption, error) {
	q := r.URL.Query()
	var opts []actionlog.QueryOption
	if agent := q.Get("agent"); agent != "" {
		opts = append(opts, actionlog.WithAgent(agent))
	}
	if raw := q.Get("episode"); raw != "" {
		ep, err := strconv.Atoi(raw)
		if err != nil || ep < 0 {
			return nil, errors.New("episode 必须是非负整数")
		}
		opts = append(opts, actionlog.WithEpisode(ep))
	}
	if name := q.Get("action"); name != "" {
		opts = append(opts, actionlog.WithAction(name))
	}
	if raw := q.Get("status"); raw != "" {
		var statuses []actionlog.Status
		for _, part := range strings.Split(raw, ",") {
			switch st := actionlog.Status(strings.TrimSpace(part)); st {
			case actionlog.StatusOK, actionlog.StatusError, actionlog.StatusSkipped:
				statuses = append(statuses, st)
			default:
				return nil, errors.New("未知的状态: " + part)
			}
		}
		opts = append(opts, actionlog.WithStatuses(statuses...))
	}
	return opts, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func instrument(name string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.ObserveHTTPRequest(name, r.Method, rec.status, time.Since(started))
	})
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
