package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/usage-insight/internal/analysis"
	"github.com/sells-group/usage-insight/internal/billing"
	"github.com/sells-group/usage-insight/internal/compare"
	"github.com/sells-group/usage-insight/internal/detect"
	"github.com/sells-group/usage-insight/internal/model"
	"github.com/sells-group/usage-insight/internal/scan"
	"github.com/sells-group/usage-insight/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		svc, scanner, err := initAnalysis(st)
		if err != nil {
			return err
		}

		api := &apiServer{
			store:    st,
			scanner:  scanner,
			analysis: svc,
			lookback: cfg.Analysis.LookbackMonths,
			useAI:    cfg.Oracle.Enabled,
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(api, cfg.Server.CORSOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// apiServer holds the dependencies of the HTTP handlers.
type apiServer struct {
	store    store.Store
	scanner  *scan.Scanner
	analysis *analysis.Service
	lookback int
	useAI    bool
}

func newRouter(api *apiServer, origins []string) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         300,
	}))

	r.Get("/health", api.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/detect", api.detect)
		r.Post("/compare", api.compare)
		r.Post("/scan", api.scan)
		r.Get("/users/{userID}/analysis", api.userAnalysis)
		r.Get("/users/{userID}/costs/latest", api.latestCosts)
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (a *apiServer) health(w http.ResponseWriter, r *http.Request) {
	if a.store != nil {
		if err := a.store.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// pointRequest is one period of a posted series. Date accepts the bill
// date layouts, e.g. 2024-03 or 2024-03-01.
type pointRequest struct {
	Date  string  `json:"date"`
	Usage float64 `json:"usage"`
	Cost  float64 `json:"cost"`
}

type seriesRequest struct {
	Kind   string         `json:"energy_kind"`
	Points []pointRequest `json:"points"`
}

func (s seriesRequest) series() (model.TrendSeries, error) {
	kind, err := model.ParseEnergyKind(s.Kind)
	if err != nil {
		return nil, err
	}
	series := make(model.TrendSeries, 0, len(s.Points))
	for i, p := range s.Points {
		date, err := billing.ParseDate(p.Date)
		if err != nil {
			return nil, eris.Wrapf(err, "point %d", i)
		}
		series = append(series, model.NewTrendPoint(kind, date, p.Usage, p.Cost))
	}
	if err := series.Validate(); err != nil {
		return nil, err
	}
	return series, nil
}

type scanRequest struct {
	seriesRequest
	LookbackMonths *int             `json:"lookback_months,omitempty"`
	UseAI          *bool            `json:"use_ai,omitempty"`
	Household      *model.Household `json:"household,omitempty"`
}

func (a *apiServer) detect(w http.ResponseWriter, r *http.Request) {
	var req seriesRequest
	series, ok := decodeSeries(w, r, &req)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, detect.Detect(series))
}

func (a *apiServer) compare(w http.ResponseWriter, r *http.Request) {
	var req seriesRequest
	series, ok := decodeSeries(w, r, &req)
	if !ok {
		return
	}
	cmp, err := compare.Latest(series)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cmp)
}

func (a *apiServer) scan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	series, err := req.series()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	lookback := a.lookback
	if req.LookbackMonths != nil {
		lookback = *req.LookbackMonths
	}
	useAI := a.useAI
	if req.UseAI != nil {
		useAI = *req.UseAI && a.useAI
	}

	records, err := a.scanner.Scan(r.Context(), series, lookback, useAI, req.Household)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	kind, _ := model.ParseEnergyKind(req.Kind)
	writeJSON(w, http.StatusOK, map[string]any{
		"energy_kind":    kind,
		"anomaly_months": records,
	})
}

func (a *apiServer) userAnalysis(w http.ResponseWriter, r *http.Request) {
	req := analysis.Request{UserID: chi.URLParam(r, "userID")}
	if k := r.URL.Query().Get("kind"); k != "" {
		kind, err := model.ParseEnergyKind(k)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		req.Kind = kind
	}
	period, err := billing.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Period = period
	if req.From, req.To, err = parseWindow(r.URL.Query().Get("from"), r.URL.Query().Get("to")); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := a.analysis.Analyze(r.Context(), req)
	if err != nil {
		zap.L().Error("analysis failed", zap.String("user", req.UserID), zap.Error(err))
		status := statusFor(err)
		msg := "analysis failed"
		if status == http.StatusBadRequest {
			msg = err.Error()
		}
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *apiServer) latestCosts(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	breakdown, err := a.analysis.LatestCosts(r.Context(), userID)
	if err != nil {
		zap.L().Error("latest costs failed", zap.String("user", userID), zap.Error(err))
		writeError(w, statusFor(err), "latest costs failed")
		return
	}
	writeJSON(w, http.StatusOK, breakdown)
}

func decodeSeries(w http.ResponseWriter, r *http.Request, req *seriesRequest) (model.TrendSeries, bool) {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}
	series, err := req.series()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return series, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidSeries), errors.Is(err, billing.ErrInvalidRange):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
