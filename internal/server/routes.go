package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/everstacklabs/compass/internal/catalog"
	"github.com/everstacklabs/compass/internal/metrics"
	"github.com/everstacklabs/compass/internal/resolve"
)

// Handler returns the HTTP API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /v1/endpoint", s.handleEndpoint)
	mux.HandleFunc("GET /v1/endpoints", s.handleEndpoints)
	mux.HandleFunc("GET /v1/catalog", s.handleCatalog)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

type endpointResponse struct {
	URL         string `json:"url"`
	ServiceType string `json:"service_type"`
}

type endpointsResponse struct {
	ServiceType string             `json:"service_type"`
	Endpoints   []catalog.Endpoint `json:"endpoints"`
}

type errorResponse struct {
	Error      string             `json:"error"`
	Candidates []catalog.Endpoint `json:"candidates,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.current.Load() == nil {
		http.Error(w, ErrNoCatalog.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleEndpoint(w http.ResponseWriter, r *http.Request) {
	cat, q, ok := s.prepare(w, r)
	if !ok {
		return
	}

	start := time.Now()
	url, err := s.resolver.URLFor(cat, q)
	metrics.ResolveDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.writeResolveError(w, cat, q, err)
		return
	}

	metrics.Resolutions.WithLabelValues(metricServiceType(cat, q.ServiceType), metrics.ResultOK).Inc()
	writeJSON(w, http.StatusOK, endpointResponse{URL: url, ServiceType: q.ServiceType})
}

func (s *Server) handleEndpoints(w http.ResponseWriter, r *http.Request) {
	cat, q, ok := s.prepare(w, r)
	if !ok {
		return
	}

	eps, err := s.resolver.EndpointsFor(cat, q)
	if err != nil {
		s.writeResolveError(w, cat, q, err)
		return
	}
	writeJSON(w, http.StatusOK, endpointsResponse{ServiceType: q.ServiceType, Endpoints: eps})
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	cat := s.current.Load()
	if cat == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: ErrNoCatalog.Error()})
		return
	}
	writeJSON(w, http.StatusOK, catalog.BuildManifest(cat, time.Unix(0, s.loadedAt.Load())))
}

// prepare loads the current catalog and parses the query, writing an error
// response when either fails.
func (s *Server) prepare(w http.ResponseWriter, r *http.Request) (*catalog.ServiceCatalog, resolve.Query, bool) {
	cat := s.current.Load()
	if cat == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: ErrNoCatalog.Error()})
		return nil, resolve.Query{}, false
	}
	q, err := parseQuery(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return nil, resolve.Query{}, false
	}
	return cat, q, true
}

func (s *Server) writeResolveError(w http.ResponseWriter, cat *catalog.ServiceCatalog, q resolve.Query, err error) {
	label := metricServiceType(cat, q.ServiceType)
	var amb *resolve.AmbiguousEndpointsError
	switch {
	case errors.As(err, &amb):
		metrics.Resolutions.WithLabelValues(label, metrics.ResultAmbiguous).Inc()
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Candidates: amb.Candidates})
	case errors.Is(err, resolve.ErrEndpointNotFound):
		metrics.Resolutions.WithLabelValues(label, metrics.ResultNotFound).Inc()
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	default:
		metrics.Resolutions.WithLabelValues(label, metrics.ResultError).Inc()
		slog.Error("resolving endpoint", "service_type", q.ServiceType, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

// metricServiceType bounds the label set to types present in the catalog.
func metricServiceType(cat *catalog.ServiceCatalog, serviceType string) string {
	if cat != nil && len(cat.ServicesOfType(serviceType)) > 0 {
		return serviceType
	}
	return metrics.UnknownServiceType
}

// parseQuery reads type, name, region, interface and repeated
// filter=key:value parameters.
func parseQuery(r *http.Request) (resolve.Query, error) {
	v := r.URL.Query()
	q := resolve.Query{
		ServiceType: v.Get("type"),
		ServiceName: v.Get("name"),
		Region:      v.Get("region"),
		Interface:   v.Get("interface"),
	}
	if q.ServiceType == "" {
		return q, errors.New("missing required parameter: type")
	}
	filters, err := resolve.ParseFilters(v["filter"])
	if err != nil {
		return q, err
	}
	q.Filters = filters
	return q, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("writing response", "error", err)
	}
}
