// Package server serves generated artifacts over HTTP.
package server

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/xxxbrian/surge-ruleset/internal/aggregate"
	"github.com/xxxbrian/surge-ruleset/internal/metrics"
	"github.com/xxxbrian/surge-ruleset/internal/output"
)

// Server serves the artifact tree of an output root.
type Server struct {
	root     string
	recorder *metrics.Recorder
	logger   zerolog.Logger

	reportMu sync.RWMutex
	report   *aggregate.Report
}

// NewServer creates a new Server
func NewServer(root string, recorder *metrics.Recorder, logger zerolog.Logger) *Server {
	return &Server{
		root:     root,
		recorder: recorder,
		logger:   logger,
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(s.LoggingMiddleware)

	r.Get("/", s.handleIndex)
	r.Get("/healthz", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Get("/rules/{name}/{file}", s.handleArtifact)
	if s.recorder != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.recorder.Registry(), promhttp.HandlerOpts{}))
	}
	return r
}

// SetReport publishes the report of the latest run on /status.
func (s *Server) SetReport(report *aggregate.Report) {
	s.reportMu.Lock()
	defer s.reportMu.Unlock()
	s.report = report
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

// handleArtifact handles /rules/:name/:file requests
func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	file := chi.URLParam(r, "file")

	if output.ValidateName(name) != nil || output.ValidateName(file) != nil || !artifactFile(name, file) {
		http.NotFound(w, r)
		return
	}

	body, err := os.ReadFile(filepath.Join(s.root, name, file))
	if err != nil {
		if os.IsNotExist(err) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, "Failed to read artifact", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=1800")
	_, _ = w.Write(body)
}

// artifactFile reports whether file is an artifact name valid inside dir.
func artifactFile(dir, file string) bool {
	if dir == output.OtherDir {
		return strings.HasSuffix(file, "-"+output.DomainsFile) || strings.HasSuffix(file, "-"+output.CIDRsFile)
	}
	return file == output.DomainsFile || file == output.CIDRsFile
}

// IndexEntry lists the artifact URLs of one source.
type IndexEntry struct {
	Domains string `json:"domains,omitempty"`
	IPCIDR  string `json:"ipcidr,omitempty"`
}

// handleIndex returns the JSON index of available artifacts
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	index, err := s.buildIndex(buildBaseURL(r))
	if err != nil {
		http.Error(w, "Failed to build index", http.StatusInternalServerError)
		return
	}

	body, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		http.Error(w, "Failed to build index", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=1800")
	_, _ = w.Write(body)
}

func (s *Server) buildIndex(baseURL string) (map[string]IndexEntry, error) {
	index := make(map[string]IndexEntry)

	dirs, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return index, nil
		}
		return nil, err
	}

	for _, dir := range dirs {
		if !dir.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(s.root, dir.Name()))
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			if f.IsDir() || !artifactFile(dir.Name(), f.Name()) {
				continue
			}
			key, isDomains := indexKey(dir.Name(), f.Name())
			entry := index[key]
			url := baseURL + "/rules/" + dir.Name() + "/" + f.Name()
			if isDomains {
				entry.Domains = url
			} else {
				entry.IPCIDR = url
			}
			index[key] = entry
		}
	}
	return index, nil
}

// indexKey names a file in the index: the directory for source artifacts,
// Other/<name> for custom ones.
func indexKey(dir, file string) (string, bool) {
	if dir != output.OtherDir {
		return dir, file == output.DomainsFile
	}
	if name, ok := strings.CutSuffix(file, "-"+output.DomainsFile); ok {
		return dir + "/" + name, true
	}
	return dir + "/" + strings.TrimSuffix(file, "-"+output.CIDRsFile), false
}

type statusSource struct {
	Name    string `json:"name"`
	Phase   string `json:"phase"`
	Status  string `json:"status"`
	Domains int    `json:"domains"`
	CIDRs   int    `json:"cidrs"`
	Error   string `json:"error,omitempty"`
}

type statusBody struct {
	Started  time.Time      `json:"started"`
	Duration string         `json:"duration"`
	Sources  []statusSource `json:"sources"`
}

// handleStatus reports the outcomes of the latest run
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.reportMu.RLock()
	report := s.report
	s.reportMu.RUnlock()

	if report == nil {
		http.Error(w, "No run completed yet", http.StatusServiceUnavailable)
		return
	}

	body := statusBody{
		Started:  report.Started,
		Duration: report.Duration.String(),
		Sources:  make([]statusSource, 0, len(report.Outcomes)),
	}
	for _, o := range report.Outcomes {
		src := statusSource{
			Name:    o.Source.Name,
			Phase:   string(o.Phase),
			Status:  o.Status.String(),
			Domains: o.Domains,
			CIDRs:   o.CIDRs,
		}
		if o.Err != nil {
			src.Error = o.Err.Error()
		}
		body.Sources = append(body.Sources, src)
	}
	slices.SortStableFunc(body.Sources, func(a, b statusSource) int {
		return strings.Compare(a.Name, b.Name)
	})

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

// LoggingMiddleware logs all HTTP requests
func (s *Server) LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("Request served")
	})
}

func buildBaseURL(r *http.Request) string {
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	proto := r.Header.Get("X-Forwarded-Proto")
	if proto == "" {
		if r.TLS != nil {
			proto = "https"
		} else {
			proto = "http"
		}
	}
	return proto + "://" + host
}
