package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"github.com/HanTheDev/content-gateway/internal/cache"
	"github.com/HanTheDev/content-gateway/internal/config"
	"github.com/HanTheDev/content-gateway/internal/events"
	"github.com/HanTheDev/content-gateway/internal/models"
	"github.com/HanTheDev/content-gateway/internal/provider"
	"github.com/HanTheDev/content-gateway/internal/quota"
	"github.com/HanTheDev/content-gateway/internal/routing"
)

const dateLayout = "2006-01-02"

// UsageStore answers usage questions from recorded history.
type UsageStore interface {
	UsageSummary(ctx context.Context, userID string, from, to time.Time) ([]models.UsageSummary, error)
}

type AdminHandler struct {
	providers *provider.Registry
	routing   *routing.Policy
	cache     *cache.Cache
	ledger    quota.Ledger
	usage     UsageStore
	failures  *events.Collector
	logger    *slog.Logger
}

type AdminDeps struct {
	Providers *provider.Registry
	Routing   *routing.Policy
	Cache     *cache.Cache
	Ledger    quota.Ledger
	// Usage may be nil when no database is configured.
	Usage    UsageStore
	Failures *events.Collector
	Logger   *slog.Logger
}

func NewAdminHandler(d AdminDeps) *AdminHandler {
	return &AdminHandler{
		providers: d.Providers,
		routing:   d.Routing,
		cache:     d.Cache,
		ledger:    d.Ledger,
		usage:     d.Usage,
		failures:  d.Failures,
		logger:    d.Logger.With("component", "admin_handler"),
	}
}

// RegisterRoutes expects router to be mounted at /admin.
func (h *AdminHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/providers", h.ListProviders).Methods("GET")
	router.HandleFunc("/cache/stats", h.GetCacheStats).Methods("GET")
	router.HandleFunc("/failures", h.ListFailures).Methods("GET")
	router.HandleFunc("/users/{id}/quota", h.GetQuota).Methods("GET")
	router.HandleFunc("/users/{id}/usage", h.GetUsage).Methods("GET")
}

type providerView struct {
	Name           string                 `json:"name"`
	ContentTypes   []models.ContentType   `json:"content_types"`
	CostPerCall    float64                `json:"cost_per_call"`
	QualityScore   float64                `json:"quality_score"`
	AverageLatency string                 `json:"average_latency"`
	Health         routing.ProviderHealth `json:"health"`
}

func (h *AdminHandler) ListProviders(w http.ResponseWriter, r *http.Request) {
	out := make([]providerView, 0, h.providers.Len())
	for _, p := range h.providers.Providers() {
		caps := p.Capabilities()
		out = append(out, providerView{
			Name:           p.Name(),
			ContentTypes:   caps.ContentTypes,
			CostPerCall:    caps.CostPerCall,
			QualityScore:   caps.QualityScore,
			AverageLatency: caps.AverageLatency.String(),
			Health:         h.routing.Health(p.Name()),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *AdminHandler) GetCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.cache.Stats())
}

func (h *AdminHandler) ListFailures(w http.ResponseWriter, r *http.Request) {
	if h.failures == nil {
		writeJSON(w, http.StatusOK, []models.FailureEvent{})
		return
	}
	writeJSON(w, http.StatusOK, h.failures.Events())
}

// GetQuota reports every feature's state for the user. ?plan= selects the tier, default free.
func (h *AdminHandler) GetQuota(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]
	plan := r.URL.Query().Get("plan")
	if plan == "" {
		plan = config.DefaultPlan
	}

	states := make([]models.QuotaState, len(models.AllContentTypes))
	g, ctx := errgroup.WithContext(r.Context())
	for i, feature := range models.AllContentTypes {
		g.Go(func() error {
			st, err := h.ledger.State(ctx, userID, plan, feature)
			if err != nil {
				return err
			}
			states[i] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to read quota", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read quota")
		return
	}

	writeJSON(w, http.StatusOK, states)
}

// GetUsage summarizes recorded usage in [from, to). Dates are YYYY-MM-DD; the default range
// is the current month to date.
func (h *AdminHandler) GetUsage(w http.ResponseWriter, r *http.Request) {
	if h.usage == nil {
		writeError(w, http.StatusServiceUnavailable, "usage history is not configured")
		return
	}

	userID := mux.Vars(r)["id"]
	now := time.Now().UTC()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	to := now.AddDate(0, 0, 1).Truncate(24 * time.Hour)

	var err error
	if s := r.URL.Query().Get("from"); s != "" {
		if from, err = time.Parse(dateLayout, s); err != nil {
			writeError(w, http.StatusBadRequest, "from must be YYYY-MM-DD")
			return
		}
	}
	if s := r.URL.Query().Get("to"); s != "" {
		if to, err = time.Parse(dateLayout, s); err != nil {
			writeError(w, http.StatusBadRequest, "to must be YYYY-MM-DD")
			return
		}
	}
	if !from.Before(to) {
		writeError(w, http.StatusBadRequest, "from must be before to")
		return
	}

	summary, err := h.usage.UsageSummary(r.Context(), userID, from, to)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to summarize usage", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get usage")
		return
	}
	if summary == nil {
		summary = []models.UsageSummary{}
	}
	writeJSON(w, http.StatusOK, summary)
}
