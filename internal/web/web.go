package web

import (
	_ "embed"
	"encoding/json"
	"html/template"
	"net/http"
	"time"

	"github.com/d2r2/go-logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lutzky/sensormon/internal/monitor"
	"github.com/lutzky/sensormon/internal/panel"
	"github.com/lutzky/sensormon/internal/state"
)

var lg = logger.NewPackageLogger("web", logger.InfoLevel)

//go:embed template.html
var httpTemplateText string

var httpTemplate = template.Must(template.New("root").Parse(httpTemplateText))

// Handler serves read-only views of the shared state.
type Handler struct {
	shared     *state.Shared
	items      []monitor.Item
	staleAfter map[string]time.Duration
	mux        *http.ServeMux
}

// NewHandler returns the HTTP handler. Metrics from gatherer are served on
// /metrics.
func NewHandler(shared *state.Shared, items []monitor.Item, gatherer prometheus.Gatherer) *Handler {
	h := &Handler{
		shared:     shared,
		items:      items,
		staleAfter: make(map[string]time.Duration),
		mux:        http.NewServeMux(),
	}
	for _, it := range items {
		h.staleAfter[it.Field] = it.StaleAfter
	}

	h.mux.HandleFunc("/", h.serveHTML)
	h.mux.HandleFunc("/api", h.serveJSON)
	h.mux.HandleFunc("/panel.png", h.servePanel)
	h.mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// FieldView is the JSON and template view of one field.
type FieldView struct {
	Value      *float64  `json:"value"`
	Status     string    `json:"status,omitempty"`
	Updated    time.Time `json:"updated"`
	AgeSeconds float64   `json:"age_seconds,omitempty"`
	Freshness  string    `json:"freshness"`
}

// View is the document served on /api.
type View struct {
	At      time.Time            `json:"at"`
	Running bool                 `json:"running"`
	Line    string               `json:"line"`
	Fields  map[string]FieldView `json:"fields"`
}

func (h *Handler) view() View {
	snap := h.shared.Snapshot()
	v := View{
		At:      snap.At,
		Running: snap.Running,
		Line:    monitor.Render(snap, h.items),
		Fields:  make(map[string]FieldView, len(snap.Fields)),
	}
	for _, name := range snap.Names() {
		f := snap.Fields[name]
		fv := FieldView{
			Status:    f.Status,
			Freshness: snap.Freshness(name, h.staleAfter[name]).String(),
		}
		if age, ok := snap.Age(name); ok {
			value := f.Value
			fv.Value = &value
			fv.Updated = f.Updated
			fv.AgeSeconds = age.Seconds()
		}
		v.Fields[name] = fv
	}
	return v
}

func (h *Handler) serveHTML(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if err := httpTemplate.Execute(w, h.view()); err != nil {
		lg.Errorf("Error executing HTTP template: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) serveJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.view()); err != nil {
		lg.Errorf("Error encoding JSON: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) servePanel(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "image/png")
	if err := panel.WritePNG(w, h.shared.Snapshot(), h.items); err != nil {
		lg.Errorf("Error rendering panel: %v", err)
	}
}
