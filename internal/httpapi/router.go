package httpapi

import (
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/NeptuneCipher42/rcc-dashboard/internal/model"
)

const defaultMaxUploadMB = 512

// StatusService is the read side of the dashboard.
type StatusService interface {
	Health() model.Health
	Status(ctx context.Context) model.StatusSnapshot
	Catalogs(ctx context.Context) (model.CatalogList, error)
}

// Operations are the long-running rcc commands.
type Operations interface {
	RebuildCatalogs(ctx context.Context) model.OperationResult
	ImportZip(ctx context.Context, filename string) model.OperationResult
}

type RobotStore interface {
	ListRobots() ([]model.RobotSummary, error)
	GetRobot(name string) (model.RobotDetail, error)
	ReadRobotFile(name, filename string) (model.RobotFile, error)
	CreateRobot(name string) (string, string, error)
	DeleteRobot(name string) (string, error)
	UploadRobotFiles(name string, files []*multipart.FileHeader) (model.UploadReport, error)
	UpdateRobotCoreFiles(name, robotYAML, condaYAML string) (string, error)
}

type ZipStore interface {
	ListZips() ([]model.HololibZip, error)
	SaveZip(fh *multipart.FileHeader) (string, error)
	DeleteZip(filename string) (string, error)
	ZipFile(filename string) (string, error)
}

type Observer interface {
	ObserveHTTPRequest(method, route string, status int, duration time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveHTTPRequest(string, string, int, time.Duration) {}

type Deps struct {
	Status  StatusService
	Ops     Operations
	Robots  RobotStore
	Zips    ZipStore
	Logger  *zap.Logger
	Metrics Observer
	// MetricsHandler is mounted at /metrics when set.
	MetricsHandler http.Handler
	// StaticDir holds the single-page UI. Empty disables static serving.
	StaticDir   string
	MaxUploadMB int64
}

type api struct {
	Deps
	maxUploadBytes int64
}

func NewRouter(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = nopObserver{}
	}
	if deps.MaxUploadMB <= 0 {
		deps.MaxUploadMB = defaultMaxUploadMB
	}
	a := &api{Deps: deps, maxUploadBytes: deps.MaxUploadMB << 20}
	a.Logger = deps.Logger.Named("http")

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", a.health)
	mux.HandleFunc("GET /api/status", a.status)
	mux.HandleFunc("GET /api/catalogs", a.catalogs)
	mux.HandleFunc("POST /api/catalogs/rebuild", a.rebuildCatalogs)

	mux.HandleFunc("GET /api/robots", a.listRobots)
	mux.HandleFunc("POST /api/robots", a.createRobot)
	mux.HandleFunc("GET /api/robots/{name}", a.getRobot)
	mux.HandleFunc("DELETE /api/robots/{name}", a.deleteRobot)
	mux.HandleFunc("GET /api/robots/{name}/files/{filename...}", a.readRobotFile)
	mux.HandleFunc("PUT /api/robots/{name}/files", a.updateRobotFiles)
	mux.HandleFunc("POST /api/robots/{name}/upload", a.uploadRobotFiles)

	mux.HandleFunc("GET /api/hololib-zips", a.listZips)
	mux.HandleFunc("POST /api/hololib-zips/upload", a.uploadZip)
	mux.HandleFunc("DELETE /api/hololib-zips/{filename}", a.deleteZip)
	mux.HandleFunc("POST /api/hololib-zips/{filename}/import", a.importZip)

	mux.HandleFunc("GET /api/", func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	if deps.MetricsHandler != nil {
		mux.Handle("GET /metrics", deps.MetricsHandler)
	}
	if deps.StaticDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(deps.StaticDir)))
	}

	return otelhttp.NewHandler(cors(a.instrument(mux)), "rccdash",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
