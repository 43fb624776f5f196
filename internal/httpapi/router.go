package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"driplink/internal/httpapi/handlers"
	"driplink/internal/httpkit"
	"driplink/internal/pkg/logger"
	"driplink/internal/pkg/middleware"
	"driplink/internal/storage"
)

type Deps struct {
	Jobs           handlers.JobService
	Layout         *storage.Layout
	Checker        handlers.RenderChecker
	AllowedOrigins []string
	Log            *logger.Logger
}

func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(log))
	r.Use(middleware.Recovery(log))
	r.Use(httpkit.CORS(httpkit.CORSOptions{
		AllowedOrigins: d.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAgeSeconds:  600,
	}))

	h := handlers.New(handlers.Deps{
		Jobs:    d.Jobs,
		Layout:  d.Layout,
		Checker: d.Checker,
		Log:     log,
	})

	// ---- HEALTH ----
	r.Get("/health", h.Health)

	// ---- RENDER JOBS ----
	r.Post("/api/upload", h.PostUpload)
	r.Get("/api/status/{jobID}", h.GetStatus)
	r.Get("/api/result/{jobID}", h.GetResult)

	// ---- RESULTS (static downloads of rendered outputs) ----
	fileServer := http.StripPrefix("/results", http.FileServer(http.Dir(d.Layout.OutputRoot())))
	r.Get("/results/*", fileServer.ServeHTTP)

	return r
}
