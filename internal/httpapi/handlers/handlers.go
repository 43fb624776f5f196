package handlers

import (
	"driplink/internal/jobs"
	"driplink/internal/overlay"
	"driplink/internal/pkg/logger"
	"driplink/internal/storage"
)

// JobService is the slice of the job manager the API depends on.
type JobService interface {
	Start(jobID, inputPath string, meta overlay.Metadata, assets map[string]string)
	Status(jobID string) (jobs.Job, bool)
	Result(jobID string) (string, bool)
}

// RenderChecker verifies the external transcoder tooling is available.
type RenderChecker interface {
	Check() error
}

type Deps struct {
	Jobs    JobService
	Layout  *storage.Layout
	Checker RenderChecker
	Log     *logger.Logger
}

type Handler struct {
	jobs    JobService
	layout  *storage.Layout
	checker RenderChecker
	log     *logger.Logger
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	return &Handler{
		jobs:    d.Jobs,
		layout:  d.Layout,
		checker: d.Checker,
		log:     log.WithComponent("httpapi"),
	}
}
