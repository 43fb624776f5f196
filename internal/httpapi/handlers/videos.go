package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"driplink/internal/httpkit"
	"driplink/internal/jobs"
	"driplink/internal/overlay"
)

// maxUploadBytes bounds the in-memory portion of multipart parsing; larger
// parts spill to temp files.
const maxUploadBytes = 512 << 20

type UploadResponse struct {
	JobID     string `json:"job_id"`
	StatusURL string `json:"status_url"`
	ResultURL string `json:"result_url"`
}

type StatusResponse struct {
	JobID    string      `json:"job_id"`
	Status   jobs.Status `json:"status"`
	Progress float64     `json:"progress"`
	Message  string      `json:"message,omitempty"`
}

type ResultResponse struct {
	JobID string `json:"job_id"`
	URL   string `json:"url"`
}

// PostUpload accepts a multipart form with the base video, the overlay
// metadata JSON, and optional overlay asset files. It registers the render
// job and returns immediately; the client polls the status URL.
func (h *Handler) PostUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := h.log.FromContext(ctx)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		httpkit.WriteErr(w, 400, "VALIDATION_ERROR", "invalid multipart form", nil)
		return
	}

	metaRaw := r.FormValue("metadata")
	if metaRaw == "" {
		httpkit.WriteErr(w, 400, "VALIDATION_ERROR", "metadata is required", map[string]any{"field": "metadata"})
		return
	}
	meta, err := overlay.DecodeMetadata([]byte(metaRaw))
	if err != nil {
		httpkit.WriteErr(w, 400, "VALIDATION_ERROR", "invalid metadata JSON: "+err.Error(), map[string]any{"field": "metadata"})
		return
	}

	video, _, err := r.FormFile("video")
	if err != nil {
		httpkit.WriteErr(w, 400, "VALIDATION_ERROR", "video file is required", map[string]any{"field": "video"})
		return
	}
	defer video.Close()

	jobID := uuid.NewString()

	jobDir, err := h.layout.PrepareJobDir(jobID)
	if err != nil {
		log.Error("prepare job dir failed", "error", err.Error())
		httpkit.WriteErr(w, 500, "INTERNAL_ERROR", "storage failure", nil)
		return
	}

	inputPath, err := h.layout.SaveUpload(jobDir, "input.mp4", video)
	if err != nil {
		log.Error("save base video failed", "error", err.Error())
		httpkit.WriteErr(w, 500, "INTERNAL_ERROR", "storage failure", nil)
		return
	}

	if _, err := h.layout.WriteMetadata(jobDir, meta); err != nil {
		log.Error("write metadata failed", "error", err.Error())
		httpkit.WriteErr(w, 500, "INTERNAL_ERROR", "storage failure", nil)
		return
	}

	// Overlay assets are keyed by their original upload filename; overlay
	// content values reference those keys.
	assets := make(map[string]string)
	if r.MultipartForm != nil {
		for _, header := range r.MultipartForm.File["assets"] {
			f, err := header.Open()
			if err != nil {
				httpkit.WriteErr(w, 400, "VALIDATION_ERROR", "unreadable asset: "+header.Filename, nil)
				return
			}
			stored, err := h.layout.SaveUpload(jobDir, header.Filename, f)
			f.Close()
			if err != nil {
				log.Error("save asset failed", "asset", header.Filename, "error", err.Error())
				httpkit.WriteErr(w, 500, "INTERNAL_ERROR", "storage failure", nil)
				return
			}
			assets[header.Filename] = stored
		}
	}

	h.jobs.Start(jobID, inputPath, meta, assets)
	log.WithJobID(jobID).Info("upload accepted",
		"overlays", len(meta.Overlays),
		"assets", len(assets),
	)

	httpkit.WriteJSON(w, 200, UploadResponse{
		JobID:     jobID,
		StatusURL: "/api/status/" + jobID,
		ResultURL: "/api/result/" + jobID,
	})
}

// GetStatus returns the job's pollable snapshot.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	job, ok := h.jobs.Status(jobID)
	if !ok {
		httpkit.WriteErr(w, 404, "JOB_NOT_FOUND", "job not found", map[string]any{"job_id": jobID})
		return
	}

	httpkit.WriteJSON(w, 200, StatusResponse{
		JobID:    job.ID,
		Status:   job.Status,
		Progress: job.Progress,
		Message:  job.Message,
	})
}

// GetResult returns the download URL of a completed render.
func (h *Handler) GetResult(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	job, ok := h.jobs.Status(jobID)
	if !ok {
		httpkit.WriteErr(w, 404, "JOB_NOT_FOUND", "job not found", map[string]any{"job_id": jobID})
		return
	}
	if job.Status != jobs.StatusCompleted {
		httpkit.WriteErr(w, 409, "JOB_NOT_COMPLETED", "job not completed", map[string]any{
			"job_id": jobID,
			"status": string(job.Status),
		})
		return
	}

	httpkit.WriteJSON(w, 200, ResultResponse{
		JobID: jobID,
		URL:   h.layout.ResultURL(jobID),
	})
}
