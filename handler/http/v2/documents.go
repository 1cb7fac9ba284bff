package v2

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"pdfchat/src/infrastructure/job"
	"pdfchat/src/jobctrl"
)

type uploadResponse struct {
	Name string   `json:"name"`
	Job  *job.Job `json:"job,omitempty"`
}

// UploadDocument godoc
// @Summary Add a PDF to the corpus
// @Tags documents
// @Accept multipart/form-data
// @Param file formData file true "PDF file"
// @Param ingest formData bool false "Queue an ingestion of the new file"
// @Produce json
// @Success 201 {object} uploadResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /documents [post]
func (h *Handler) UploadDocument(c *gin.Context) {
	// Get file from form data
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		sendError(c, http.StatusBadRequest, fmt.Errorf("file upload required: %w", err))
		return
	}
	defer file.Close()

	name, err := h.uploads.Put(c.Request.Context(), header.Filename, file, header.Size)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	resp := uploadResponse{Name: name}

	if ingest, _ := strconv.ParseBool(c.PostForm("ingest")); ingest && h.jobs != nil {
		payload, err := json.Marshal(jobctrl.IngestPayload{Files: []string{name}})
		if err != nil {
			sendError(c, http.StatusInternalServerError, err)
			return
		}
		if resp.Job, err = h.jobs.EnqueueJob(c.Request.Context(), jobctrl.TaskTypeIngest, payload); err != nil {
			sendError(c, http.StatusInternalServerError, err)
			return
		}
	}

	sendJSON(c, http.StatusCreated, resp)
}

// CreateIngestion godoc
// @Summary Queue an ingestion run
// @Tags ingestions
// @Accept json
// @Produce json
// @Param body body jobctrl.IngestPayload false "Files to ingest and whether to reset the index first"
// @Success 202 {object} job.Job
// @Failure 400 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /ingestions [post]
func (h *Handler) CreateIngestion(c *gin.Context) {
	if h.jobs == nil {
		sendError(c, http.StatusServiceUnavailable, fmt.Errorf("ingestion jobs are not enabled"))
		return
	}

	var req jobctrl.IngestPayload
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	payload, err := json.Marshal(req)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	created, err := h.jobs.EnqueueJob(c.Request.Context(), jobctrl.TaskTypeIngest, payload)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	sendJSON(c, http.StatusAccepted, created)
}

// GetIngestion godoc
// @Summary Get the status of an ingestion job
// @Tags ingestions
// @Param id path int true "Job ID"
// @Produce json
// @Success 200 {object} job.Job
// @Failure 404 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /ingestions/{id} [get]
func (h *Handler) GetIngestion(c *gin.Context) {
	if h.jobs == nil {
		sendError(c, http.StatusServiceUnavailable, fmt.Errorf("ingestion jobs are not enabled"))
		return
	}

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		sendError(c, http.StatusBadRequest, fmt.Errorf("invalid job id %q", c.Param("id")))
		return
	}

	found, err := h.jobs.GetJob(c.Request.Context(), id)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	if found == nil {
		sendError(c, http.StatusNotFound, fmt.Errorf("job %d not found", id))
		return
	}

	sendJSON(c, http.StatusOK, found)
}
