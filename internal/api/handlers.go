package api

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"violation-service/internal/apperr"
	"violation-service/internal/evidence"
	"violation-service/internal/models"
)

func (h *Handler) CreateViolation(c *gin.Context) {
	var in models.ViolationCreate
	if err := c.ShouldBindJSON(&in); err != nil {
		h.logger.Errorf("Invalid request body for violation: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "code": "validation_error"})
		return
	}

	v, err := h.engine.CreateViolation(c.Request.Context(), actorFrom(c), in)
	if err != nil {
		h.fail(c, "create violation", err)
		return
	}
	c.JSON(http.StatusCreated, v)
}

func (h *Handler) ListViolations(c *gin.Context) {
	f := models.ViolationFilter{Status: models.ViolationStatus(c.Query("status"))}
	f.Limit, f.Offset = page(c)
	if s := c.Query("owner_id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid owner_id", "code": "validation_error"})
			return
		}
		f.OwnerID = id
	}

	list, err := h.engine.ListViolations(c.Request.Context(), actorFrom(c), f)
	if err != nil {
		h.fail(c, "list violations", err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) GetViolation(c *gin.Context) {
	v, err := h.engine.GetViolation(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, "get violation", err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *Handler) ViolationHistory(c *gin.Context) {
	h.history(c, "violation")
}

func (h *Handler) ContestHistory(c *gin.Context) {
	h.history(c, "contest")
}

func (h *Handler) history(c *gin.Context, entity string) {
	logs, err := h.engine.History(c.Request.Context(), actorFrom(c), entity, c.Param("id"))
	if err != nil {
		h.fail(c, "get "+entity+" history", err)
		return
	}
	c.JSON(http.StatusOK, logs)
}

// SubmitAppeal takes a multipart form with an explanation and at most one
// evidence file.
func (h *Handler) SubmitAppeal(c *gin.Context) {
	explanation := c.PostForm("explanation")
	var files []evidence.File
	if form, err := c.MultipartForm(); err == nil {
		fields := make([]string, 0, len(form.File))
		n := 0
		for field, fhs := range form.File {
			fields = append(fields, field)
			n += len(fhs)
		}
		if n > 1 {
			h.fail(c, "submit appeal", apperr.Validation("evidence", "at most one file may be attached, got %d", n))
			return
		}
		sort.Strings(fields)
		for _, field := range fields {
			for _, fh := range form.File[field] {
				f, err := readUpload(fh)
				if err != nil {
					h.fail(c, "read evidence", apperr.Validation("evidence", "%v", err))
					return
				}
				files = append(files, f)
			}
		}
	}

	contest, err := h.engine.SubmitAppeal(c.Request.Context(), actorFrom(c), c.Param("id"), explanation, files)
	if err != nil {
		h.fail(c, "submit appeal", err)
		return
	}
	h.logger.Infof("Appeal %s submitted for violation %s", contest.ID, contest.ViolationID)
	c.JSON(http.StatusCreated, contest)
}

// readUpload reads at most one byte past the evidence limit so oversized
// files are rejected without buffering them whole.
func readUpload(fh *multipart.FileHeader) (evidence.File, error) {
	if fh.Size > evidence.MaxSize {
		return evidence.File{}, fmt.Errorf("%s exceeds the %d byte limit", fh.Filename, evidence.MaxSize)
	}
	src, err := fh.Open()
	if err != nil {
		return evidence.File{}, fmt.Errorf("failed to open %s: %w", fh.Filename, err)
	}
	defer src.Close()
	data, err := io.ReadAll(io.LimitReader(src, evidence.MaxSize+1))
	if err != nil {
		return evidence.File{}, fmt.Errorf("failed to read %s: %w", fh.Filename, err)
	}
	return evidence.File{Name: fh.Filename, Data: data}, nil
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) RejectViolation(c *gin.Context) {
	var req rejectRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "code": "validation_error"})
			return
		}
	}
	v, err := h.engine.RejectViolation(c.Request.Context(), actorFrom(c), c.Param("id"), req.Reason)
	if err != nil {
		h.fail(c, "reject violation", err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *Handler) ListContests(c *gin.Context) {
	f := models.ContestFilter{Status: models.ContestStatus(c.Query("status"))}
	f.Limit, f.Offset = page(c)
	list, err := h.engine.ListContests(c.Request.Context(), actorFrom(c), f)
	if err != nil {
		h.fail(c, "list contests", err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) GetContest(c *gin.Context) {
	detail, err := h.engine.GetContest(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, "get contest", err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

type reviewRequest struct {
	Action models.ReviewAction `json:"action" binding:"required"`
	Notes  string              `json:"notes"`
}

func (h *Handler) ReviewContest(c *gin.Context) {
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Errorf("Invalid review request: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "code": "validation_error"})
		return
	}
	req.Action = models.ReviewAction(strings.ToLower(strings.TrimSpace(string(req.Action))))

	contest, err := h.engine.Review(c.Request.Context(), actorFrom(c), c.Param("id"), req.Action, req.Notes)
	if err != nil {
		h.fail(c, "review contest", err)
		return
	}
	c.JSON(http.StatusOK, contest)
}
