package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/DetectionEmotionUAS/detectionemotion/service"
)

type Handler struct {
	pipeline  *service.Pipeline
	maxUpload int64
}

func NewHandler(p *service.Pipeline, maxUpload int64) *Handler {
	return &Handler{pipeline: p, maxUpload: maxUpload}
}

func (h *Handler) Upload(c *gin.Context) {
	if h.maxUpload > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.pipeline.Metrics.ObserveRequest(&service.ClientError{Kind: service.ErrMissingFile, Message: "file too large"})
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}
		h.reject(c, &service.ClientError{Kind: service.ErrMissingFile, Message: "no file part in the request", Err: err})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.reject(c, &service.ClientError{Kind: service.ErrMissingFile, Message: "cannot open the uploaded file", Err: err})
		return
	}
	defer file.Close()

	slog.Info("Upload received", slog.String("filename", fileHeader.Filename), slog.Int64("size", fileHeader.Size))

	resp, err := h.pipeline.Process(c.Request.Context(), fileHeader.Filename, file)
	if err != nil {
		writeError(c, err)
		return
	}

	slog.Info("Prediction",
		slog.String("filename", resp.Filename),
		slog.String("expression", resp.Expression),
		slog.Float64("accuracy", resp.Accuracy),
	)
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) reject(c *gin.Context, err *service.ClientError) {
	h.pipeline.Metrics.ObserveRequest(err)
	writeError(c, err)
}

func writeError(c *gin.Context, err error) {
	var ce *service.ClientError
	if errors.As(err, &ce) {
		slog.Warn("Upload rejected", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": ce.Message})
		return
	}
	slog.Error("Prediction failed", slog.String("error", err.Error()))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed: " + err.Error()})
}

func HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}
