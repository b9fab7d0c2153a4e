// Package server is the HTTP boundary of the publishing service. It maps the
// multipart upload form and the token-exchange query onto the facebook client
// and translates its error taxonomy into status codes.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"fbpublish/internal/archive"
	"fbpublish/internal/facebook"
)

// scheduleLayout is the wire format for scheduled_time, interpreted as UTC.
const scheduleLayout = "2006-01-02 15:04"

const defaultMaxMemory = 32 << 20

// Publisher is the slice of the facebook client the handlers need.
type Publisher interface {
	Upload(ctx context.Context, req facebook.UploadRequest, opts ...facebook.UploadOption) (string, error)
	ExchangeToken(ctx context.Context, appID, appSecret, shortToken string) (string, error)
}

type Handler struct {
	fb      Publisher
	store   archive.Store
	logger  *slog.Logger
	maxSize int64
}

// NewHandler creates a Handler. store may be nil to disable archiving;
// maxSize of zero disables the size limit.
func NewHandler(fb Publisher, store archive.Store, logger *slog.Logger, maxSize int64) *Handler {
	return &Handler{
		fb:      fb,
		store:   store,
		logger:  logger,
		maxSize: maxSize,
	}
}

type uploadResponse struct {
	Status  string `json:"status"`
	VideoID string `json:"video_id"`
}

func (h *Handler) UploadVideo(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(defaultMaxMemory); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid multipart form: %v", err))
		return
	}

	pageID := r.FormValue("page_id")
	accessToken := r.FormValue("access_token")
	title := r.FormValue("title")
	description := r.FormValue("description")

	for name, value := range map[string]string{
		"page_id":      pageID,
		"access_token": accessToken,
		"title":        title,
		"description":  description,
	} {
		if value == "" {
			writeError(w, http.StatusBadRequest, "missing required form field: "+name)
			return
		}
	}

	var scheduledAt *time.Time
	if s := r.FormValue("scheduled_time"); s != "" {
		parsed, err := time.ParseInLocation(scheduleLayout, s, time.UTC)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid scheduled_time, expected YYYY-MM-DD HH:MM (UTC)")
			return
		}
		scheduledAt = &parsed
	}

	file, header, err := r.FormFile("video_file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing video_file")
		return
	}
	defer func() { _ = file.Close() }()

	if h.maxSize > 0 && header.Size > h.maxSize {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("video exceeds maximum size of %d bytes", h.maxSize))
		return
	}

	videoID, err := h.fb.Upload(r.Context(), facebook.UploadRequest{
		PageID:      pageID,
		AccessToken: accessToken,
		Source:      file,
		Size:        header.Size,
		Title:       title,
		Description: description,
		ScheduledAt: scheduledAt,
	}, facebook.WithProgress(func(transferred, total int64) {
		h.logger.Debug("upload progress",
			"page_id", pageID,
			"percent", fmt.Sprintf("%.2f", float64(transferred)/float64(total)*100),
		)
	}))
	if err != nil {
		h.logger.Error("video upload failed", "page_id", pageID, "error", err)
		writeError(w, uploadStatusCode(err), err.Error())
		return
	}

	h.archiveVideo(r.Context(), videoID, file)

	writeJSON(w, http.StatusOK, uploadResponse{Status: "success", VideoID: videoID})
}

// uploadStatusCode maps the upload error taxonomy: caller mistakes are 400,
// remote protocol failures are 502, the rest 500.
func uploadStatusCode(err error) int {
	switch {
	case errors.Is(err, facebook.ErrInvalidSchedule),
		errors.Is(err, facebook.ErrNoSource),
		errors.Is(err, facebook.ErrTruncatedSource):
		return http.StatusBadRequest
	case errors.Is(err, facebook.ErrSessionStart),
		errors.Is(err, facebook.ErrTransfer),
		errors.Is(err, facebook.ErrFinish):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// archiveVideo keeps a copy of the uploaded video, best effort.
func (h *Handler) archiveVideo(ctx context.Context, videoID string, file io.ReadSeeker) {
	if h.store == nil {
		return
	}

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		h.logger.Warn("failed to rewind video for archiving", "video_id", videoID, "error", err)
		return
	}

	location, err := h.store.Save(ctx, videoID+".mp4", file)
	if err != nil {
		h.logger.Warn("failed to archive video", "video_id", videoID, "error", err)
		return
	}

	h.logger.Info("video archived", "video_id", videoID, "location", location)
}

type exchangeResponse struct {
	Status             string `json:"status"`
	LongLivedUserToken string `json:"long_lived_user_token"`
}

func (h *Handler) ExchangeToken(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	appID := query.Get("app_id")
	appSecret := query.Get("app_secret")
	shortToken := query.Get("short_token")

	if appID == "" || appSecret == "" || shortToken == "" {
		writeError(w, http.StatusBadRequest, "app_id, app_secret and short_token are required")
		return
	}

	token, err := h.fb.ExchangeToken(r.Context(), appID, appSecret, shortToken)
	switch {
	case errors.Is(err, facebook.ErrTokenExchange):
		h.logger.Error("token exchange rejected", "app_id", appID, "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.logger.Error("token exchange failed", "app_id", appID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, exchangeResponse{Status: "success", LongLivedUserToken: token})
}

type archivesResponse struct {
	Videos []string `json:"videos"`
}

func (h *Handler) ListArchives(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusNotFound, "archiving is disabled")
		return
	}

	names, err := h.store.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list archives", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if names == nil {
		names = []string{}
	}

	writeJSON(w, http.StatusOK, archivesResponse{Videos: names})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
