package facebook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"time"
)

// scheduleLeadTime is the minimum distance a scheduled publish time must be
// in the future. The Graph API rejects anything closer.
const scheduleLeadTime = 10 * time.Minute

// UploadRequest describes one video upload to a page. The source must be
// positioned anywhere; Upload seeks as the remote dictates. Upload owns the
// source exclusively for the duration of the call, but closing it remains
// the caller's responsibility.
type UploadRequest struct {
	PageID      string
	AccessToken string
	Source      io.ReadSeeker
	Size        int64
	Title       string
	Description string
	ScheduledAt *time.Time
}

// ProgressFunc receives the number of bytes the remote has accepted so far
// and the total size after every transfer round trip.
type ProgressFunc func(transferred, total int64)

// UploadOption configures an Upload call.
type UploadOption func(*uploadOptions)

type uploadOptions struct {
	progress ProgressFunc
}

// WithProgress registers a callback invoked after each accepted chunk.
func WithProgress(fn ProgressFunc) UploadOption {
	return func(o *uploadOptions) {
		o.progress = fn
	}
}

// sessionState is the server-issued upload window. Offsets only ever move to
// the values the remote returns; the client never computes its own.
type sessionState struct {
	sessionID   string
	videoID     string
	startOffset int64
	endOffset   int64
}

// checkWindow validates a remote-issued window against the declared size.
// An end past the size is clamped to it; a negative or inverted window is
// rejected before it can drive a read.
func (s *sessionState) checkWindow(size int64) error {
	if s.endOffset > size {
		s.endOffset = size
	}
	if s.startOffset < 0 || s.startOffset > s.endOffset {
		return fmt.Errorf("invalid upload window [%d, %d)", s.startOffset, s.endOffset)
	}
	return nil
}

// Upload runs the three-phase chunked upload protocol and returns the remote
// video id. The phases are strictly sequential and none is retried; any
// failure is terminal for this call and the remote session is abandoned.
func (c *Client) Upload(ctx context.Context, req UploadRequest, opts ...UploadOption) (string, error) {
	var options uploadOptions
	for _, opt := range opts {
		opt(&options)
	}

	if req.Source == nil {
		return "", ErrNoSource
	}

	var scheduledAt int64
	if req.ScheduledAt != nil {
		ts, err := validateSchedule(*req.ScheduledAt)
		if err != nil {
			return "", err
		}
		scheduledAt = ts
	}

	state, err := c.startSession(ctx, req)
	if err != nil {
		return "", err
	}

	if err := c.transferChunks(ctx, req, &state, options.progress); err != nil {
		return "", err
	}

	if err := c.finishSession(ctx, req, state, scheduledAt); err != nil {
		return "", err
	}

	return state.videoID, nil
}

// validateSchedule normalizes the instant to UTC and returns its Unix
// timestamp. Instants not strictly more than scheduleLeadTime in the future
// are rejected.
func validateSchedule(t time.Time) (int64, error) {
	t = t.UTC()
	if !t.After(time.Now().UTC().Add(scheduleLeadTime)) {
		return 0, fmt.Errorf("%w: must be more than %s in the future", ErrInvalidSchedule, scheduleLeadTime)
	}
	return t.Unix(), nil
}

type startResponse struct {
	UploadSessionID string      `json:"upload_session_id"`
	VideoID         string      `json:"video_id"`
	StartOffset     offset      `json:"start_offset"`
	EndOffset       offset      `json:"end_offset"`
	Error           *graphError `json:"error"`
}

func (c *Client) startSession(ctx context.Context, req UploadRequest) (sessionState, error) {
	form := url.Values{}
	form.Set("upload_phase", "start")
	form.Set("file_size", strconv.FormatInt(req.Size, 10))
	form.Set("access_token", req.AccessToken)

	raw, err := c.postForm(ctx, c.videosURL(req.PageID), form)
	if err != nil {
		return sessionState{}, fmt.Errorf("%w: %v", ErrSessionStart, err)
	}

	var resp startResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return sessionState{}, fmt.Errorf("%w: %v", ErrSessionStart, err)
	}
	if resp.Error != nil {
		return sessionState{}, fmt.Errorf("%w: %s", ErrSessionStart, resp.Error.text())
	}
	if resp.UploadSessionID == "" || resp.VideoID == "" {
		return sessionState{}, fmt.Errorf("%w: response missing session or video id", ErrSessionStart)
	}

	state := sessionState{
		sessionID:   resp.UploadSessionID,
		videoID:     resp.VideoID,
		startOffset: int64(resp.StartOffset),
		endOffset:   int64(resp.EndOffset),
	}
	if err := state.checkWindow(req.Size); err != nil {
		return sessionState{}, fmt.Errorf("%w: %v", ErrSessionStart, err)
	}

	return state, nil
}

type transferResponse struct {
	StartOffset *offset     `json:"start_offset"`
	EndOffset   *offset     `json:"end_offset"`
	Error       *graphError `json:"error"`
}

func (c *Client) transferChunks(ctx context.Context, req UploadRequest, state *sessionState, progress ProgressFunc) error {
	for state.startOffset < req.Size {
		chunk, err := readChunk(req.Source, state.startOffset, state.endOffset-state.startOffset)
		if err != nil {
			return err
		}

		raw, err := c.postChunk(ctx, c.videosURL(req.PageID), map[string]string{
			"upload_phase":      "transfer",
			"upload_session_id": state.sessionID,
			"start_offset":      strconv.FormatInt(state.startOffset, 10),
			"access_token":      req.AccessToken,
		}, "video_file_chunk", chunk)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTransfer, err)
		}

		var resp transferResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return fmt.Errorf("%w: %v", ErrTransfer, err)
		}
		if resp.Error != nil {
			return fmt.Errorf("%w: %s", ErrTransfer, resp.Error.text())
		}

		// The remote dictates the next window; an absent field keeps the
		// previous value.
		if resp.StartOffset != nil {
			state.startOffset = int64(*resp.StartOffset)
		}
		if resp.EndOffset != nil {
			state.endOffset = int64(*resp.EndOffset)
		}
		if err := state.checkWindow(req.Size); err != nil {
			return fmt.Errorf("%w: %v", ErrTransfer, err)
		}

		if progress != nil {
			progress(state.startOffset, req.Size)
		}
	}

	return nil
}

// readChunk reads up to n bytes at the given offset. A zero-byte read while
// more bytes are owed means the source is shorter than its declared size.
func readChunk(src io.ReadSeeker, off, n int64) ([]byte, error) {
	if _, err := src.Seek(off, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek video source: %w", err)
	}

	buf := make([]byte, n)
	read, err := io.ReadFull(src, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("failed to read video source: %w", err)
	}
	if read == 0 {
		return nil, fmt.Errorf("%w: no data at offset %d", ErrTruncatedSource, off)
	}

	return buf[:read], nil
}

func (c *Client) finishSession(ctx context.Context, req UploadRequest, state sessionState, scheduledAt int64) error {
	form := url.Values{}
	form.Set("upload_phase", "finish")
	form.Set("upload_session_id", state.sessionID)
	form.Set("access_token", req.AccessToken)
	form.Set("title", req.Title)
	form.Set("description", req.Description)
	if scheduledAt != 0 {
		form.Set("published", "false")
		form.Set("scheduled_publish_time", strconv.FormatInt(scheduledAt, 10))
	}

	raw, err := c.postForm(ctx, c.videosURL(req.PageID), form)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFinish, err)
	}

	var resp struct {
		Error *graphError `json:"error"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("%w: %v", ErrFinish, err)
	}
	if resp.Error != nil {
		return fmt.Errorf("%w: %s", ErrFinish, resp.Error.text())
	}

	return nil
}
