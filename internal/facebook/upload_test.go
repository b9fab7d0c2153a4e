package facebook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// graphStub scripts the fake Graph video endpoint: one start response, a
// sequence of transfer responses, one finish response.
type graphStub struct {
	t *testing.T

	startBody    string
	transferBody []string
	finishBody   string

	startCalls    int
	transferCalls int
	finishCalls   int

	chunkSizes   []int
	startOffsets []string
}

func (g *graphStub) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			g.t.Errorf("expected POST, got %s", r.Method)
		}

		w.Header().Set("Content-Type", "application/json")

		switch phase := r.FormValue("upload_phase"); phase {
		case "start":
			g.startCalls++
			if r.FormValue("file_size") == "" {
				g.t.Error("start request missing file_size")
			}
			if r.FormValue("access_token") == "" {
				g.t.Error("start request missing access_token")
			}
			_, _ = w.Write([]byte(g.startBody))

		case "transfer":
			call := g.transferCalls
			g.transferCalls++

			if r.FormValue("upload_session_id") == "" {
				g.t.Error("transfer request missing upload_session_id")
			}
			g.startOffsets = append(g.startOffsets, r.FormValue("start_offset"))

			file, _, err := r.FormFile("video_file_chunk")
			if err != nil {
				g.t.Errorf("transfer request missing video_file_chunk: %v", err)
			} else {
				var buf bytes.Buffer
				_, _ = buf.ReadFrom(file)
				_ = file.Close()
				g.chunkSizes = append(g.chunkSizes, buf.Len())
			}

			if call >= len(g.transferBody) {
				g.t.Fatalf("unexpected transfer call %d", call+1)
			}
			_, _ = w.Write([]byte(g.transferBody[call]))

		case "finish":
			g.finishCalls++
			_, _ = w.Write([]byte(g.finishBody))

		default:
			g.t.Errorf("unexpected upload_phase %q", phase)
		}
	})
}

func newTestClient(serverURL string) *Client {
	return NewClient(Options{
		GraphURL:      serverURL,
		GraphVideoURL: serverURL,
	})
}

func testRequest(size int64) UploadRequest {
	return UploadRequest{
		PageID:      "page-1",
		AccessToken: "secret-token",
		Source:      bytes.NewReader(bytes.Repeat([]byte("a"), int(size))),
		Size:        size,
		Title:       "Match highlights",
		Description: "Best moments",
	}
}

func TestUploadRoundTrip(t *testing.T) {
	stub := &graphStub{
		t:         t,
		startBody: `{"upload_session_id":"sess-1","video_id":"vid-1","start_offset":"0","end_offset":"300"}`,
		transferBody: []string{
			`{"start_offset":"300","end_offset":"700"}`,
			`{"start_offset":700,"end_offset":1000}`,
			`{"start_offset":"1000"}`,
		},
		finishBody: `{"success":true}`,
	}
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	client := newTestClient(server.URL)

	var observed []int64
	videoID, err := client.Upload(context.Background(), testRequest(1000), WithProgress(func(transferred, total int64) {
		if total != 1000 {
			t.Errorf("progress total = %d, want 1000", total)
		}
		observed = append(observed, transferred)
	}))
	if err != nil {
		t.Fatalf("Upload() error: %v", err)
	}

	if videoID != "vid-1" {
		t.Errorf("Upload() = %q, want vid-1", videoID)
	}
	if stub.transferCalls != 3 {
		t.Errorf("transfer calls = %d, want 3", stub.transferCalls)
	}
	if stub.finishCalls != 1 {
		t.Errorf("finish calls = %d, want 1", stub.finishCalls)
	}

	wantChunks := []int{300, 400, 300}
	for i, want := range wantChunks {
		if i >= len(stub.chunkSizes) || stub.chunkSizes[i] != want {
			t.Errorf("chunk %d size = %v, want %d", i, stub.chunkSizes, want)
			break
		}
	}

	wantOffsets := []string{"0", "300", "700"}
	for i, want := range wantOffsets {
		if i >= len(stub.startOffsets) || stub.startOffsets[i] != want {
			t.Errorf("start_offset %d = %v, want %s", i, stub.startOffsets, want)
			break
		}
	}

	wantProgress := []int64{300, 700, 1000}
	if len(observed) != len(wantProgress) {
		t.Fatalf("progress observations = %v, want %v", observed, wantProgress)
	}
	for i, want := range wantProgress {
		if observed[i] != want {
			t.Errorf("progress[%d] = %d, want %d", i, observed[i], want)
		}
	}
}

func TestUploadKeepsWindowEndMidSession(t *testing.T) {
	stub := &graphStub{
		t:         t,
		startBody: `{"upload_session_id":"sess-1","video_id":"vid-1","start_offset":"0","end_offset":"400"}`,
		transferBody: []string{
			`{"start_offset":"200"}`,
			`{"start_offset":"400","end_offset":"1000"}`,
			`{"start_offset":"1000"}`,
		},
		finishBody: `{}`,
	}
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	client := newTestClient(server.URL)

	if _, err := client.Upload(context.Background(), testRequest(1000)); err != nil {
		t.Fatalf("Upload() error: %v", err)
	}

	// The first transfer response rewinds start_offset and omits end_offset;
	// the kept end of 400 must drive the next chunk.
	wantChunks := []int{400, 200, 600}
	for i, want := range wantChunks {
		if i >= len(stub.chunkSizes) || stub.chunkSizes[i] != want {
			t.Errorf("chunk %d size = %v, want %d", i, stub.chunkSizes, want)
			break
		}
	}

	wantOffsets := []string{"0", "200", "400"}
	for i, want := range wantOffsets {
		if i >= len(stub.startOffsets) || stub.startOffsets[i] != want {
			t.Errorf("start_offset %d = %v, want %s", i, stub.startOffsets, want)
			break
		}
	}
}

func TestUploadStartErrors(t *testing.T) {
	tests := []struct {
		name      string
		startBody string
		wantMsg   string
	}{
		{
			name:      "errorPayload",
			startBody: `{"error":{"message":"invalid access token","type":"OAuthException","code":190}}`,
			wantMsg:   "invalid access token",
		},
		{
			name:      "missingSessionID",
			startBody: `{"video_id":"vid-1","start_offset":"0","end_offset":"100"}`,
		},
		{
			name:      "missingVideoID",
			startBody: `{"upload_session_id":"sess-1","start_offset":"0","end_offset":"100"}`,
		},
		{
			name:      "notJSON",
			startBody: `<html>gateway error</html>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &graphStub{t: t, startBody: tt.startBody}
			server := httptest.NewServer(stub.handler())
			defer server.Close()

			client := newTestClient(server.URL)

			_, err := client.Upload(context.Background(), testRequest(100))
			if !errors.Is(err, ErrSessionStart) {
				t.Fatalf("Upload() error = %v, want ErrSessionStart", err)
			}
			if tt.wantMsg != "" && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not contain %q", err, tt.wantMsg)
			}
			if stub.transferCalls != 0 || stub.finishCalls != 0 {
				t.Errorf("transfer/finish called after failed start: %d/%d", stub.transferCalls, stub.finishCalls)
			}
		})
	}
}

func TestUploadTransferErrorAborts(t *testing.T) {
	stub := &graphStub{
		t:            t,
		startBody:    `{"upload_session_id":"sess-1","video_id":"vid-1","start_offset":"0","end_offset":"500"}`,
		transferBody: []string{`{"error":{"message":"boom"}}`},
	}
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	client := newTestClient(server.URL)

	_, err := client.Upload(context.Background(), testRequest(1000))
	if !errors.Is(err, ErrTransfer) {
		t.Fatalf("Upload() error = %v, want ErrTransfer", err)
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("error %q does not contain remote message", err)
	}
	if stub.transferCalls != 1 {
		t.Errorf("transfer calls = %d, want 1", stub.transferCalls)
	}
	if stub.finishCalls != 0 {
		t.Error("finish phase ran after a failed transfer")
	}
}

func TestUploadRejectsInvertedStartWindow(t *testing.T) {
	stub := &graphStub{
		t:         t,
		startBody: `{"upload_session_id":"sess-1","video_id":"vid-1","start_offset":"100","end_offset":"50"}`,
	}
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	client := newTestClient(server.URL)

	_, err := client.Upload(context.Background(), testRequest(1000))
	if !errors.Is(err, ErrSessionStart) {
		t.Fatalf("Upload() error = %v, want ErrSessionStart", err)
	}
	if stub.transferCalls != 0 || stub.finishCalls != 0 {
		t.Errorf("transfer/finish called after an inverted start window: %d/%d", stub.transferCalls, stub.finishCalls)
	}
}

func TestUploadRejectsInvertedTransferWindow(t *testing.T) {
	stub := &graphStub{
		t:            t,
		startBody:    `{"upload_session_id":"sess-1","video_id":"vid-1","start_offset":"0","end_offset":"300"}`,
		transferBody: []string{`{"start_offset":"500","end_offset":"200"}`},
	}
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	client := newTestClient(server.URL)

	_, err := client.Upload(context.Background(), testRequest(1000))
	if !errors.Is(err, ErrTransfer) {
		t.Fatalf("Upload() error = %v, want ErrTransfer", err)
	}
	if stub.transferCalls != 1 {
		t.Errorf("transfer calls = %d, want 1", stub.transferCalls)
	}
	if stub.finishCalls != 0 {
		t.Error("finish phase ran after an inverted transfer window")
	}
}

func TestUploadClampsWindowToSize(t *testing.T) {
	stub := &graphStub{
		t:            t,
		startBody:    `{"upload_session_id":"sess-1","video_id":"vid-1","start_offset":"0","end_offset":"5000"}`,
		transferBody: []string{`{"start_offset":"1000"}`},
		finishBody:   `{}`,
	}
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	client := newTestClient(server.URL)

	if _, err := client.Upload(context.Background(), testRequest(1000)); err != nil {
		t.Fatalf("Upload() error: %v", err)
	}

	if len(stub.chunkSizes) != 1 || stub.chunkSizes[0] != 1000 {
		t.Errorf("chunk sizes = %v, want [1000]", stub.chunkSizes)
	}
}

func TestUploadFinishError(t *testing.T) {
	stub := &graphStub{
		t:            t,
		startBody:    `{"upload_session_id":"sess-1","video_id":"vid-1","start_offset":"0","end_offset":"100"}`,
		transferBody: []string{`{"start_offset":"100","end_offset":"100"}`},
		finishBody:   `{"error":{"message":"processing failed"}}`,
	}
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	client := newTestClient(server.URL)

	_, err := client.Upload(context.Background(), testRequest(100))
	if !errors.Is(err, ErrFinish) {
		t.Fatalf("Upload() error = %v, want ErrFinish", err)
	}
	if !strings.Contains(err.Error(), "processing failed") {
		t.Errorf("error %q does not contain remote message", err)
	}
}

func TestUploadTruncatedSource(t *testing.T) {
	stub := &graphStub{
		t:            t,
		startBody:    `{"upload_session_id":"sess-1","video_id":"vid-1","start_offset":"0","end_offset":"300"}`,
		transferBody: []string{`{"start_offset":"300","end_offset":"700"}`},
	}
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	client := newTestClient(server.URL)

	// Source claims 1000 bytes but only holds 300.
	req := testRequest(1000)
	req.Source = bytes.NewReader(bytes.Repeat([]byte("a"), 300))

	_, err := client.Upload(context.Background(), req)
	if !errors.Is(err, ErrTruncatedSource) {
		t.Fatalf("Upload() error = %v, want ErrTruncatedSource", err)
	}
	if stub.finishCalls != 0 {
		t.Error("finish phase ran on a truncated source")
	}
}

func TestUploadNoSource(t *testing.T) {
	client := NewClient(Options{})

	req := testRequest(100)
	req.Source = nil

	_, err := client.Upload(context.Background(), req)
	if !errors.Is(err, ErrNoSource) {
		t.Fatalf("Upload() error = %v, want ErrNoSource", err)
	}
}

func TestUploadScheduleValidation(t *testing.T) {
	tests := []struct {
		name    string
		offset  time.Duration
		wantErr bool
	}{
		{name: "exactlyTenMinutes", offset: 10 * time.Minute, wantErr: true},
		{name: "tenMinutesOneSecond", offset: 10*time.Minute + time.Second, wantErr: false},
		{name: "fiveMinutes", offset: 5 * time.Minute, wantErr: true},
		{name: "inThePast", offset: -time.Hour, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := validateSchedule(time.Now().Add(tt.offset))
			if (err != nil) != tt.wantErr {
				t.Errorf("validateSchedule(now+%v) error = %v, wantErr %v", tt.offset, err, tt.wantErr)
			}
			if tt.wantErr && err != nil && !errors.Is(err, ErrInvalidSchedule) {
				t.Errorf("error = %v, want ErrInvalidSchedule", err)
			}
		})
	}
}

func TestUploadScheduledPublish(t *testing.T) {
	scheduled := time.Now().Add(time.Hour).UTC().Truncate(time.Second)

	var finishForm map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		switch r.FormValue("upload_phase") {
		case "start":
			_, _ = fmt.Fprint(w, `{"upload_session_id":"sess-1","video_id":"vid-1","start_offset":"0","end_offset":"100"}`)
		case "transfer":
			_, _ = fmt.Fprint(w, `{"start_offset":"100","end_offset":"100"}`)
		case "finish":
			finishForm = map[string]string{
				"published":              r.FormValue("published"),
				"scheduled_publish_time": r.FormValue("scheduled_publish_time"),
				"title":                  r.FormValue("title"),
				"description":            r.FormValue("description"),
			}
			_, _ = fmt.Fprint(w, `{}`)
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	req := testRequest(100)
	req.ScheduledAt = &scheduled

	if _, err := client.Upload(context.Background(), req); err != nil {
		t.Fatalf("Upload() error: %v", err)
	}

	if finishForm == nil {
		t.Fatal("finish phase never ran")
	}
	if finishForm["published"] != "false" {
		t.Errorf("published = %q, want false", finishForm["published"])
	}
	want := fmt.Sprintf("%d", scheduled.Unix())
	if finishForm["scheduled_publish_time"] != want {
		t.Errorf("scheduled_publish_time = %q, want %q", finishForm["scheduled_publish_time"], want)
	}
	if finishForm["title"] != "Match highlights" || finishForm["description"] != "Best moments" {
		t.Errorf("finish metadata = %v", finishForm)
	}
}

func TestUploadImmediatePublishOmitsSchedule(t *testing.T) {
	var sawPublished bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		switch r.FormValue("upload_phase") {
		case "start":
			_, _ = fmt.Fprint(w, `{"upload_session_id":"sess-1","video_id":"vid-1","start_offset":"0","end_offset":"100"}`)
		case "transfer":
			_, _ = fmt.Fprint(w, `{"start_offset":"100","end_offset":"100"}`)
		case "finish":
			sawPublished = r.FormValue("published") != "" || r.FormValue("scheduled_publish_time") != ""
			_, _ = fmt.Fprint(w, `{}`)
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	if _, err := client.Upload(context.Background(), testRequest(100)); err != nil {
		t.Fatalf("Upload() error: %v", err)
	}
	if sawPublished {
		t.Error("immediate publish sent scheduling fields")
	}
}

func TestUploadSessionsAreIndependent(t *testing.T) {
	var starts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		switch r.FormValue("upload_phase") {
		case "start":
			starts++
			_, _ = fmt.Fprintf(w, `{"upload_session_id":"sess-%d","video_id":"vid-%d","start_offset":"0","end_offset":"100"}`, starts, starts)
		case "transfer":
			_, _ = fmt.Fprint(w, `{"start_offset":"100","end_offset":"100"}`)
		case "finish":
			_, _ = fmt.Fprint(w, `{}`)
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	first, err := client.Upload(context.Background(), testRequest(100))
	if err != nil {
		t.Fatalf("first Upload() error: %v", err)
	}
	second, err := client.Upload(context.Background(), testRequest(100))
	if err != nil {
		t.Fatalf("second Upload() error: %v", err)
	}

	if starts != 2 {
		t.Errorf("start calls = %d, want 2", starts)
	}
	if first == second {
		t.Errorf("both uploads returned video id %q; sessions must be independent", first)
	}
}

func TestOffsetUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{name: "quotedString", input: `"300"`, want: 300},
		{name: "number", input: `300`, want: 300},
		{name: "null", input: `null`, want: 0},
		{name: "garbage", input: `"abc"`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var o offset
			err := o.UnmarshalJSON([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("UnmarshalJSON(%s) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && int64(o) != tt.want {
				t.Errorf("offset = %d, want %d", o, tt.want)
			}
		})
	}
}
