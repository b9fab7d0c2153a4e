package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"fbpublish/internal/archive"
	"fbpublish/internal/facebook"
	"fbpublish/pkg/config"
	"fbpublish/pkg/httputil"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/huh/spinner"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

const scheduleLayout = "2006-01-02 15:04"

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
)

var (
	uploadFile        string
	uploadPage        string
	uploadToken       string
	uploadTitle       string
	uploadDescription string
	uploadSchedule    string
	uploadArchive     bool
)

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload a single video to a Facebook page",
	Long: `Upload a video file to a Facebook page. The page ID and access token
default to FACEBOOK_PAGE_ID and FACEBOOK_ACCESS_TOKEN from the
environment. Pass --schedule to publish later (UTC, at least ten
minutes ahead).`,
	RunE: runUpload,
}

func init() {
	uploadCmd.Flags().StringVarP(&uploadFile, "file", "f", "", "Path to the video file (required)")
	uploadCmd.Flags().StringVarP(&uploadPage, "page", "p", "", "Facebook page ID")
	uploadCmd.Flags().StringVar(&uploadToken, "token", "", "Page access token")
	uploadCmd.Flags().StringVarP(&uploadTitle, "title", "t", "", "Video title")
	uploadCmd.Flags().StringVarP(&uploadDescription, "description", "d", "", "Video description")
	uploadCmd.Flags().StringVarP(&uploadSchedule, "schedule", "s", "", "Scheduled publish time, UTC (\"2006-01-02 15:04\")")
	uploadCmd.Flags().BoolVar(&uploadArchive, "archive", false, "Archive the video after a successful upload")
	_ = uploadCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(uploadCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	if uploadPage == "" {
		uploadPage = cfg.PageID
	}
	if uploadToken == "" {
		uploadToken = cfg.AccessToken
	}
	if uploadPage == "" || uploadToken == "" {
		return errors.New("page ID and access token are required (flags or FACEBOOK_PAGE_ID / FACEBOOK_ACCESS_TOKEN)")
	}

	if err := promptForMetadata(); err != nil {
		return err
	}

	var scheduledAt *time.Time
	if uploadSchedule != "" {
		t, err := time.ParseInLocation(scheduleLayout, uploadSchedule, time.UTC)
		if err != nil {
			return fmt.Errorf("invalid --schedule value %q, want %q", uploadSchedule, scheduleLayout)
		}
		scheduledAt = &t
	}

	file, err := os.Open(uploadFile)
	if err != nil {
		return fmt.Errorf("open video: %w", err)
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat video: %w", err)
	}

	fb := facebook.NewClient(facebook.Options{
		HTTPClient:    httputil.NewRetryClient(&http.Client{}, httputil.DefaultRetryConfig()),
		GraphURL:      cfg.Facebook.GraphURL,
		GraphVideoURL: cfg.Facebook.GraphVideoURL,
		Version:       cfg.Facebook.APIVersion,
	})

	req := facebook.UploadRequest{
		PageID:      uploadPage,
		AccessToken: uploadToken,
		Source:      file,
		Size:        info.Size(),
		Title:       uploadTitle,
		Description: uploadDescription,
		ScheduledAt: scheduledAt,
	}

	var videoID string
	err = runWithSpinner(fmt.Sprintf("Uploading %s", uploadFile), func() error {
		var uploadErr error
		videoID, uploadErr = fb.Upload(ctx, req, facebook.WithProgress(func(transferred, total int64) {
			slog.Debug("Upload progress", "transferred", transferred, "total", total)
		}))
		return uploadErr
	})
	if err != nil {
		fmt.Println(errorStyle.Render("✗ Upload failed: " + err.Error()))
		return err
	}

	fmt.Println(infoStyle.Render("Video ID: " + videoID))
	if scheduledAt != nil {
		fmt.Println(infoStyle.Render("Scheduled for " + scheduledAt.Format(scheduleLayout) + " UTC"))
	}

	if uploadArchive {
		if err := archiveUpload(ctx, cfg, videoID, file); err != nil {
			fmt.Println(errorStyle.Render("✗ Archive failed: " + err.Error()))
		}
	}

	return nil
}

func promptForMetadata() error {
	var fields []huh.Field
	if uploadTitle == "" {
		fields = append(fields, huh.NewInput().
			Title("Video title").
			Value(&uploadTitle))
	}
	if uploadDescription == "" {
		fields = append(fields, huh.NewText().
			Title("Video description").
			Value(&uploadDescription))
	}
	if len(fields) == 0 {
		return nil
	}
	return huh.NewForm(huh.NewGroup(fields...)).Run()
}

func archiveUpload(ctx context.Context, cfg *config.Config, videoID string, file *os.File) error {
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return err
	}

	store, cleanup, err := buildArchiveStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()
	if store == nil {
		store = archive.NewLocalStore(cfg.Archive.Dir)
	}

	location, err := store.Save(ctx, videoID+".mp4", file)
	if err != nil {
		return err
	}
	fmt.Println(successStyle.Render("✓ Archived to " + location))
	return nil
}

func runWithSpinner(title string, fn func() error) error {
	var err error
	_ = spinner.New().
		Title(title).
		Action(func() { err = fn() }).
		Run()
	if err != nil {
		return err
	}
	fmt.Println(successStyle.Render("✓ " + title))
	return nil
}
