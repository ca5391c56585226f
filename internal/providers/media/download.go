package media

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lrstanley/go-ytdlp"

	"mediatools/internal/domain"
	"mediatools/internal/orchestrator"
	"mediatools/internal/quota"
)

// Platform identifies a supported download source.
type Platform string

const (
	PlatformYouTube   Platform = "youtube"
	PlatformInstagram Platform = "instagram"
	PlatformFacebook  Platform = "facebook"
)

var platformHosts = map[string]Platform{
	"youtube.com":   PlatformYouTube,
	"youtu.be":      PlatformYouTube,
	"instagram.com": PlatformInstagram,
	"facebook.com":  PlatformFacebook,
	"fb.watch":      PlatformFacebook,
}

// DetectPlatform validates rawURL and reports which platform it belongs to.
func DetectPlatform(rawURL string) (Platform, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: invalid url", domain.ErrInvalidRequest)
	}
	host := strings.ToLower(u.Hostname())
	for suffix, p := range platformHosts {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %s", domain.ErrUnsupportedSource, host)
}

// FormatSelector builds the yt-dlp format expression for a height ceiling.
func FormatSelector(height int) string {
	if height <= 0 {
		return "bestaudio/best"
	}
	return fmt.Sprintf("bestvideo[height<=%d]+bestaudio/best[height<=%d]", height, height)
}

// Downloader creates download operations that share a work directory and
// result store.
type Downloader struct {
	store    ResultStore
	workDir  string
	binary   string
	progress time.Duration
}

// NewDownloader builds a Downloader. binary may be empty to use yt-dlp from
// PATH.
func NewDownloader(store ResultStore, workDir, binary string) *Downloader {
	return &Downloader{store: store, workDir: workDir, binary: binary, progress: 500 * time.Millisecond}
}

// Download fetches one video or its audio track.
type Download struct {
	d         *Downloader
	URL       string
	Platform  Platform
	Label     string
	AudioOnly bool
}

// New validates the request and returns an operation ready to submit.
func (d *Downloader) New(rawURL, quality string, audioOnly bool) (*Download, error) {
	platform, err := DetectPlatform(rawURL)
	if err != nil {
		return nil, err
	}
	label := strings.TrimSpace(quality)
	if audioOnly {
		label = "audio"
	}
	return &Download{d: d, URL: strings.TrimSpace(rawURL), Platform: platform, Label: label, AudioOnly: audioOnly}, nil
}

func (op *Download) Kind() domain.JobKind { return domain.JobKindDownload }

func (op *Download) Quality() string { return op.Label }

func (op *Download) Run(ctx context.Context, progress orchestrator.ProgressFunc) (orchestrator.Result, error) {
	key := uuid.NewString()
	dir := filepath.Join(op.d.workDir, "downloads", key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return orchestrator.Result{}, fmt.Errorf("prepare work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	cmd := ytdlp.New().
		NoPlaylist().
		ForceOverwrites().
		RestrictFilenames().
		Output(dir + "/%(title)s.%(ext)s")
	if op.d.binary != "" {
		cmd.SetExecutable(op.d.binary)
	}
	if op.AudioOnly {
		cmd.ExtractAudio().AudioFormat("mp3")
	} else {
		cmd.Format(FormatSelector(quota.QualityHeight(op.Label))).MergeOutputFormat("mp4")
	}

	cmd.ProgressFunc(op.d.progress, func(update ytdlp.ProgressUpdate) {
		if update.TotalBytes > 0 {
			pct := int(float64(update.DownloadedBytes) / float64(update.TotalBytes) * 90)
			progress(pct, "downloading")
		}
	})

	progress(1, "fetching media")
	res, err := cmd.Run(ctx, op.URL)
	if err != nil {
		return orchestrator.Result{}, fmt.Errorf("yt-dlp: %w", err)
	}
	var title string
	if res != nil {
		if info, err := res.GetExtractedInfo(); err == nil && len(info) > 0 && info[0].Title != nil {
			title = *info[0].Title
		}
	}

	path, err := largestFile(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return orchestrator.Result{}, domain.NewPublicError("The platform returned no media for this link.", err)
		}
		return orchestrator.Result{}, fmt.Errorf("locate output: %w", err)
	}

	progress(95, "publishing")
	name := filepath.Base(path)
	location, err := op.d.store.PutFile(ctx, "downloads/"+key+"/"+name, path, contentTypeFor(name))
	if err != nil {
		return orchestrator.Result{}, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}

	return orchestrator.Result{
		Location: location,
		Message:  "download ready",
		Metadata: map[string]any{
			"title":    title,
			"platform": string(op.Platform),
			"filename": name,
		},
	}, nil
}
