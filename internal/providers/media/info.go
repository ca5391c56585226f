package media

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"github.com/kkdai/youtube/v2"

	"mediatools/internal/domain"
)

// VideoInfo is the metadata shown before a download is requested.
type VideoInfo struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Author    string   `json:"author"`
	Duration  int      `json:"duration_seconds"`
	Thumbnail string   `json:"thumbnail,omitempty"`
	Qualities []string `json:"qualities"`
}

// InfoClient reads YouTube metadata without downloading anything.
type InfoClient struct {
	client youtube.Client
}

// NewInfoClient returns a client using the library defaults.
func NewInfoClient() *InfoClient {
	return &InfoClient{}
}

// Lookup fetches title, duration and the available quality labels.
func (c *InfoClient) Lookup(ctx context.Context, rawURL string) (VideoInfo, error) {
	platform, err := DetectPlatform(rawURL)
	if err != nil {
		return VideoInfo{}, err
	}
	if platform != PlatformYouTube {
		return VideoInfo{}, fmt.Errorf("%w: metadata lookup supports youtube only", domain.ErrUnsupportedSource)
	}
	video, err := c.client.GetVideoContext(ctx, rawURL)
	if err != nil {
		return VideoInfo{}, fmt.Errorf("%w: %v", domain.ErrProviderFailure, err)
	}

	info := VideoInfo{
		ID:        video.ID,
		Title:     video.Title,
		Author:    video.Author,
		Duration:  int(video.Duration.Seconds()),
		Qualities: qualityLabels(video.Formats),
	}
	if n := len(video.Thumbnails); n > 0 {
		info.Thumbnail = video.Thumbnails[n-1].URL
	}
	return info, nil
}

var qualityLabelPattern = regexp.MustCompile(`^(\d+)p(\d+)?`)

// qualityLabels returns distinct video heights, highest first, as "1080p"
// style labels. Frame rate suffixes are folded into the height.
func qualityLabels(formats youtube.FormatList) []string {
	seen := make(map[int]struct{})
	for _, f := range formats {
		m := qualityLabelPattern.FindStringSubmatch(f.QualityLabel)
		if m == nil {
			continue
		}
		if h, err := strconv.Atoi(m[1]); err == nil && h > 0 {
			seen[h] = struct{}{}
		}
	}
	heights := make([]int, 0, len(seen))
	for h := range seen {
		heights = append(heights, h)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(heights)))

	labels := make([]string, 0, len(heights)+1)
	for _, h := range heights {
		labels = append(labels, strconv.Itoa(h)+"p")
	}
	return append(labels, "audio")
}
