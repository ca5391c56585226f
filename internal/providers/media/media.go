// Package media implements the operations behind the public tools: platform
// downloads, ffmpeg conversions and small image and text utilities.
package media

import (
	"context"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// ResultStore publishes finished artifacts and returns a URL for them.
type ResultStore interface {
	PutBytes(ctx context.Context, key string, data []byte, contentType string) (string, error)
	PutFile(ctx context.Context, key, src, contentType string) (string, error)
}

var extraTypes = map[string]string{
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".mov":  "video/quicktime",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
	".gif":  "image/gif",
	".png":  "image/png",
}

func contentTypeFor(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ct, ok := extraTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// largestFile returns the biggest regular file directly inside dir. yt-dlp
// may leave fragments next to the merged output, the merged file wins.
func largestFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	var (
		best string
		size int64 = -1
	)
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasSuffix(e.Name(), ".part") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.Size() > size {
			best, size = filepath.Join(dir, e.Name()), info.Size()
		}
	}
	if best == "" {
		return "", os.ErrNotExist
	}
	return best, nil
}
