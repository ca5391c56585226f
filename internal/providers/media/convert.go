package media

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"mediatools/internal/domain"
	"mediatools/internal/orchestrator"
)

const progressTimePrefix = "out_time_us="

// targetArgs are the encoder flags per output container.
var targetArgs = map[string][]string{
	"mp4":  {"-c:v", "libx264", "-preset", "veryfast", "-c:a", "aac", "-movflags", "+faststart"},
	"mov":  {"-c:v", "libx264", "-preset", "veryfast", "-c:a", "aac"},
	"mkv":  {"-c:v", "libx264", "-preset", "veryfast", "-c:a", "aac"},
	"webm": {"-c:v", "libvpx-vp9", "-b:v", "0", "-crf", "32", "-c:a", "libopus"},
	"mp3":  {"-vn", "-c:a", "libmp3lame", "-q:a", "2"},
	"m4a":  {"-vn", "-c:a", "aac", "-b:a", "192k"},
	"wav":  {"-vn", "-c:a", "pcm_s16le"},
	"ogg":  {"-vn", "-c:a", "libvorbis", "-q:a", "5"},
	"flac": {"-vn", "-c:a", "flac"},
	"gif":  {"-an", "-vf", "fps=12,scale=480:-1:flags=lanczos"},
}

// SupportedTargets lists the accepted conversion formats.
func SupportedTargets() []string {
	return []string{"mp4", "mov", "mkv", "webm", "mp3", "m4a", "wav", "ogg", "flac", "gif"}
}

// Converter creates ffmpeg conversion operations.
type Converter struct {
	store   ResultStore
	workDir string
	ffmpeg  string
	ffprobe string
}

// NewConverter builds a Converter. Empty binary paths fall back to PATH.
func NewConverter(store ResultStore, workDir, ffmpeg, ffprobe string) *Converter {
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	if ffprobe == "" {
		ffprobe = "ffprobe"
	}
	return &Converter{store: store, workDir: workDir, ffmpeg: ffmpeg, ffprobe: ffprobe}
}

// WorkDir is where uploads waiting for conversion are staged.
func (c *Converter) WorkDir() string {
	return filepath.Join(c.workDir, "uploads")
}

// Convert transcodes one uploaded file. The input is removed when the
// operation ends.
type Convert struct {
	c        *Converter
	Input    string
	Original string
	Target   string
}

// New validates target and returns an operation for the staged input file.
func (c *Converter) New(input, original, target string) (*Convert, error) {
	target = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(target), "."))
	if _, ok := targetArgs[target]; !ok {
		return nil, fmt.Errorf("%w: unsupported target format %q", domain.ErrInvalidRequest, target)
	}
	if strings.TrimSpace(input) == "" {
		return nil, fmt.Errorf("%w: input file is required", domain.ErrInvalidRequest)
	}
	return &Convert{c: c, Input: input, Original: original, Target: target}, nil
}

func (op *Convert) Kind() domain.JobKind { return domain.JobKindConvert }

func (op *Convert) Run(ctx context.Context, progress orchestrator.ProgressFunc) (orchestrator.Result, error) {
	defer os.Remove(op.Input)

	duration, err := op.c.probeDuration(ctx, op.Input)
	if err != nil {
		return orchestrator.Result{}, err
	}

	stem := strings.TrimSuffix(filepath.Base(op.Original), filepath.Ext(op.Original))
	if stem == "" || stem == "." {
		stem = "output"
	}
	name := stem + "." + op.Target
	output := filepath.Join(op.c.workDir, "converted", uuid.NewString()+"."+op.Target)
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return orchestrator.Result{}, fmt.Errorf("prepare output dir: %w", err)
	}
	defer os.Remove(output)

	cmd := exec.CommandContext(ctx, op.c.ffmpeg, ffmpegArgs(op.Input, output, op.Target)...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return orchestrator.Result{}, fmt.Errorf("ffmpeg stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return orchestrator.Result{}, fmt.Errorf("ffmpeg start: %w", err)
	}
	progress(1, "converting")
	tail := monitorProgress(stderr, duration, func(pct int) { progress(pct, "converting") })
	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return orchestrator.Result{}, ctx.Err()
		}
		return orchestrator.Result{}, fmt.Errorf("ffmpeg: %w: %s", err, tail)
	}

	progress(95, "publishing")
	location, err := op.c.store.PutFile(ctx, "converted/"+filepath.Base(output), output, contentTypeFor(output))
	if err != nil {
		return orchestrator.Result{}, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return orchestrator.Result{
		Location: location,
		Message:  "conversion finished",
		Metadata: map[string]any{
			"filename": name,
			"format":   op.Target,
			"duration": duration,
		},
	}, nil
}

func ffmpegArgs(input, output, target string) []string {
	args := []string{"-hide_banner", "-y", "-i", input}
	args = append(args, targetArgs[target]...)
	return append(args, "-progress", "pipe:2", "-nostats", output)
}

func (c *Converter) probeDuration(ctx context.Context, path string) (float64, error) {
	out, err := exec.CommandContext(ctx, c.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "csv=p=0",
		path,
	).Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, nil
	}
	return d, nil
}

// monitorProgress reads ffmpeg's -progress stream and reports percentages
// up to 90. It returns the last non-progress line for error reporting.
func monitorProgress(r io.Reader, duration float64, report func(int)) string {
	var last string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if pct, ok := parseProgressLine(line, duration); ok {
			report(pct)
			continue
		}
		if line != "" && !strings.Contains(line, "=") {
			last = line
		}
	}
	return last
}

func parseProgressLine(line string, duration float64) (int, bool) {
	if duration <= 0 || !strings.HasPrefix(line, progressTimePrefix) {
		return 0, false
	}
	us, err := strconv.ParseInt(strings.TrimPrefix(line, progressTimePrefix), 10, 64)
	if err != nil || us < 0 {
		return 0, false
	}
	ratio := float64(us) / 1e6 / duration
	if ratio > 1 {
		ratio = 1
	}
	return int(ratio * 90), true
}
