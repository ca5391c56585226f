package media

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"mediatools/internal/domain"
	"mediatools/internal/orchestrator"
)

var hashers = map[string]func() hash.Hash{
	"md5":    md5.New,
	"sha1":   sha1.New,
	"sha256": sha256.New,
	"sha512": sha512.New,
}

// Hash digests either inline text or an uploaded file.
type Hash struct {
	Algorithm string
	Text      string
	InputPath string
}

// NewHash validates the algorithm and that exactly one source is set.
func NewHash(algorithm, text, inputPath string) (*Hash, error) {
	algorithm = strings.ToLower(strings.TrimSpace(algorithm))
	if algorithm == "" {
		algorithm = "sha256"
	}
	if _, ok := hashers[algorithm]; !ok {
		return nil, fmt.Errorf("%w: unsupported algorithm %q", domain.ErrInvalidRequest, algorithm)
	}
	if (text == "") == (inputPath == "") {
		return nil, fmt.Errorf("%w: provide either text or a file", domain.ErrInvalidRequest)
	}
	return &Hash{Algorithm: algorithm, Text: text, InputPath: inputPath}, nil
}

func (op *Hash) Kind() domain.JobKind { return domain.JobKindHash }

func (op *Hash) Run(ctx context.Context, progress orchestrator.ProgressFunc) (orchestrator.Result, error) {
	h := hashers[op.Algorithm]()
	var n int64
	if op.InputPath != "" {
		defer os.Remove(op.InputPath)
		f, err := os.Open(op.InputPath)
		if err != nil {
			return orchestrator.Result{}, fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		if n, err = io.Copy(h, &ctxReader{ctx: ctx, r: f}); err != nil {
			return orchestrator.Result{}, fmt.Errorf("hash input: %w", err)
		}
	} else {
		written, _ := io.WriteString(h, op.Text)
		n = int64(written)
	}
	progress(90, "hashed")
	digest := hex.EncodeToString(h.Sum(nil))
	return orchestrator.Result{
		Location: digest,
		Message:  "digest ready",
		Metadata: map[string]any{"algorithm": op.Algorithm, "digest": digest, "bytes": n},
	}, nil
}

// ctxReader stops long reads once the job context is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
