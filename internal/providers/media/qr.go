package media

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"

	"mediatools/internal/domain"
	"mediatools/internal/orchestrator"
)

const (
	maxQRContent  = 2048
	defaultQRSize = 256
	minQRSize     = 64
	maxQRSize     = 1024
)

// QR renders text into a PNG QR code.
type QR struct {
	store   ResultStore
	Content string
	Size    int
}

// NewQR validates the payload and clamps size to a sane range.
func NewQR(store ResultStore, content string, size int) (*QR, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: content is required", domain.ErrInvalidRequest)
	}
	if utf8.RuneCountInString(content) > maxQRContent {
		return nil, fmt.Errorf("%w: content longer than %d characters", domain.ErrInvalidRequest, maxQRContent)
	}
	switch {
	case size == 0:
		size = defaultQRSize
	case size < minQRSize:
		size = minQRSize
	case size > maxQRSize:
		size = maxQRSize
	}
	return &QR{store: store, Content: content, Size: size}, nil
}

func (op *QR) Kind() domain.JobKind { return domain.JobKindQR }

func (op *QR) Run(ctx context.Context, progress orchestrator.ProgressFunc) (orchestrator.Result, error) {
	progress(10, "encoding")
	png, err := qrcode.Encode(op.Content, qrcode.Medium, op.Size)
	if err != nil {
		return orchestrator.Result{}, domain.NewPublicError("Content cannot be encoded as a QR code.", err)
	}
	progress(80, "publishing")
	location, err := op.store.PutBytes(ctx, "qr/"+uuid.NewString()+".png", png, "image/png")
	if err != nil {
		return orchestrator.Result{}, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return orchestrator.Result{
		Location: location,
		Message:  "qr code ready",
		Metadata: map[string]any{"size": op.Size, "bytes": len(png)},
	}, nil
}
