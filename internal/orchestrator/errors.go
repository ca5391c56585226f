package orchestrator

import (
	"context"
	"errors"
	"strings"

	"mediatools/internal/domain"
)

const genericFailure = "An unexpected error occurred while processing the job."

// PublicMessage turns an operation error into text that is safe to store on
// the job. Paths, hosts and tool output never leak through it.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	var pe *domain.PublicError
	if errors.As(err, &pe) && pe.Message != "" {
		return pe.Message
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "Processing took too long and was stopped."
	case errors.Is(err, domain.ErrUnsupportedSource):
		return "This source is not supported."
	case errors.Is(err, domain.ErrStorageUnavailable):
		return "The result could not be stored. Please try again later."
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission denied"):
		return "Storage permission denied on the server."
	case strings.Contains(msg, "no space left"):
		return "Server storage is full. Please try again later."
	case strings.Contains(msg, "ffmpeg"), strings.Contains(msg, "ffprobe"):
		return "Media processing failed."
	case strings.Contains(msg, "private video"), strings.Contains(msg, "login required"):
		return "This video is private or requires sign-in."
	case strings.Contains(msg, "cipher"), strings.Contains(msg, "signature"):
		return "The platform restricted access to this media."
	case strings.Contains(msg, "403"), strings.Contains(msg, "429"):
		return "The platform refused the request. Please try again later."
	}
	return genericFailure
}
