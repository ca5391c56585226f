package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"mediatools/internal/providers/media"
)

var (
	errNoUpload     = errors.New("file required")
	errBadMultipart = errors.New("invalid multipart payload")
	errTooLarge     = errors.New("upload too large")
)

// stageUpload copies the multipart "file" field into dir and returns the
// staged path with the client's file name. Callers own the staged file until
// an operation takes it over.
func (a *App) stageUpload(w http.ResponseWriter, r *http.Request, dir string) (string, string, error) {
	if a.MaxUploadBytes > 0 {
		if r.ContentLength > a.MaxUploadBytes {
			return "", "", errTooLarge
		}
		r.Body = http.MaxBytesReader(w, r.Body, a.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return "", "", fmt.Errorf("%w: %w", errBadMultipart, err)
	}
	defer r.MultipartForm.RemoveAll()
	file, header, err := r.FormFile("file")
	if err != nil {
		return "", "", errNoUpload
	}
	defer file.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", err
	}
	name := filepath.Base(header.Filename)
	dst, err := os.Create(filepath.Join(dir, uuid.NewString()+strings.ToLower(filepath.Ext(name))))
	if err != nil {
		return "", "", err
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", "", err
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", "", err
	}
	return dst.Name(), name, nil
}

func (a *App) uploadError(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, errTooLarge), errors.As(err, &maxErr):
		a.error(w, http.StatusRequestEntityTooLarge, "too_large", "upload exceeds the size limit")
	case errors.Is(err, errNoUpload):
		a.error(w, http.StatusBadRequest, "bad_request", "file required")
	case errors.Is(err, errBadMultipart):
		a.error(w, http.StatusBadRequest, "bad_request", "invalid multipart payload")
	default:
		a.fail(w, r, err)
	}
}

// Convert accepts a multipart upload and a "target" format.
func (a *App) Convert(w http.ResponseWriter, r *http.Request) {
	path, original, err := a.stageUpload(w, r, a.Converter.WorkDir())
	if err != nil {
		a.uploadError(w, r, err)
		return
	}
	op, err := a.Converter.New(path, original, r.FormValue("target"))
	if err != nil {
		os.Remove(path)
		a.fail(w, r, err)
		return
	}
	if !a.submit(w, r, op, map[string]any{"target": op.Target, "filename": original}) {
		os.Remove(path)
	}
}

type qrRequest struct {
	Content string `json:"content"`
	Size    int    `json:"size"`
}

func (a *App) QR(w http.ResponseWriter, r *http.Request) {
	var req qrRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	op, err := media.NewQR(a.Store, req.Content, req.Size)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.submit(w, r, op, map[string]any{"size": op.Size})
}

type hashRequest struct {
	Text      string `json:"text"`
	Algorithm string `json:"algorithm"`
}

// Hash digests JSON text or, for multipart requests, an uploaded file.
func (a *App) Hash(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		path, original, err := a.stageUpload(w, r, a.UploadDir)
		if err != nil {
			a.uploadError(w, r, err)
			return
		}
		op, err := media.NewHash(r.FormValue("algorithm"), "", path)
		if err != nil {
			os.Remove(path)
			a.fail(w, r, err)
			return
		}
		if !a.submit(w, r, op, map[string]any{"algorithm": op.Algorithm, "filename": original}) {
			os.Remove(path)
		}
		return
	}

	var req hashRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	op, err := media.NewHash(req.Algorithm, req.Text, "")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.submit(w, r, op, map[string]any{"algorithm": op.Algorithm})
}

// Palette extracts dominant colors from an uploaded image.
func (a *App) Palette(w http.ResponseWriter, r *http.Request) {
	path, original, err := a.stageUpload(w, r, a.UploadDir)
	if err != nil {
		a.uploadError(w, r, err)
		return
	}
	colors, _ := strconv.Atoi(r.FormValue("colors"))
	op, err := media.NewPalette(a.Store, path, colors)
	if err != nil {
		os.Remove(path)
		a.fail(w, r, err)
		return
	}
	if !a.submit(w, r, op, map[string]any{"colors": op.Colors, "filename": original}) {
		os.Remove(path)
	}
}
