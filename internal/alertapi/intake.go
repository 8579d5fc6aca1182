package alertapi

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/safewatch/internal/alert"
)

// multipartMemory is how much of a multipart body is kept in memory before
// spilling to temp files.
const multipartMemory = 1 << 20

var validate = validator.New()

// alertForm is the author-supplied part of an alert creation request.
type alertForm struct {
	Title       string `validate:"max=200"`
	Description string `validate:"max=5000"`
	Lat         string `validate:"max=64"`
	Lng         string `validate:"max=64"`
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// errUnsupportedImage rejects attachments whose content is not an allowed
// raster image.
var errUnsupportedImage = errors.New("image must be a PNG, JPEG, GIF or WebP file")

// imageTypes are the attachment types accepted and served back. SVG is
// excluded because it can carry script.
var imageTypes = []string{"image/png", "image/jpeg", "image/gif", "image/webp"}

// detectImage sniffs r and returns its type if it is an allowed image.
func detectImage(r io.Reader) (*mimetype.MIME, error) {
	mt, err := mimetype.DetectReader(r)
	if err != nil {
		return nil, fmt.Errorf("detect image type: %w", err)
	}
	for _, t := range imageTypes {
		if mt.Is(t) {
			return mt, nil
		}
	}
	return nil, errUnsupportedImage
}

// uploadName builds the stored filename for an attachment: a ULID prefix
// followed by the base of the original name with whitespace runs replaced by
// underscores.
func uploadName(original string) string {
	base := filepath.Base(strings.ReplaceAll(original, `\`, "/"))
	base = whitespaceRe.ReplaceAllString(base, "_")
	if base == "." || base == "/" || base == "" || base == ".." {
		base = "upload"
	}
	return ulid.Make().String() + "-" + base
}

func (a *API) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	span := trace.SpanFromContext(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, a.opts.MaxUploadBytes)
	if err := parseForm(r); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid form")
		return
	}

	form := alertForm{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Lat:         r.FormValue("lat"),
		Lng:         r.FormValue("lng"),
	}
	if err := validate.Struct(form); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	in := alert.NewAlert{
		Title:       form.Title,
		Description: form.Description,
		Location:    alert.ParseLocation(form.Lat, form.Lng),
	}

	var storedPath string
	if fh := formFile(r, "image"); fh != nil {
		if a.opts.UploadDir == "" {
			writeError(w, http.StatusBadRequest, "image uploads are disabled")
			return
		}
		name, err := a.saveUpload(fh)
		if errors.Is(err, errUnsupportedImage) {
			writeError(w, http.StatusBadRequest, errUnsupportedImage.Error())
			return
		}
		if err != nil {
			a.logger.Error(ctx, err, "failed to store upload", "filename", fh.Filename)
			writeError(w, http.StatusInternalServerError, "failed to create alert")
			return
		}
		storedPath = filepath.Join(a.opts.UploadDir, name)
		in.Image = "/uploads/" + name
		in.ImageName = fh.Filename
	}

	created, err := a.svc.Create(ctx, in)
	if err != nil {
		if storedPath != "" {
			if rmErr := os.Remove(storedPath); rmErr != nil {
				a.logger.Warn(ctx, "failed to remove orphaned upload", "path", storedPath, "error", rmErr)
			}
		}
		a.logger.Error(ctx, err, "failed to create alert")
		writeError(w, http.StatusInternalServerError, "failed to create alert")
		return
	}

	span.SetAttributes(
		attribute.String("safewatch.alert.id", created.ID),
		attribute.String("safewatch.alert.risk", string(created.Risk)),
		attribute.String("safewatch.alert.source", string(created.AnalysisSource)),
	)
	writeJSON(w, http.StatusCreated, created)
}

func parseForm(r *http.Request) error {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		return r.ParseMultipartForm(multipartMemory)
	}
	return r.ParseForm()
}

func formFile(r *http.Request, field string) *multipart.FileHeader {
	if r.MultipartForm == nil {
		return nil
	}
	files := r.MultipartForm.File[field]
	if len(files) == 0 {
		return nil
	}
	return files[0]
}

// saveUpload stores an attachment after checking its content is an allowed
// image. The stored extension follows the detected type, not the client name.
func (a *API) saveUpload(fh *multipart.FileHeader) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	mt, err := detectImage(src)
	if err != nil {
		return "", err
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind upload: %w", err)
	}

	name := uploadName(fh.Filename)
	name = strings.TrimSuffix(name, filepath.Ext(name)) + mt.Extension()
	dst, err := os.OpenFile(filepath.Join(a.opts.UploadDir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(dst.Name())
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(dst.Name())
		return "", fmt.Errorf("close upload: %w", err)
	}
	return name, nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Sprintf("%s exceeds %s characters", strings.ToLower(fe.Field()), fe.Param())
	}
	return "invalid form"
}

// handleUpload serves a stored attachment. The content type comes from the
// file content, and anything that is not an allowed image is not served.
func (a *API) handleUpload(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !fs.ValidPath(name) || strings.Contains(name, "/") || strings.HasPrefix(name, ".") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	fsys := os.DirFS(a.opts.UploadDir)
	f, err := fsys.Open(name)
	if err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	mt, err := detectImage(f)
	_ = f.Close()
	if err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	w.Header().Set("Content-Type", mt.String())
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; sandbox")
	http.ServeFileFS(w, r, fsys, name)
}
