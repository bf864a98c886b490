package http

import (
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/vadim/blinka/internal/httpx/response"
	"github.com/vadim/blinka/internal/storage"
)

// maxMultipartSize bounds a whole upload request. Per-file limits are
// enforced by the services before anything is stored.
const maxMultipartSize = 80 << 20

// multipartMemory is how much of a form is buffered in memory
const multipartMemory = 16 << 20

var errInvalidForm = errors.New("file too large or invalid multipart form")

// uploadForm holds the files of one parsed multipart request
type uploadForm struct {
	r      *http.Request
	opened []multipart.File
}

func parseUploadForm(w http.ResponseWriter, r *http.Request) (*uploadForm, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxMultipartSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, errInvalidForm
	}
	return &uploadForm{r: r}, nil
}

// file returns the named part or nil when it is absent
func (f *uploadForm) file(field string) (*storage.File, error) {
	file, header, err := f.r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, errInvalidForm
	}
	f.opened = append(f.opened, file)

	return &storage.File{
		Reader:      file,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Filename:    header.Filename,
	}, nil
}

func (f *uploadForm) value(field string) string {
	return f.r.FormValue(field)
}

// Close releases opened parts and temporary files
func (f *uploadForm) Close() {
	for _, file := range f.opened {
		_ = file.Close()
	}
	if f.r.MultipartForm != nil {
		_ = f.r.MultipartForm.RemoveAll()
	}
}

// handleStorageError writes a response for upload validation failures and
// reports whether err was one
func handleStorageError(w http.ResponseWriter, err error) bool {
	switch {
	case errors.Is(err, storage.ErrTooLarge):
		response.TooLarge(w, err.Error())
	case errors.Is(err, storage.ErrEmptyUpload), errors.Is(err, errInvalidForm):
		response.BadRequest(w, err.Error())
	case errors.Is(err, storage.ErrUnsupportedMedia):
		response.UnsupportedMedia(w, err.Error())
	default:
		return false
	}
	return true
}
