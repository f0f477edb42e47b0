package attachment

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/styledrop/internal/model"
	"github.com/dharsanguruparan/styledrop/internal/storage"
)

// Upload is a named file with a known content type.
type Upload struct {
	Filename    string
	ContentType string
	// Size in bytes; zero means the source is asked.
	Size   int64
	Source storage.Source
}

// Assign replaces the attachment's file. The previous files are queued for
// deletion, the upload is queued for staging, and the host record is marked
// Uploaded. Nothing is written until Save. It accepts Upload, *Upload,
// *os.File, *multipart.FileHeader and maps with "filename" and "tempfile"
// keys; anything else fails with ErrInvalidAssignment and changes nothing.
func (a *Attachment) Assign(file any) error {
	u, err := normalize(file)
	if err != nil {
		return err
	}
	a.log.Info("assigning file", zap.String("filename", u.Filename), zap.String("content_type", u.ContentType))

	a.Clear()
	a.backend.DiscardWrites()
	a.backend.QueueWrite(storage.WriteDestination(a.Status()), UploadStyle, u.Source)

	a.host.SetAttribute(a.attr(model.FieldContentType), strings.TrimSpace(u.ContentType))
	a.host.SetAttribute(a.attr(model.FieldFileSize), u.Size)
	a.host.SetAttribute(a.attr(model.FieldUpdatedAt), a.now())
	a.setStatus(model.StatusUploaded)
	a.dirty = true
	return nil
}

func normalize(file any) (Upload, error) {
	switch f := file.(type) {
	case nil:
		return Upload{}, fmt.Errorf("%w: nil", ErrInvalidAssignment)
	case Upload:
		return checkUpload(f)
	case *Upload:
		if f == nil {
			return Upload{}, fmt.Errorf("%w: nil", ErrInvalidAssignment)
		}
		return checkUpload(*f)
	case *os.File:
		if f == nil {
			return Upload{}, fmt.Errorf("%w: nil", ErrInvalidAssignment)
		}
		return fromPath(f.Name(), filepath.Base(f.Name()), "")
	case *multipart.FileHeader:
		if f == nil {
			return Upload{}, fmt.Errorf("%w: nil", ErrInvalidAssignment)
		}
		return Upload{
			Filename:    f.Filename,
			ContentType: f.Header.Get("Content-Type"),
			Size:        f.Size,
			Source: storage.OpenerSource{Size: f.Size, Fn: func() (io.ReadCloser, error) {
				return f.Open()
			}},
		}, nil
	case map[string]string:
		return fromMap(f["filename"], f["tempfile"], f["content_type"])
	case map[string]any:
		str := func(k string) string {
			s, _ := f[k].(string)
			return s
		}
		return fromMap(str("filename"), str("tempfile"), str("content_type"))
	default:
		return Upload{}, fmt.Errorf("%w: %T", ErrInvalidAssignment, file)
	}
}

func checkUpload(u Upload) (Upload, error) {
	if u.Source == nil {
		return Upload{}, fmt.Errorf("%w: upload without source", ErrInvalidAssignment)
	}
	if u.Size == 0 {
		rc, size, err := u.Source.Open()
		if err != nil {
			return Upload{}, fmt.Errorf("%w: %v", ErrInvalidAssignment, err)
		}
		rc.Close()
		if size > 0 {
			u.Size = size
		}
	}
	if u.ContentType == "" {
		u.ContentType = ContentTypeFor(u.Filename)
	}
	return u, nil
}

func fromMap(filename, tempfile, contentType string) (Upload, error) {
	if filename == "" {
		return Upload{}, fmt.Errorf("%w: missing filename", ErrInvalidAssignment)
	}
	if tempfile == "" {
		return Upload{}, fmt.Errorf("%w: missing tempfile", ErrInvalidAssignment)
	}
	return fromPath(tempfile, filename, contentType)
}

func fromPath(path, filename, contentType string) (Upload, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Upload{}, fmt.Errorf("%w: %v", ErrInvalidAssignment, err)
	}
	if info.IsDir() {
		return Upload{}, fmt.Errorf("%w: %s is a directory", ErrInvalidAssignment, path)
	}
	if contentType == "" {
		contentType = ContentTypeFor(filename)
	}
	return Upload{
		Filename:    filename,
		ContentType: contentType,
		Size:        info.Size(),
		Source:      storage.FileSource(path),
	}, nil
}

var (
	jpegExt = regexp.MustCompile(`^jpe?g$`)
	tiffExt = regexp.MustCompile(`^tiff?$`)
	htmlExt = regexp.MustCompile(`^html?$`)
)

// ContentTypeFor infers a media type from a file name's extension.
func ContentTypeFor(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if ext == "" {
		ext = "octet-stream"
	}
	switch {
	case jpegExt.MatchString(ext):
		return "image/jpeg"
	case tiffExt.MatchString(ext):
		return "image/tiff"
	case ext == "png" || ext == "gif" || ext == "bmp":
		return "image/" + ext
	case ext == "txt":
		return "text/plain"
	case htmlExt.MatchString(ext):
		return "text/html"
	case ext == "mp3" || ext == "flac" || ext == "ogg":
		return "audio/" + ext
	case ext == "csv" || ext == "xml" || ext == "css" || ext == "js":
		return "text/" + ext
	case ext == "pdf":
		return "application/pdf"
	default:
		return "application/x-" + ext
	}
}
