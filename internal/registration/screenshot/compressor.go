// Package screenshot re-encodes payment screenshots into compact JPEG data URIs.
package screenshot

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"net/http"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"outbreak/internal/registration/models"
	dErrors "outbreak/pkg/domain-errors"
)

const (
	DefaultMaxWidth = 800
	DefaultQuality  = 60
	DefaultMaxBytes = 10 << 20
	// DefaultMaxPixels bounds width*height of an upload, checked before decoding.
	DefaultMaxPixels = 40_000_000

	dataURIPrefix = "data:image/jpeg;base64,"
)

var supportedTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

// Compressor downscales images wider than maxWidth, keeping the aspect ratio,
// and encodes them as JPEG.
type Compressor struct {
	maxWidth  int
	quality   int
	maxBytes  int64
	maxPixels int64
}

type Option func(*Compressor)

func WithMaxWidth(w int) Option {
	return func(c *Compressor) {
		if w > 0 {
			c.maxWidth = w
		}
	}
}

func WithQuality(q int) Option {
	return func(c *Compressor) {
		if q > 0 && q <= 100 {
			c.quality = q
		}
	}
}

// WithMaxBytes caps the size of the uploaded image.
func WithMaxBytes(n int64) Option {
	return func(c *Compressor) {
		if n > 0 {
			c.maxBytes = n
		}
	}
}

// WithMaxPixels caps the decoded dimensions of the uploaded image.
func WithMaxPixels(n int64) Option {
	return func(c *Compressor) {
		if n > 0 {
			c.maxPixels = n
		}
	}
}

func New(opts ...Option) *Compressor {
	c := &Compressor{
		maxWidth:  DefaultMaxWidth,
		quality:   DefaultQuality,
		maxBytes:  DefaultMaxBytes,
		maxPixels: DefaultMaxPixels,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MaxBytes is the upload cap enforced by Compress.
func (c *Compressor) MaxBytes() int64 {
	return c.maxBytes
}

// Compress decodes shot and returns it as a data:image/jpeg;base64 URI.
func (c *Compressor) Compress(ctx context.Context, shot *models.Screenshot) (string, error) {
	if shot == nil || len(shot.Data) == 0 {
		return "", dErrors.New(dErrors.CodeEncoding, "screenshot is empty")
	}
	if int64(len(shot.Data)) > c.maxBytes {
		return "", dErrors.New(dErrors.CodeBadRequest, "screenshot exceeds upload limit")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if ct := sniff(shot.Data); !supported(ct) {
		return "", dErrors.New(dErrors.CodeEncoding, "unsupported image format: "+ct)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(shot.Data))
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeEncoding, "could not read screenshot")
	}
	if int64(cfg.Width)*int64(cfg.Height) > c.maxPixels {
		return "", dErrors.New(dErrors.CodeEncoding, "screenshot dimensions too large")
	}

	img, err := imaging.Decode(bytes.NewReader(shot.Data), imaging.AutoOrientation(true))
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeEncoding, "could not read screenshot")
	}

	if img.Bounds().Dx() > c.maxWidth {
		img = imaging.Resize(img, c.maxWidth, 0, imaging.Lanczos)
	}
	img = flatten(img)

	var buf bytes.Buffer
	buf.WriteString(dataURIPrefix)
	enc := base64.NewEncoder(base64.StdEncoding, &buf)
	if err := imaging.Encode(enc, img, imaging.JPEG, imaging.JPEGQuality(c.quality)); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeEncoding, "could not encode screenshot")
	}
	if err := enc.Close(); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeEncoding, "could not encode screenshot")
	}
	return buf.String(), nil
}

// flatten draws img over white so transparent areas do not turn black in JPEG.
func flatten(img image.Image) image.Image {
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}

func sniff(data []byte) string {
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	return http.DetectContentType(head)
}

func supported(ct string) bool {
	for _, t := range supportedTypes {
		if strings.HasPrefix(ct, t) {
			return true
		}
	}
	return false
}

// DecodeDataURI returns the JPEG bytes of a URI produced by Compress.
func DecodeDataURI(uri string) ([]byte, error) {
	payload, ok := strings.CutPrefix(uri, dataURIPrefix)
	if !ok {
		return nil, dErrors.New(dErrors.CodeEncoding, "not a jpeg data uri")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeEncoding, "malformed data uri")
	}
	return data, nil
}
