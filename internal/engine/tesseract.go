package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
)

// mrzAlphabet is every character that can appear in a machine readable zone
const mrzAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789<"

// Tesseract is a Backend that OCRs frames locally and reads only the MRZ
type Tesseract struct {
	language string
}

// NewTesseract creates a Tesseract backend. language is a traineddata name
// such as "eng" or "ocrb".
func NewTesseract(language string) *Tesseract {
	if language == "" {
		language = "eng"
	}
	return &Tesseract{language: language}
}

// Supported reports whether libtesseract is linked and answers
func (t *Tesseract) Supported(ctx context.Context) bool {
	return gosseract.Version() != ""
}

func (t *Tesseract) Open(ctx context.Context, settings LoadSettings) (FrameReader, error) {
	client := gosseract.NewClient()
	settings.report(30)

	if err := client.SetLanguage(t.language); err != nil {
		client.Close()
		return nil, fmt.Errorf("setting tesseract language: %w", err)
	}
	if err := client.SetWhitelist(mrzAlphabet); err != nil {
		client.Close()
		return nil, fmt.Errorf("setting tesseract whitelist: %w", err)
	}
	settings.report(60)

	return &tesseractReader{client: client, now: time.Now}, nil
}

type tesseractReader struct {
	// gosseract clients are not safe for concurrent use
	mu     sync.Mutex
	client *gosseract.Client
	now    func() time.Time
}

// ReadFrame OCRs the frame and parses any MRZ in it. A frame without an MRZ
// yields empty data, not an error.
func (t *tesseractReader) ReadFrame(ctx context.Context, frame Frame) (*FrameData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := decodeFrame(frame.Data, normalizeMimeType(frame.ContentType))
	if err != nil {
		return nil, err
	}

	// MRZ text is small; upscale and drop color before OCR
	img = imaging.Grayscale(img)
	if w := img.Bounds().Dx(); w < 1600 {
		img = imaging.Resize(img, 1600, 0, imaging.Lanczos)
	}
	img = imaging.AdjustContrast(img, 10)
	img = imaging.Sharpen(img, 1.1)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("loading frame into tesseract: %w", err)
	}
	text, err := t.client.Text()
	if err != nil {
		return nil, fmt.Errorf("running tesseract: %w", err)
	}

	mrz, err := parseMRZ(text, t.now())
	if errors.Is(err, ErrNoMRZ) {
		slog.Debug("No MRZ in frame", "chars", len(text))
		return &FrameData{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &FrameData{MRZ: mrz}, nil
}

func (t *tesseractReader) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client.Close()
}
