package engine

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
	_ "golang.org/x/image/webp" // Register WebP decoder, browsers often capture canvas frames as WebP
)

// idScanPrompt is the shared prompt used by all LLM backends for reading identity documents
const idScanPrompt = `You are looking at one camera frame that may show the front or the back of an identity document (ID card, passport data page, residence permit or driver's license). Read every printed field and extract:

1. **Side**: "front" if the frame shows the portrait/visual side, "back" if it shows the reverse side, "" if no document is visible.

2. **Names**: first name, last name and full name exactly as printed. Put each value in the field matching its script: "latin", "cyrillic" or "arabic". Leave the other scripts empty.

3. **Date of birth**: year, month and day as numbers.

4. **Document number**.

5. **Machine readable zone (MRZ)**: if the frame shows MRZ lines (rows of capital letters, digits and '<'), copy the primary identifier (surname), the secondary identifier (given names, separated by spaces), the document number and the date of birth.

Return ONLY valid JSON in this exact format:
{
  "side": "front",
  "firstName": {"latin": "", "cyrillic": "", "arabic": ""},
  "lastName": {"latin": "", "cyrillic": "", "arabic": ""},
  "fullName": {"latin": "", "cyrillic": "", "arabic": ""},
  "documentNumber": "",
  "dateOfBirth": {"year": 0, "month": 0, "day": 0},
  "mrz": {"primaryID": "", "secondaryID": "", "documentNumber": "", "dateOfBirth": {"year": 0, "month": 0, "day": 0}}
}

Important:
- Use an empty string or 0 for anything you cannot read, never guess
- Years must have four digits
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

// pdfToImage converts the first page of a PDF to an image
func pdfToImage(pdfData []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return img, nil
}

// decodeFrame decodes any supported frame format into an image
func decodeFrame(data []byte, mimeType string) (image.Image, error) {
	if mimeType == "application/pdf" {
		return pdfToImage(data)
	}

	// Go's standard image package doesn't support HEIC (common on iPhones)
	if isHEICFormat(data) || isHEICMimeType(mimeType) {
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		return img, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if strings.Contains(err.Error(), "unknown format") || strings.Contains(err.Error(), "unsupported") {
			return nil, fmt.Errorf("unsupported image format. Supported formats: JPEG, PNG, GIF, WebP, HEIC, HEIF, PDF. Error: %w", err)
		}
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// isHEICFormat checks for an ftyp box with a HEIC-related brand at offset 4
func isHEICFormat(data []byte) bool {
	if len(data) < 12 {
		return false
	}
	if string(data[4:8]) == "ftyp" {
		brand := string(data[8:12])
		if brand == "heic" || brand == "heif" || brand == "mif1" || brand == "msf1" {
			return true
		}
	}
	return false
}

// isHEICMimeType checks if the MIME type indicates HEIC/HEIF format
func isHEICMimeType(mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}

// normalizeMimeType lowercases and trims a content type, defaulting to JPEG
func normalizeMimeType(contentType string) string {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return mimeType
}

// prepareFrame converts a frame to PNG unless it already is one.
// Returns the PNG data and whether a conversion occurred.
func prepareFrame(frame Frame) ([]byte, bool, error) {
	mimeType := normalizeMimeType(frame.ContentType)
	if mimeType == "image/png" && !isHEICFormat(frame.Data) {
		return frame.Data, false, nil
	}

	img, err := decodeFrame(frame.Data, mimeType)
	if err != nil {
		return nil, false, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, false, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), true, nil
}
