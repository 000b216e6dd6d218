package gemini

import (
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"

	"google.golang.org/genai"
)

// Source records which extraction path produced a payload. The model is
// observed to sometimes embed image data inside a text part instead of a
// structured inline-data part, so both paths are first-class.
type Source string

const (
	SourceInline       Source = "inline"
	SourceEmbeddedText Source = "embedded_text"
)

// ImagePayload is the single canonical image extracted from a response
// envelope.
type ImagePayload struct {
	Data     []byte
	MIMEType string
	Source   Source
}

var (
	ErrMalformedResponse = errors.New("invalid response structure")
	ErrNoImage           = errors.New("no image in response")
	ErrPayloadTooSmall   = errors.New("payload too small")
)

// DefaultMinImageBytes is the smallest decoded payload accepted as a real
// image; anything below it is treated as a placeholder or corrupt result.
const DefaultMinImageBytes = 750

var dataURIPattern = regexp.MustCompile(`data:image/([^;]+);base64,([^"'\s]+)`)

// Normalizer extracts a canonical image payload from a generation response.
type Normalizer struct {
	minBytes int
}

func NewNormalizer(minBytes int) *Normalizer {
	if minBytes <= 0 {
		minBytes = DefaultMinImageBytes
	}
	return &Normalizer{minBytes: minBytes}
}

// Normalize scans the first candidate's parts for an inline binary image,
// falling back to a data URI embedded in a text part. The first match on
// each path wins and the binary path is always tried first, regardless of
// part order.
func (n *Normalizer) Normalize(resp *genai.GenerateContentResponse) (*ImagePayload, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, ErrMalformedResponse
	}
	candidate := resp.Candidates[0]
	if candidate == nil || candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return nil, ErrMalformedResponse
	}
	parts := candidate.Content.Parts

	for _, part := range parts {
		if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
			continue
		}
		mime := part.InlineData.MIMEType
		if mime == "" {
			mime = "image/png"
		}
		return n.checkSize(&ImagePayload{
			Data:     part.InlineData.Data,
			MIMEType: mime,
			Source:   SourceInline,
		})
	}

	for _, part := range parts {
		if part == nil || part.Text == "" {
			continue
		}
		m := dataURIPattern.FindStringSubmatch(part.Text)
		if m == nil {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(m[2])
		if err != nil {
			return nil, fmt.Errorf("%w: embedded data is not valid base64", ErrNoImage)
		}
		return n.checkSize(&ImagePayload{
			Data:     data,
			MIMEType: "image/" + m[1],
			Source:   SourceEmbeddedText,
		})
	}

	return nil, ErrNoImage
}

func (n *Normalizer) checkSize(p *ImagePayload) (*ImagePayload, error) {
	if len(p.Data) < n.minBytes {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrPayloadTooSmall, len(p.Data), n.minBytes)
	}
	return p, nil
}
