package template

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Content part type discriminators on the wire.
const (
	PartText     = "text"
	PartImageURL = "image_url"
	PartVideoURL = "video_url"
)

// Placeholders substituted for media parts when the corresponding modality
// is disabled.
const (
	ImagePlaceholder = "<<<image>>><<</image>>>"
	VideoPlaceholder = "<<<video>>><<</video>>>"
)

// Message is a role-tagged chat message. Content is either a plain string
// or []ContentPart.
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type message struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var raw message
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Role = raw.Role
	m.Content = nil
	if len(raw.Content) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw.Content, &s); err == nil {
		m.Content = s
		return nil
	}
	var parts []ContentPart
	if err := json.Unmarshal(raw.Content, &parts); err != nil {
		return fmt.Errorf("message content is neither string nor content parts: %w", err)
	}
	m.Content = parts
	return nil
}

// ImageURL carries an image reference with an optional detail hint.
type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// VideoURL carries a video reference plus optional transport hints.
type VideoURL struct {
	URL      string   `json:"url"`
	MIMEType string   `json:"mime_type,omitempty"`
	Duration *float64 `json:"duration,omitempty"`
	Format   string   `json:"format,omitempty"`
	Detail   string   `json:"detail,omitempty"`
}

// ContentPart is one typed element of a structured message content list.
// Parts with a type this package does not recognize round-trip unchanged
// through raw.
type ContentPart struct {
	Type     string
	Text     string
	ImageURL *ImageURL
	VideoURL *VideoURL

	raw map[string]any
}

// TextPart builds a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: PartText, Text: text}
}

func (p ContentPart) MarshalJSON() ([]byte, error) {
	switch p.Type {
	case PartText:
		return json.Marshal(map[string]any{"type": PartText, "text": p.Text})
	case PartImageURL:
		return json.Marshal(map[string]any{"type": PartImageURL, "image_url": p.ImageURL})
	case PartVideoURL:
		return json.Marshal(map[string]any{"type": PartVideoURL, "video_url": p.VideoURL})
	default:
		if p.raw != nil {
			return json.Marshal(p.raw)
		}
		return json.Marshal(map[string]any{"type": p.Type})
	}
}

func (p *ContentPart) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	typ, _ := raw["type"].(string)
	*p = ContentPart{Type: typ}
	switch typ {
	case PartText:
		p.Text, _ = raw["text"].(string)
	case PartImageURL:
		var wrapper struct {
			ImageURL ImageURL `json:"image_url"`
		}
		if err := json.Unmarshal(data, &wrapper); err != nil {
			return err
		}
		p.ImageURL = &wrapper.ImageURL
	case PartVideoURL:
		var wrapper struct {
			VideoURL VideoURL `json:"video_url"`
		}
		if err := json.Unmarshal(data, &wrapper); err != nil {
			return err
		}
		p.VideoURL = &wrapper.VideoURL
	default:
		p.raw = raw
	}
	return nil
}

// Modalities declares which structured media kinds the target model
// accepts. Nil fields fall back to enabled.
type Modalities struct {
	Vision *bool
	Video  *bool
}

// Bool is a pointer helper for Modalities overrides.
func Bool(v bool) *bool { return &v }

func (m Modalities) vision() bool { return m.Vision == nil || *m.Vision }
func (m Modalities) video() bool  { return m.Video == nil || *m.Video }

// FormatMessages renders every message through Format, applying the
// per-modality substitution policy to structured content parts.
//
// Media parts whose modality is disabled are collapsed to placeholder
// tokens. When placeholders are the only content the message comes back
// with a plain-string content (fragments joined by newlines); when they sit
// next to surviving structured parts, each placeholder is appended as its
// own text part instead. Messages without a role are skipped.
func FormatMessages(messages []Message, vars map[string]any, typ Type, mods Modalities) ([]Message, error) {
	out := make([]Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == "" {
			continue
		}
		switch content := msg.Content.(type) {
		case string:
			rendered, err := Format(content, vars, typ)
			if err != nil {
				return nil, err
			}
			out = append(out, Message{Role: msg.Role, Content: rendered})
		case []ContentPart:
			rendered, err := formatParts(content, vars, typ, mods)
			if err != nil {
				return nil, err
			}
			out = append(out, Message{Role: msg.Role, Content: rendered})
		default:
			out = append(out, msg)
		}
	}
	return out, nil
}

func formatParts(parts []ContentPart, vars map[string]any, typ Type, mods Modalities) (any, error) {
	rendered := make([]ContentPart, 0, len(parts))
	var collapsed []string

	for _, part := range parts {
		switch part.Type {
		case PartText:
			text, err := Format(part.Text, vars, typ)
			if err != nil {
				return nil, err
			}
			rendered = append(rendered, TextPart(text))
		case PartImageURL:
			if !mods.vision() {
				collapsed = append(collapsed, ImagePlaceholder)
				continue
			}
			// hand-built parts may omit the payload pointer
			if part.ImageURL == nil {
				rendered = append(rendered, part)
				continue
			}
			url, err := Format(part.ImageURL.URL, vars, typ)
			if err != nil {
				return nil, err
			}
			rendered = append(rendered, ContentPart{
				Type:     PartImageURL,
				ImageURL: &ImageURL{URL: url, Detail: part.ImageURL.Detail},
			})
		case PartVideoURL:
			if !mods.video() {
				collapsed = append(collapsed, VideoPlaceholder)
				continue
			}
			if part.VideoURL == nil {
				rendered = append(rendered, part)
				continue
			}
			url, err := Format(part.VideoURL.URL, vars, typ)
			if err != nil {
				return nil, err
			}
			v := *part.VideoURL
			v.URL = url
			rendered = append(rendered, ContentPart{Type: PartVideoURL, VideoURL: &v})
		default:
			rendered = append(rendered, part)
		}
	}

	// Placeholder-only content collapses to a scalar string; mixed content
	// keeps the part list and appends each placeholder as a text part.
	if len(collapsed) > 0 && len(rendered) == 0 {
		return strings.Join(collapsed, "\n"), nil
	}
	for _, c := range collapsed {
		rendered = append(rendered, TextPart(c))
	}
	return rendered, nil
}
