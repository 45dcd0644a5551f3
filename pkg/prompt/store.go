// Package prompt exposes versioned prompt handles backed by a remote
// prompt service. Prompt and ChatPrompt wrap exactly one version's content;
// every content-changing operation produces a new version on the backend
// and a new handle here, never an in-place transition.
package prompt

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"promptkit/pkg/template"
)

// ErrNotFound marks 404-class responses from the prompt service.
var ErrNotFound = errors.New("prompt: not found")

// Data is the prompt payload as the service returns it: the identity
// fields plus the current version's content.
type Data struct {
	ID                string          `json:"id"`
	VersionID         string          `json:"version_id"`
	Name              string          `json:"name"`
	Description       string          `json:"description,omitempty"`
	Tags              []string        `json:"tags,omitempty"`
	Commit            string          `json:"commit"`
	Prompt            json.RawMessage `json:"prompt"`
	Type              template.Type   `json:"type"`
	Metadata          map[string]any  `json:"metadata,omitempty"`
	ChangeDescription string          `json:"change_description,omitempty"`
	CreatedAt         *time.Time      `json:"created_at,omitempty"`
	CreatedBy         string          `json:"created_by,omitempty"`
}

// VersionData is one immutable version snapshot.
type VersionData struct {
	ID                string          `json:"id"`
	PromptID          string          `json:"prompt_id"`
	Commit            string          `json:"commit"`
	Prompt            json.RawMessage `json:"prompt"`
	Type              template.Type   `json:"type"`
	Metadata          map[string]any  `json:"metadata,omitempty"`
	ChangeDescription string          `json:"change_description,omitempty"`
	CreatedAt         *time.Time      `json:"created_at,omitempty"`
	CreatedBy         string          `json:"created_by,omitempty"`
}

// CreateRequest creates a prompt with its first version.
type CreateRequest struct {
	Name              string          `json:"name"`
	Description       string          `json:"description,omitempty"`
	Tags              []string        `json:"tags,omitempty"`
	Type              template.Type   `json:"type"`
	Prompt            json.RawMessage `json:"prompt"`
	Metadata          map[string]any  `json:"metadata,omitempty"`
	ChangeDescription string          `json:"change_description,omitempty"`
}

// UpdateRequest carries the full desired name/description/tags tuple.
// Nil fields keep the handle's current value.
type UpdateRequest struct {
	Name        *string  `json:"name,omitempty"`
	Description *string  `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// ListVersionsOptions are optional list refinements. Stores that do not
// support them ignore them.
type ListVersionsOptions struct {
	Search    string
	SortBy    string
	SortOrder string
	Filters   map[string]string
}

// Store is the REST prompt-service collaborator. GetVersionByCommit
// returns ErrNotFound for 404-class conditions; every other failure
// propagates as-is.
type Store interface {
	CreatePrompt(ctx context.Context, req CreateRequest) (*Data, error)
	GetPrompt(ctx context.Context, id string) (*Data, error)
	UpdatePrompt(ctx context.Context, id string, req UpdateRequest) (*Data, error)
	DeletePrompt(ctx context.Context, id string) error
	ListVersions(ctx context.Context, promptID string, page, size int, opts ListVersionsOptions) ([]VersionData, error)
	GetVersionByCommit(ctx context.Context, promptID, commit string) (*VersionData, error)
	RestoreVersion(ctx context.Context, promptID, versionID string) (*Data, error)
}

// TextContent wraps a text template for CreateRequest.Prompt.
func TextContent(text string) json.RawMessage {
	data, _ := json.Marshal(text)
	return data
}

// ChatContent wraps a message array for CreateRequest.Prompt.
func ChatContent(messages []template.Message) (json.RawMessage, error) {
	return json.Marshal(messages)
}

const versionsPageSize = 100

func listAllVersions(ctx context.Context, store Store, promptID string, opts ListVersionsOptions) ([]VersionData, error) {
	var all []VersionData
	for page := 1; ; page++ {
		batch, err := store.ListVersions(ctx, promptID, page, versionsPageSize, opts)
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(batch) < versionsPageSize {
			return all, nil
		}
	}
}

// parseContent splits the wire content into its text or chat form.
func parseContent(raw json.RawMessage) (text string, messages []template.Message, isChat bool, err error) {
	if err = json.Unmarshal(raw, &text); err == nil {
		return text, nil, false, nil
	}
	if err = json.Unmarshal(raw, &messages); err == nil {
		return "", messages, true, nil
	}
	return "", nil, false, errors.New("prompt content is neither string nor message array")
}

func copyMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{}
	}
	return out
}

func copyTags(tags []string) []string {
	if tags == nil {
		return nil
	}
	return append([]string(nil), tags...)
}
