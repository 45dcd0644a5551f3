package prompt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/rs/zerolog/log"

	"promptkit/pkg/template"
)

// Version is an immutable snapshot of one prompt version. It is never
// mutated after construction; all accessors hand out copies.
type Version struct {
	id                string
	promptID          string
	commit            string
	typ               template.Type
	text              string
	messages          []template.Message
	isChat            bool
	metadata          map[string]any
	changeDescription string
	createdAt         *time.Time
	createdBy         string
}

// VersionFromData builds a Version from a service response.
func VersionFromData(data VersionData) (*Version, error) {
	text, messages, isChat, err := parseContent(data.Prompt)
	if err != nil {
		return nil, fmt.Errorf("version %s: %w", data.ID, err)
	}
	return &Version{
		id:                data.ID,
		promptID:          data.PromptID,
		commit:            data.Commit,
		typ:               data.Type,
		text:              text,
		messages:          messages,
		isChat:            isChat,
		metadata:          copyMetadata(data.Metadata),
		changeDescription: data.ChangeDescription,
		createdAt:         data.CreatedAt,
		createdBy:         data.CreatedBy,
	}, nil
}

func (v *Version) ID() string                 { return v.id }
func (v *Version) PromptID() string           { return v.promptID }
func (v *Version) Commit() string             { return v.commit }
func (v *Version) Type() template.Type        { return v.typ }
func (v *Version) IsChat() bool               { return v.isChat }
func (v *Version) ChangeDescription() string  { return v.changeDescription }
func (v *Version) CreatedBy() string          { return v.createdBy }
func (v *Version) Metadata() map[string]any   { return copyMetadata(v.metadata) }

func (v *Version) CreatedAt() *time.Time {
	if v.createdAt == nil {
		return nil
	}
	t := *v.createdAt
	return &t
}

// Format renders a text version's template.
func (v *Version) Format(vars map[string]any) (string, error) {
	if v.isChat {
		return "", errors.New("prompt: chat version, use FormatMessages")
	}
	return template.Format(v.text, vars, v.typ)
}

// FormatMessages renders a chat version's messages.
func (v *Version) FormatMessages(vars map[string]any, mods template.Modalities) ([]template.Message, error) {
	if !v.isChat {
		return nil, errors.New("prompt: text version, use Format")
	}
	return template.FormatMessages(v.messages, vars, v.typ, mods)
}

// VersionAge returns a human-relative age, "Unknown" when the service did
// not report a creation time.
func (v *Version) VersionAge() string {
	if v.createdAt == nil {
		return "Unknown"
	}
	return humanize.Time(*v.createdAt)
}

// VersionInfo returns "[<commit>] <date> by <creator> - <changeDescription>"
// with absent segments omitted.
func (v *Version) VersionInfo() string {
	var segments []string
	if v.commit != "" {
		segments = append(segments, "["+v.commit+"]")
	}
	if v.createdAt != nil {
		segments = append(segments, v.createdAt.UTC().Format(time.RFC3339))
	}
	if v.createdBy != "" {
		segments = append(segments, "by "+v.createdBy)
	}
	if v.changeDescription != "" {
		segments = append(segments, "- "+v.changeDescription)
	}
	return strings.Join(segments, " ")
}

// CompareTo returns a unified diff from other's template to this
// version's, labelled by commit. The diff is also logged at debug level.
func (v *Version) CompareTo(other *Version) (string, error) {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(other.source()),
		B:        difflib.SplitLines(v.source()),
		FromFile: fmt.Sprintf("Other version [%s]", other.commit),
		ToFile:   fmt.Sprintf("Current version [%s]", v.commit),
		Context:  3,
	}
	out, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return "", fmt.Errorf("diff versions: %w", err)
	}
	log.Debug().
		Str("current", v.commit).
		Str("other", other.commit).
		Msg("compared prompt versions:\n" + out)
	return out, nil
}

func (v *Version) source() string {
	if !v.isChat {
		return v.text
	}
	data, err := json.MarshalIndent(v.messages, "", "  ")
	if err != nil {
		return ""
	}
	return string(data)
}
