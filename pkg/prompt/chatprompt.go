package prompt

import (
	"context"
	"fmt"

	"promptkit/pkg/template"
)

// ChatPrompt is a handle on a chat prompt bound to one version. Its
// template is an ordered message sequence rather than a single string;
// everything else mirrors Prompt.
type ChatPrompt struct {
	store    Store
	props    properties
	messages []template.Message
}

// ChatFromData binds a handle to a service payload with chat content.
func ChatFromData(store Store, data *Data) (*ChatPrompt, error) {
	_, messages, isChat, err := parseContent(data.Prompt)
	if err != nil {
		return nil, fmt.Errorf("prompt %s: %w", data.ID, err)
	}
	if !isChat {
		return nil, fmt.Errorf("prompt %s holds text content, use FromData", data.ID)
	}
	return &ChatPrompt{store: store, props: propertiesFromData(data), messages: messages}, nil
}

// CreateChat registers a new chat prompt with the service.
func CreateChat(ctx context.Context, store Store, req CreateRequest) (*ChatPrompt, error) {
	data, err := store.CreatePrompt(ctx, req)
	if err != nil {
		return nil, err
	}
	return ChatFromData(store, data)
}

// GetChat fetches a chat prompt by id.
func GetChat(ctx context.Context, store Store, id string) (*ChatPrompt, error) {
	data, err := store.GetPrompt(ctx, id)
	if err != nil {
		return nil, err
	}
	return ChatFromData(store, data)
}

func (p *ChatPrompt) ID() string                { return p.props.id }
func (p *ChatPrompt) VersionID() string         { return p.props.versionID }
func (p *ChatPrompt) Name() string              { return p.props.name }
func (p *ChatPrompt) Description() string       { return p.props.description }
func (p *ChatPrompt) Commit() string            { return p.props.commit }
func (p *ChatPrompt) Type() template.Type       { return p.props.typ }
func (p *ChatPrompt) ChangeDescription() string { return p.props.changeDescription }

// Tags returns a copy of the prompt's tags.
func (p *ChatPrompt) Tags() []string { return copyTags(p.props.tags) }

// Metadata returns a deep copy; callers cannot mutate shared state through
// the returned map.
func (p *ChatPrompt) Metadata() map[string]any { return copyMetadata(p.props.metadata) }

// Messages returns a copy of the bound message templates.
func (p *ChatPrompt) Messages() []template.Message {
	return append([]template.Message(nil), p.messages...)
}

// Format renders every message with the given variables and modality
// policy. Purely local, no backend call.
func (p *ChatPrompt) Format(vars map[string]any, mods template.Modalities) ([]template.Message, error) {
	return template.FormatMessages(p.messages, vars, p.props.typ, mods)
}

// UpdateProperties writes the full name/description/tags tuple to the
// service and mirrors it locally on success. On failure local state is
// untouched. Returns the receiver for chaining.
func (p *ChatPrompt) UpdateProperties(ctx context.Context, req UpdateRequest) (*ChatPrompt, error) {
	if err := updateProperties(ctx, p.store, &p.props, req); err != nil {
		return nil, err
	}
	return p, nil
}

// Delete removes the prompt and all of its versions.
func (p *ChatPrompt) Delete(ctx context.Context) error {
	return p.store.DeletePrompt(ctx, p.props.id)
}

// GetVersions returns the full version history, paging through the service
// until a short page signals the end.
func (p *ChatPrompt) GetVersions(ctx context.Context, opts ListVersionsOptions) ([]*Version, error) {
	return getVersions(ctx, p.store, p.props.id, opts)
}

// GetVersion fetches one version by commit. A not-found condition returns
// (nil, nil); any other failure propagates.
func (p *ChatPrompt) GetVersion(ctx context.Context, commit string) (*Version, error) {
	return getVersion(ctx, p.store, p.props.id, commit)
}

// UseVersion asks the service to restore v, creating a new version with
// v's content, and returns a new handle bound to it. The receiver is left
// unchanged.
func (p *ChatPrompt) UseVersion(ctx context.Context, v *Version) (*ChatPrompt, error) {
	data, err := p.store.RestoreVersion(ctx, p.props.id, v.ID())
	if err != nil {
		return nil, err
	}
	return ChatFromData(p.store, data)
}
