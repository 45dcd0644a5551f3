package prompt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"promptkit/pkg/template"
)

// properties is the identity state shared by Prompt and ChatPrompt.
type properties struct {
	id                string
	versionID         string
	name              string
	description       string
	tags              []string
	commit            string
	metadata          map[string]any
	changeDescription string
	createdAt         *time.Time
	createdBy         string
	typ               template.Type
}

func propertiesFromData(data *Data) properties {
	return properties{
		id:                data.ID,
		versionID:         data.VersionID,
		name:              data.Name,
		description:       data.Description,
		tags:              copyTags(data.Tags),
		commit:            data.Commit,
		metadata:          copyMetadata(data.Metadata),
		changeDescription: data.ChangeDescription,
		createdAt:         data.CreatedAt,
		createdBy:         data.CreatedBy,
		typ:               data.Type,
	}
}

// updateProperties performs the single full-tuple write and mirrors the
// effective values into props only after the store accepted them.
func updateProperties(ctx context.Context, store Store, props *properties, req UpdateRequest) error {
	name := props.name
	if req.Name != nil {
		name = *req.Name
	}
	description := props.description
	if req.Description != nil {
		description = *req.Description
	}
	tags := props.tags
	if req.Tags != nil {
		tags = req.Tags
	}

	_, err := store.UpdatePrompt(ctx, props.id, UpdateRequest{
		Name:        &name,
		Description: &description,
		Tags:        tags,
	})
	if err != nil {
		return err
	}

	props.name = name
	props.description = description
	props.tags = copyTags(tags)
	return nil
}

func getVersion(ctx context.Context, store Store, promptID, commit string) (*Version, error) {
	data, err := store.GetVersionByCommit(ctx, promptID, commit)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return VersionFromData(*data)
}

func getVersions(ctx context.Context, store Store, promptID string, opts ListVersionsOptions) ([]*Version, error) {
	data, err := listAllVersions(ctx, store, promptID, opts)
	if err != nil {
		return nil, err
	}
	versions := make([]*Version, 0, len(data))
	for _, d := range data {
		v, err := VersionFromData(d)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, nil
}

// Prompt is a handle on a text prompt bound to one version. Mutating
// operations either mirror accepted backend state (UpdateProperties) or
// return a brand-new handle (UseVersion); the version binding itself never
// changes in place.
type Prompt struct {
	store    Store
	props    properties
	template string
}

// FromData binds a handle to a service payload with text content.
func FromData(store Store, data *Data) (*Prompt, error) {
	text, _, isChat, err := parseContent(data.Prompt)
	if err != nil {
		return nil, fmt.Errorf("prompt %s: %w", data.ID, err)
	}
	if isChat {
		return nil, fmt.Errorf("prompt %s holds chat content, use ChatFromData", data.ID)
	}
	return &Prompt{store: store, props: propertiesFromData(data), template: text}, nil
}

// Create registers a new text prompt with the service.
func Create(ctx context.Context, store Store, req CreateRequest) (*Prompt, error) {
	data, err := store.CreatePrompt(ctx, req)
	if err != nil {
		return nil, err
	}
	return FromData(store, data)
}

// Get fetches a text prompt by id.
func Get(ctx context.Context, store Store, id string) (*Prompt, error) {
	data, err := store.GetPrompt(ctx, id)
	if err != nil {
		return nil, err
	}
	return FromData(store, data)
}

func (p *Prompt) ID() string                { return p.props.id }
func (p *Prompt) VersionID() string         { return p.props.versionID }
func (p *Prompt) Name() string              { return p.props.name }
func (p *Prompt) Description() string       { return p.props.description }
func (p *Prompt) Commit() string            { return p.props.commit }
func (p *Prompt) Type() template.Type       { return p.props.typ }
func (p *Prompt) ChangeDescription() string { return p.props.changeDescription }
func (p *Prompt) Template() string          { return p.template }

// Tags returns a copy of the prompt's tags.
func (p *Prompt) Tags() []string { return copyTags(p.props.tags) }

// Metadata returns a deep copy; callers cannot mutate shared state through
// the returned map.
func (p *Prompt) Metadata() map[string]any { return copyMetadata(p.props.metadata) }

// Format renders the bound template. Purely local, no backend call.
func (p *Prompt) Format(vars map[string]any) (string, error) {
	return template.Format(p.template, vars, p.props.typ)
}

// UpdateProperties writes the full name/description/tags tuple to the
// service and mirrors it locally on success. On failure local state is
// untouched. Returns the receiver for chaining.
func (p *Prompt) UpdateProperties(ctx context.Context, req UpdateRequest) (*Prompt, error) {
	if err := updateProperties(ctx, p.store, &p.props, req); err != nil {
		return nil, err
	}
	return p, nil
}

// Delete removes the prompt and all of its versions.
func (p *Prompt) Delete(ctx context.Context) error {
	return p.store.DeletePrompt(ctx, p.props.id)
}

// GetVersions returns the full version history, paging through the service
// until a short page signals the end.
func (p *Prompt) GetVersions(ctx context.Context, opts ListVersionsOptions) ([]*Version, error) {
	return getVersions(ctx, p.store, p.props.id, opts)
}

// GetVersion fetches one version by commit. A not-found condition returns
// (nil, nil); any other failure propagates.
func (p *Prompt) GetVersion(ctx context.Context, commit string) (*Version, error) {
	return getVersion(ctx, p.store, p.props.id, commit)
}

// UseVersion asks the service to restore v, creating a new version with
// v's content, and returns a new handle bound to it. The receiver is left
// unchanged.
func (p *Prompt) UseVersion(ctx context.Context, v *Version) (*Prompt, error) {
	data, err := p.store.RestoreVersion(ctx, p.props.id, v.ID())
	if err != nil {
		return nil, err
	}
	return FromData(p.store, data)
}
