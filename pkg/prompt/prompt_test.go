package prompt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promptkit/pkg/template"
)

type fakeStore struct {
	prompts      map[string]*Data
	versions     map[string][]VersionData
	updateErr    error
	updateCalls  []UpdateRequest
	listCalls    []int
	restoreCalls int
	deleted      []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		prompts:  make(map[string]*Data),
		versions: make(map[string][]VersionData),
	}
}

func (s *fakeStore) CreatePrompt(_ context.Context, req CreateRequest) (*Data, error) {
	data := &Data{
		ID:        req.Name,
		VersionID: "v1",
		Name:      req.Name,
		Tags:      req.Tags,
		Commit:    "c1",
		Prompt:    req.Prompt,
		Type:      req.Type,
		Metadata:  req.Metadata,
	}
	s.prompts[data.ID] = data
	return data, nil
}

func (s *fakeStore) GetPrompt(_ context.Context, id string) (*Data, error) {
	data, ok := s.prompts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

func (s *fakeStore) UpdatePrompt(_ context.Context, id string, req UpdateRequest) (*Data, error) {
	s.updateCalls = append(s.updateCalls, req)
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	return s.prompts[id], nil
}

func (s *fakeStore) DeletePrompt(_ context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *fakeStore) ListVersions(_ context.Context, promptID string, page, size int, _ ListVersionsOptions) ([]VersionData, error) {
	s.listCalls = append(s.listCalls, page)
	all := s.versions[promptID]
	start := (page - 1) * size
	if start >= len(all) {
		return nil, nil
	}
	end := min(start+size, len(all))
	return all[start:end], nil
}

func (s *fakeStore) GetVersionByCommit(_ context.Context, promptID, commit string) (*VersionData, error) {
	for _, v := range s.versions[promptID] {
		if v.Commit == commit {
			return &v, nil
		}
	}
	return nil, fmt.Errorf("version %s: %w", commit, ErrNotFound)
}

func (s *fakeStore) RestoreVersion(_ context.Context, promptID, versionID string) (*Data, error) {
	s.restoreCalls++
	for _, v := range s.versions[promptID] {
		if v.ID == versionID {
			current := s.prompts[promptID]
			return &Data{
				ID:        promptID,
				VersionID: fmt.Sprintf("v-restored-%d", s.restoreCalls),
				Name:      current.Name,
				Tags:      current.Tags,
				Commit:    fmt.Sprintf("restored%d", s.restoreCalls),
				Prompt:    v.Prompt,
				Type:      v.Type,
			}, nil
		}
	}
	return nil, ErrNotFound
}

func textData(id string, tpl string) *Data {
	return &Data{
		ID:        id,
		VersionID: "v1",
		Name:      id,
		Commit:    "c1",
		Prompt:    TextContent(tpl),
		Type:      template.Mustache,
	}
}

func TestPromptFormatLocalOnly(t *testing.T) {
	store := newFakeStore()
	p, err := FromData(store, textData("greeter", "Hello {{name}}!"))
	require.NoError(t, err)

	out, err := p.Format(map[string]any{"name": "World"})
	require.NoError(t, err)
	assert.Equal(t, "Hello World!", out)
	assert.Empty(t, store.listCalls, "Format must not touch the backend")
}

func TestFromDataRejectsChatContent(t *testing.T) {
	store := newFakeStore()
	raw, err := ChatContent([]template.Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	_, err = FromData(store, &Data{ID: "x", Prompt: raw, Type: template.Mustache})
	require.Error(t, err)
}

func TestUpdatePropertiesMirrorsOnSuccess(t *testing.T) {
	store := newFakeStore()
	data := textData("p", "t")
	data.Description = "old"
	data.Tags = []string{"a"}
	store.prompts["p"] = data

	p, err := FromData(store, data)
	require.NoError(t, err)

	desc := "new description"
	same, err := p.UpdateProperties(context.Background(), UpdateRequest{
		Description: &desc,
		Tags:        []string{"x", "y"},
	})
	require.NoError(t, err)
	assert.Same(t, p, same, "UpdateProperties chains on the receiver")

	assert.Equal(t, "p", p.Name(), "omitted name defaults to current")
	assert.Equal(t, "new description", p.Description())
	assert.Equal(t, []string{"x", "y"}, p.Tags())

	require.Len(t, store.updateCalls, 1)
	sent := store.updateCalls[0]
	require.NotNil(t, sent.Name)
	assert.Equal(t, "p", *sent.Name, "full tuple is written, name included")
	assert.Equal(t, "new description", *sent.Description)
}

func TestUpdatePropertiesLeavesStateOnFailure(t *testing.T) {
	store := newFakeStore()
	data := textData("p", "t")
	data.Description = "old"
	store.prompts["p"] = data

	p, err := FromData(store, data)
	require.NoError(t, err)

	store.updateErr = errors.New("backend down")
	desc := "new"
	_, err = p.UpdateProperties(context.Background(), UpdateRequest{Description: &desc})
	require.Error(t, err)
	assert.Equal(t, "old", p.Description(), "no partial mutation on failure")
}

func TestGetVersionsPaginates(t *testing.T) {
	store := newFakeStore()
	store.prompts["p"] = textData("p", "t")
	for i := 0; i < 250; i++ {
		store.versions["p"] = append(store.versions["p"], VersionData{
			ID:       fmt.Sprintf("v%d", i),
			PromptID: "p",
			Commit:   fmt.Sprintf("c%d", i),
			Prompt:   TextContent("body"),
			Type:     template.Mustache,
		})
	}

	p, err := FromData(store, store.prompts["p"])
	require.NoError(t, err)

	versions, err := p.GetVersions(context.Background(), ListVersionsOptions{})
	require.NoError(t, err)
	assert.Len(t, versions, 250)
	assert.Equal(t, []int{1, 2, 3}, store.listCalls, "100-per-page until a short page")
}

func TestGetVersionNotFoundReturnsNil(t *testing.T) {
	store := newFakeStore()
	store.prompts["p"] = textData("p", "t")
	p, err := FromData(store, store.prompts["p"])
	require.NoError(t, err)

	v, err := p.GetVersion(context.Background(), "nope")
	require.NoError(t, err, "not-found is not an error")
	assert.Nil(t, v)
}

func TestUseVersionReturnsNewInstance(t *testing.T) {
	store := newFakeStore()
	store.prompts["p"] = textData("p", "current body")
	store.versions["p"] = []VersionData{{
		ID:       "v0",
		PromptID: "p",
		Commit:   "c0",
		Prompt:   TextContent("old body"),
		Type:     template.Mustache,
	}}

	p, err := FromData(store, store.prompts["p"])
	require.NoError(t, err)
	originalCommit := p.Commit()

	old, err := p.GetVersion(context.Background(), "c0")
	require.NoError(t, err)
	require.NotNil(t, old)

	restored, err := p.UseVersion(context.Background(), old)
	require.NoError(t, err)
	assert.NotSame(t, p, restored)
	assert.NotEqual(t, originalCommit, restored.Commit())
	assert.Equal(t, originalCommit, p.Commit(), "receiver must not mutate")
	assert.Equal(t, "old body", restored.Template())
}

func TestMetadataDeepCopied(t *testing.T) {
	store := newFakeStore()
	data := textData("p", "t")
	data.Metadata = map[string]any{"nested": map[string]any{"k": "v"}}

	p, err := FromData(store, data)
	require.NoError(t, err)

	m := p.Metadata()
	m["nested"].(map[string]any)["k"] = "mutated"
	m["new"] = true

	fresh := p.Metadata()
	assert.Equal(t, "v", fresh["nested"].(map[string]any)["k"])
	_, ok := fresh["new"]
	assert.False(t, ok)
}

func TestChatPromptFormat(t *testing.T) {
	store := newFakeStore()
	raw, err := ChatContent([]template.Message{
		{Role: "system", Content: "Assist {{user}}."},
		{Role: "user", Content: []template.ContentPart{
			{Type: template.PartImageURL, ImageURL: &template.ImageURL{URL: "https://img/{{id}}.png"}},
		}},
	})
	require.NoError(t, err)

	cp, err := ChatFromData(store, &Data{ID: "p", Commit: "c1", Prompt: raw, Type: template.Mustache})
	require.NoError(t, err)

	msgs, err := cp.Format(map[string]any{"user": "Ada", "id": "1"}, template.Modalities{Vision: template.Bool(false)})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Assist Ada.", msgs[0].Content)
	assert.Equal(t, template.ImagePlaceholder, msgs[1].Content)
}

func TestChatPromptRoundTripJSON(t *testing.T) {
	raw, err := ChatContent([]template.Message{{Role: "user", Content: "hi {{x}}"}})
	require.NoError(t, err)

	var back []template.Message
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, "hi {{x}}", back[0].Content)
}

func TestVersionRoundTripFormat(t *testing.T) {
	now := time.Now()
	tpl := "Hello {{name}}, welcome to {{place}}"
	vars := map[string]any{"name": "Ada", "place": "camp"}

	v, err := VersionFromData(VersionData{
		ID:        "v1",
		PromptID:  "p",
		Commit:    "abc123",
		Prompt:    TextContent(tpl),
		Type:      template.Mustache,
		CreatedAt: &now,
	})
	require.NoError(t, err)

	viaVersion, err := v.Format(vars)
	require.NoError(t, err)
	direct, err := template.Format(tpl, vars, template.Mustache)
	require.NoError(t, err)
	assert.Equal(t, direct, viaVersion)
}
