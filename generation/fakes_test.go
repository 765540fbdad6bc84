package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/teranos/cadence/errors"
	"github.com/teranos/cadence/pulse/async"
	"github.com/teranos/cadence/pulse/schedule"
)

type fakeText struct {
	err   error
	calls int
}

func (f *fakeText) GenerateProfile(ctx context.Context, profileType, gender string) (*CharacterProfile, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &CharacterProfile{
		Name:       "Mira Okafor",
		Bio:        "Chasing light in " + profileType,
		Occupation: "photographer",
		Interests:  []string{profileType},
	}, nil
}

// fakeImages fails the calls listed in failOn (1-based). block makes every
// call wait for its context.
type fakeImages struct {
	mu      sync.Mutex
	failOn  map[int]bool
	block   bool
	calls   int
	prompts []string
}

func (f *fakeImages) Generate(ctx context.Context, prompt string, width, height int) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.failOn[n] {
		return nil, errors.Newf("upstream returned status 502 for image %d", n)
	}
	return []byte(fmt.Sprintf("image-%d-%dx%d", n, width, height)), nil
}

type fakeFaces struct {
	err     error
	calls   int
	sources [][]byte
}

func (f *fakeFaces) Swap(ctx context.Context, sourceFace, target []byte) ([]byte, error) {
	f.calls++
	f.sources = append(f.sources, sourceFace)
	if f.err != nil {
		return nil, f.err
	}
	return append([]byte("swapped:"), target...), nil
}

type fakePublisher struct {
	err       error
	calls     int
	refs      []string
	platforms []string
}

func (f *fakePublisher) Post(ctx context.Context, artifactRef string, platforms []string) (string, error) {
	f.calls++
	f.refs = append(f.refs, artifactRef)
	f.platforms = platforms
	if f.err != nil {
		return "", f.err
	}
	return "post-" + artifactRef, nil
}

// memEntities is an in-memory EntityStore
type memEntities struct {
	mu            sync.Mutex
	failCreate    bool
	faceErr       error
	characters    map[string]*Character
	content       map[string]*ContentItem
	images        map[string]*Image
	imageData     map[string][]byte
	mainFaceCalls int
}

func newMemEntities() *memEntities {
	return &memEntities{
		characters: map[string]*Character{},
		content:    map[string]*ContentItem{},
		images:     map[string]*Image{},
		imageData:  map[string][]byte{},
	}
}

func (m *memEntities) CreateCharacter(ctx context.Context, c NewCharacter) (*Character, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate {
		return nil, errors.New("database is locked")
	}
	ch := &Character{
		ID:         uuid.NewString(),
		OwnerID:    c.OwnerID,
		Name:       c.Profile.Name,
		Profile:    c.Profile,
		Attributes: c.Attributes,
		CreatedAt:  time.Now(),
	}
	m.characters[ch.ID] = ch
	return ch, nil
}

func (m *memEntities) CreateContent(ctx context.Context, c NewContent) (*ContentItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate {
		return nil, errors.New("database is locked")
	}
	item := &ContentItem{
		ID:          uuid.NewString(),
		OwnerID:     c.OwnerID,
		CharacterID: c.CharacterID,
		ContentType: c.ContentType,
		Theme:       c.Theme,
		Caption:     c.Caption,
	}
	m.content[item.ID] = item
	return item, nil
}

func (m *memEntities) GetCharacter(ctx context.Context, ownerID, id string) (*Character, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.characters[id]
	if !ok || ch.OwnerID != ownerID {
		return nil, errors.NewNotFoundError("character %s not found", id)
	}
	copied := *ch
	return &copied, nil
}

func (m *memEntities) MainFace(ctx context.Context, ownerID, characterID string) (*Face, error) {
	ch, err := m.GetCharacter(ctx, ownerID, characterID)
	if err != nil || ch.MainFaceImageID == "" {
		return nil, err
	}
	return m.LoadFace(ctx, ownerID, ch.MainFaceImageID)
}

func (m *memEntities) LoadFace(ctx context.Context, ownerID, imageID string) (*Face, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.faceErr != nil {
		return nil, m.faceErr
	}
	data, ok := m.imageData[imageID]
	if !ok {
		return nil, errors.NewNotFoundError("image %s not found", imageID)
	}
	return &Face{ImageID: imageID, Data: data}, nil
}

func (m *memEntities) AttachImage(ctx context.Context, ownerID, entityID string, img NewImage) (*Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := &Image{
		ID:          uuid.NewString(),
		EntityID:    entityID,
		BlobKey:     "images/" + entityID,
		Prompt:      img.Prompt,
		Width:       img.Width,
		Height:      img.Height,
		FaceSwapped: img.FaceSwapped,
	}
	m.images[stored.ID] = stored
	m.imageData[stored.ID] = img.Data
	return stored, nil
}

func (m *memEntities) SetMainFace(ctx context.Context, ownerID, characterID, imageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mainFaceCalls++
	ch, ok := m.characters[characterID]
	if !ok || ch.OwnerID != ownerID {
		return errors.NewNotFoundError("character %s not found", characterID)
	}
	ch.MainFaceImageID = imageID
	return nil
}

func (m *memEntities) RecordPost(ctx context.Context, ownerID, contentID, postID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.content[contentID]
	if !ok {
		return errors.NewNotFoundError("content %s not found", contentID)
	}
	item.PostID = postID
	return nil
}

func (m *memEntities) imagesOf(entityID string) []*Image {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Image
	for _, img := range m.images {
		if img.EntityID == entityID {
			out = append(out, img)
		}
	}
	return out
}

// seedCharacter stores a character with an optional main face
func (m *memEntities) seedCharacter(ownerID string, face []byte) *Character {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := &Character{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		Name:       "Mira Okafor",
		Attributes: Attributes{ProfileType: "travel", Gender: "female", Ethnicity: "black", HairColor: "black", HairStyle: "braids", EyeColor: "brown", BodyType: "athletic", AgeRange: "mid 20s", Style: "bohemian"},
	}
	if face != nil {
		id := uuid.NewString()
		m.imageData[id] = face
		m.images[id] = &Image{ID: id, EntityID: ch.ID}
		ch.MainFaceImageID = id
	}
	m.characters[ch.ID] = ch
	return ch
}

type recordingProgress struct {
	counts []int
	steps  []string
}

func (p *recordingProgress) UpdateProgress(ctx context.Context, count int) error {
	p.counts = append(p.counts, count)
	return nil
}

func (p *recordingProgress) EmitError(step string, err error) {
	p.steps = append(p.steps, step)
}

func characterJob(t *testing.T, payload schedule.CharacterPayload) *async.Job {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return &async.Job{
		ID:          uuid.NewString(),
		OwnerID:     "owner-1",
		HandlerName: schedule.HandlerCharacterAutogen,
		Payload:     data,
		Status:      async.JobStatusGenerating,
	}
}

func contentJob(t *testing.T, payload schedule.ContentPayload) *async.Job {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return &async.Job{
		ID:          uuid.NewString(),
		OwnerID:     "owner-1",
		HandlerName: schedule.HandlerContentGenerate,
		Payload:     data,
		Status:      async.JobStatusGenerating,
	}
}
