package generation

import (
	"bytes"
	"context"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/cadence/errors"
	"github.com/teranos/cadence/internal/util"
	"github.com/teranos/cadence/pulse/async"
	"github.com/teranos/cadence/pulse/schedule"
)

type testPipeline struct {
	text      *fakeText
	images    *fakeImages
	faces     *fakeFaces
	publisher *fakePublisher
	entities  *memEntities
	executor  *Executor
}

func newTestPipeline(t *testing.T, cfg Config) *testPipeline {
	t.Helper()
	p := &testPipeline{
		text:      &fakeText{},
		images:    &fakeImages{failOn: map[int]bool{}},
		faces:     &fakeFaces{},
		publisher: &fakePublisher{},
		entities:  newMemEntities(),
	}
	p.executor = NewExecutor(Collaborators{
		Text:      p.text,
		Images:    p.images,
		Faces:     p.faces,
		Publisher: p.publisher,
		Entities:  p.entities,
	}, cfg, zaptest.NewLogger(t).Sugar(), WithRandSource(func() *rand.Rand { return util.NewSeededRand(3) }))
	return p
}

func TestCharacterJobSurvivesOneFailedImage(t *testing.T) {
	p := newTestPipeline(t, Config{})
	p.images.failOn[2] = true
	progress := &recordingProgress{}

	job := characterJob(t, schedule.CharacterPayload{ProfileType: "fitness", Gender: "female", ImageCount: 3})
	out := p.executor.Execute(context.Background(), job, progress)

	require.NoError(t, out.Err)
	assert.Equal(t, async.JobStatusCompleted, out.Status)
	assert.Equal(t, 2, out.Images)
	assert.Equal(t, []int{1, 2}, progress.counts)
	require.Len(t, out.StepErrors(), 1)
	assert.Contains(t, out.StepErrors()[0], "image_generation #2")
	assert.Equal(t, out.StepErrors(), out.Warnings())
	assert.Equal(t, []string{string(StepImageGeneration)}, progress.steps)

	character, err := p.entities.GetCharacter(context.Background(), "owner-1", out.ResultRef)
	require.NoError(t, err)
	assert.Equal(t, "Mira Okafor", character.Name)
	assert.Equal(t, "fitness", character.Attributes.ProfileType)
	assert.NotEmpty(t, character.Attributes.Ethnicity)

	// First image becomes the main face; the third is swapped onto it
	images := p.entities.imagesOf(character.ID)
	require.Len(t, images, 2)
	require.NotEmpty(t, character.MainFaceImageID)
	assert.Equal(t, 1, p.faces.calls)
	assert.Equal(t, []byte("image-1-832x1216"), p.faces.sources[0])
	swapped := 0
	for _, img := range images {
		if img.FaceSwapped {
			swapped++
		}
		assert.Equal(t, 832, img.Width)
		assert.Equal(t, 1216, img.Height)
	}
	assert.Equal(t, 1, swapped)
}

func TestCharacterJobPersistenceFailureIsFatal(t *testing.T) {
	p := newTestPipeline(t, Config{})
	p.entities.failCreate = true

	out := p.executor.Execute(context.Background(), characterJob(t, schedule.CharacterPayload{ProfileType: "travel", Gender: "male", ImageCount: 2}), nil)

	require.Error(t, out.Err)
	assert.Equal(t, async.JobStatusFailed, out.Status)
	assert.Contains(t, out.Err.Error(), "failed to save character")
	assert.Zero(t, p.images.calls)
	assert.Empty(t, out.Warnings())
	assert.Empty(t, out.ResultRef)
}

func TestCharacterJobProfileFailureIsFatal(t *testing.T) {
	p := newTestPipeline(t, Config{})
	p.text.err = errors.New("status 429: rate limit exceeded")

	out := p.executor.Execute(context.Background(), characterJob(t, schedule.CharacterPayload{ProfileType: "art", Gender: "female"}), nil)

	require.Error(t, out.Err)
	assert.Contains(t, out.Err.Error(), "profile synthesis failed")
	assert.Empty(t, p.entities.characters)
	require.Len(t, out.Steps, 1)
	assert.True(t, out.Steps[0].Fatal)
	assert.Equal(t, async.ErrorCodeRateLimited, async.ClassifyError("profile", out.Err).Code)
}

func TestJobWithNoImagesFails(t *testing.T) {
	p := newTestPipeline(t, Config{})
	p.images.failOn[1] = true
	p.images.failOn[2] = true
	progress := &recordingProgress{}

	out := p.executor.Execute(context.Background(), characterJob(t, schedule.CharacterPayload{ProfileType: "food", Gender: "male", ImageCount: 2}), progress)

	require.Error(t, out.Err)
	assert.Equal(t, async.JobStatusFailed, out.Status)
	assert.Contains(t, out.Err.Error(), "0 of 2")
	assert.Len(t, out.Warnings(), 2)
	assert.Len(t, out.StepErrors(), 3)
	assert.Empty(t, progress.counts)
	assert.NotEmpty(t, out.ResultRef, "the character was saved before the loop")
}

func TestContentJobUsesMainFace(t *testing.T) {
	p := newTestPipeline(t, Config{})
	character := p.entities.seedCharacter("owner-1", []byte("face"))

	job := contentJob(t, schedule.ContentPayload{CharacterID: character.ID, Theme: "beach day", ImageCount: 2, Width: 512, Height: 512})
	out := p.executor.Execute(context.Background(), job, nil)

	require.NoError(t, out.Err)
	assert.Equal(t, 2, out.Images)
	assert.Equal(t, 2, p.faces.calls)
	for _, src := range p.faces.sources {
		assert.Equal(t, []byte("face"), src)
	}
	assert.Zero(t, p.entities.mainFaceCalls, "an existing main face is kept")

	item := p.entities.content[out.ResultRef]
	require.NotNil(t, item)
	assert.Equal(t, character.ID, item.CharacterID)
	assert.Equal(t, "Mira Okafor | beach day", item.Caption)

	for _, prompt := range p.images.prompts {
		assert.Contains(t, prompt, "beach day")
		assert.Contains(t, prompt, "braids")
	}
	for _, img := range p.entities.imagesOf(item.ID) {
		assert.True(t, img.FaceSwapped)
		assert.Equal(t, 512, img.Width)
	}
}

func TestContentJobKeepsMainFaceWhenLookupFails(t *testing.T) {
	p := newTestPipeline(t, Config{})
	character := p.entities.seedCharacter("owner-1", []byte("face"))
	established := character.MainFaceImageID
	p.entities.faceErr = errors.New("blob read timeout")

	job := contentJob(t, schedule.ContentPayload{CharacterID: character.ID, ImageCount: 2})
	out := p.executor.Execute(context.Background(), job, nil)

	require.NoError(t, out.Err)
	assert.Equal(t, async.JobStatusCompleted, out.Status)
	assert.Equal(t, 2, out.Images)
	assert.Zero(t, p.entities.mainFaceCalls)

	stored, err := p.entities.GetCharacter(context.Background(), "owner-1", character.ID)
	require.NoError(t, err)
	assert.Equal(t, established, stored.MainFaceImageID)

	// The first image still serves as the swap reference for the second
	assert.Equal(t, 1, p.faces.calls)
	require.NotEmpty(t, out.Warnings())
	assert.Contains(t, out.Warnings()[0], "failed to load reference face")
}

func TestContentJobFaceOverrideAndSwapFallback(t *testing.T) {
	p := newTestPipeline(t, Config{})
	character := p.entities.seedCharacter("owner-1", []byte("main-face"))
	other := p.entities.seedCharacter("owner-1", []byte("override-face"))
	p.faces.err = errors.New("face not detected")

	job := contentJob(t, schedule.ContentPayload{CharacterID: character.ID, ImageCount: 1, FaceImageID: other.MainFaceImageID})
	out := p.executor.Execute(context.Background(), job, nil)

	require.NoError(t, out.Err)
	assert.Equal(t, async.JobStatusCompleted, out.Status)
	assert.Equal(t, []byte("override-face"), p.faces.sources[0])
	require.Len(t, out.Warnings(), 1)
	assert.Contains(t, out.Warnings()[0], "face_swap #1")

	images := p.entities.imagesOf(out.ResultRef)
	require.Len(t, images, 1)
	assert.False(t, images[0].FaceSwapped, "falls back to the unswapped image")
	assert.True(t, bytes.HasPrefix(p.entities.imageData[images[0].ID], []byte("image-1")))
}

func TestContentJobWithoutFaceSetsMainFace(t *testing.T) {
	p := newTestPipeline(t, Config{})
	character := p.entities.seedCharacter("owner-1", nil)

	out := p.executor.Execute(context.Background(), contentJob(t, schedule.ContentPayload{CharacterID: character.ID, ImageCount: 2}), nil)

	require.NoError(t, out.Err)
	assert.Equal(t, 1, p.entities.mainFaceCalls)
	assert.Equal(t, 1, p.faces.calls)

	got, err := p.entities.GetCharacter(context.Background(), "owner-1", character.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, got.MainFaceImageID)
}

func TestContentJobForeignCharacterIsNotFound(t *testing.T) {
	p := newTestPipeline(t, Config{})
	character := p.entities.seedCharacter("owner-2", nil)

	out := p.executor.Execute(context.Background(), contentJob(t, schedule.ContentPayload{CharacterID: character.ID}), nil)

	require.Error(t, out.Err)
	assert.True(t, errors.IsNotFoundError(out.Err))
	assert.Empty(t, p.entities.content)
}

func TestAutoPost(t *testing.T) {
	p := newTestPipeline(t, Config{})
	character := p.entities.seedCharacter("owner-1", []byte("face"))

	out := p.executor.Execute(context.Background(), contentJob(t, schedule.ContentPayload{
		CharacterID: character.ID,
		AutoPost:    true,
		Platforms:   []string{"instagram", "tiktok"},
	}), nil)

	require.NoError(t, out.Err)
	assert.Equal(t, "post-"+out.ResultRef, out.PostID)
	assert.Equal(t, []string{"instagram", "tiktok"}, p.publisher.platforms)
	assert.Equal(t, out.PostID, p.entities.content[out.ResultRef].PostID)

	p.publisher.err = errors.New("status 503")
	out = p.executor.Execute(context.Background(), contentJob(t, schedule.ContentPayload{CharacterID: character.ID, AutoPost: true}), nil)
	require.NoError(t, out.Err, "auto-post failure is not fatal")
	require.Len(t, out.Warnings(), 1)
	assert.True(t, strings.HasPrefix(out.Warnings()[0], "auto_post"))
}

func TestAutoPostWithoutPublisher(t *testing.T) {
	entities := newMemEntities()
	executor := NewExecutor(Collaborators{
		Text:     &fakeText{},
		Images:   &fakeImages{failOn: map[int]bool{}},
		Entities: entities,
	}, Config{}, zaptest.NewLogger(t).Sugar())

	out := executor.Execute(context.Background(), characterJob(t, schedule.CharacterPayload{ProfileType: "tech", Gender: "male", AutoPost: true}), nil)
	require.NoError(t, out.Err)
	require.Len(t, out.Warnings(), 1)
	assert.Contains(t, out.Warnings()[0], "publishing is disabled")
}

func TestCallTimeoutIsAStepFailure(t *testing.T) {
	p := newTestPipeline(t, Config{CallTimeout: 20 * time.Millisecond})
	p.images.block = true

	started := time.Now()
	out := p.executor.Execute(context.Background(), characterJob(t, schedule.CharacterPayload{ProfileType: "art", Gender: "female", ImageCount: 2}), nil)

	assert.Less(t, time.Since(started), 5*time.Second)
	require.Error(t, out.Err)
	warnings := out.Warnings()
	require.Len(t, warnings, 2)
	assert.Contains(t, warnings[0], "timed out")
}

func TestImageCountIsCapped(t *testing.T) {
	p := newTestPipeline(t, Config{MaxImagesPerJob: 3})

	out := p.executor.Execute(context.Background(), characterJob(t, schedule.CharacterPayload{ProfileType: "art", Gender: "female", ImageCount: 50}), nil)
	require.NoError(t, out.Err)
	assert.Equal(t, 3, out.Images)
	assert.Equal(t, 3, p.images.calls)
}

func TestUnsupportedHandler(t *testing.T) {
	p := newTestPipeline(t, Config{})
	out := p.executor.Execute(context.Background(), &async.Job{ID: "j", OwnerID: "o", HandlerName: "video.render"}, nil)
	require.Error(t, out.Err)
	assert.Contains(t, out.Err.Error(), "video.render")
}

func TestDrawAttributesAndPrompt(t *testing.T) {
	rng := util.NewSeededRand(11)
	for i := 0; i < 50; i++ {
		a := DrawAttributes(rng, "fitness", "male")
		assert.NotEmpty(t, a.Ethnicity)
		assert.NotEmpty(t, a.HairStyle)
		assert.Equal(t, "male", a.Gender)
	}

	a := Attributes{Gender: "female", Ethnicity: "latina", HairColor: "auburn", HairStyle: "messy bun", EyeColor: "green", BodyType: "slim", AgeRange: "late 20s", Style: "minimalist"}
	prompt := BuildPrompt(a, "rooftop terrace", []string{"film grain", " "}, "portrait photo")
	assert.True(t, strings.HasPrefix(prompt, "portrait photo of a slim latina woman in their late 20s"))
	assert.Contains(t, prompt, "auburn messy bun hair, green eyes")
	assert.Contains(t, prompt, "rooftop terrace, film grain, photorealistic")
	assert.NotContains(t, prompt, ",  ,")
}

func TestDrawWeightedRespectsWeights(t *testing.T) {
	rng := util.NewSeededRand(5)
	table := []weighted{{"common", 95}, {"rare", 5}}
	counts := map[string]int{}
	for i := 0; i < 2000; i++ {
		counts[drawWeighted(rng, table)]++
	}
	assert.Greater(t, counts["common"], counts["rare"]*5)
	assert.Positive(t, counts["rare"])
}
