package generation

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/cadence/am"
	"github.com/teranos/cadence/errors"
	"github.com/teranos/cadence/internal/util"
	"github.com/teranos/cadence/logger"
	"github.com/teranos/cadence/pulse/async"
	"github.com/teranos/cadence/pulse/schedule"
)

// DefaultCallTimeout bounds every collaborator call
const DefaultCallTimeout = 115 * time.Second

// Config holds pipeline limits and image defaults
type Config struct {
	CallTimeout     time.Duration
	ImageWidth      int
	ImageHeight     int
	MaxImagesPerJob int
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		CallTimeout:     DefaultCallTimeout,
		ImageWidth:      832,
		ImageHeight:     1216,
		MaxImagesPerJob: 8,
	}
}

// ConfigFrom reads the [generation] section
func ConfigFrom(cfg *am.Config) Config {
	return Config{
		CallTimeout:     cfg.Generation.CallTimeout(),
		ImageWidth:      cfg.Generation.ImageWidth,
		ImageHeight:     cfg.Generation.ImageHeight,
		MaxImagesPerJob: cfg.Generation.MaxImagesPerJob,
	}
}

// Collaborators are the external services the pipeline calls.
// Faces and Publisher may be nil.
type Collaborators struct {
	Text      TextGenerator
	Images    ImageGenerator
	Faces     FaceSwapper
	Publisher Publisher
	Entities  EntityStore
}

// Executor runs generation jobs. It holds no per-job state and is safe for
// concurrent use by several workers.
type Executor struct {
	collab  Collaborators
	config  Config
	newRand func() *rand.Rand
	logger  *zap.SugaredLogger
}

// ExecutorOption configures an Executor
type ExecutorOption func(*Executor)

// WithRandSource replaces the per-execution random source
func WithRandSource(newRand func() *rand.Rand) ExecutorOption {
	return func(e *Executor) {
		e.newRand = newRand
	}
}

// NewExecutor creates an executor. Zero config fields take DefaultConfig values.
func NewExecutor(collab Collaborators, cfg Config, log *zap.SugaredLogger, opts ...ExecutorOption) *Executor {
	defaults := DefaultConfig()
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaults.CallTimeout
	}
	if cfg.ImageWidth <= 0 {
		cfg.ImageWidth = defaults.ImageWidth
	}
	if cfg.ImageHeight <= 0 {
		cfg.ImageHeight = defaults.ImageHeight
	}
	if cfg.MaxImagesPerJob <= 0 {
		cfg.MaxImagesPerJob = defaults.MaxImagesPerJob
	}

	e := &Executor{
		collab:  collab,
		config:  cfg,
		newRand: util.NewRand,
		logger:  logger.AddGenSymbol(log),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// run is the per-job state threaded through the steps
type run struct {
	job      *async.Job
	progress ProgressReporter
	rng      *rand.Rand
	log      *zap.SugaredLogger
	out      *Outcome

	ownerID     string
	characterID string // whose main face is used and set
	entityID    string // what images attach to
	attrs       Attributes
	profileType string
	theme       string
	styles      []string
	imageCount  int
	width       int
	height      int
	face        *Face
	hasMainFace bool // the character already had a main face before this job
}

// Execute runs the job's pipeline. It never returns nil; a failed Outcome
// carries the fatal error in Err.
func (e *Executor) Execute(ctx context.Context, job *async.Job, progress ProgressReporter) *Outcome {
	if progress == nil {
		progress = nopProgress{}
	}
	r := &run{
		job:      job,
		progress: progress,
		rng:      e.newRand(),
		log:      e.logger.With(logger.FieldJobID, job.ID, logger.FieldOwnerID, job.OwnerID),
		out:      &Outcome{},
		ownerID:  job.OwnerID,
	}

	switch job.HandlerName {
	case schedule.HandlerCharacterAutogen:
		var p schedule.CharacterPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return r.out.abort(StepPersistence, errors.Wrap(err, "invalid character payload"))
		}
		return e.runCharacter(ctx, r, p)
	case schedule.HandlerContentGenerate:
		var p schedule.ContentPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return r.out.abort(StepPersistence, errors.Wrap(err, "invalid content payload"))
		}
		return e.runContent(ctx, r, p)
	default:
		return r.out.abort(StepPersistence, errors.Newf("unsupported handler %q", job.HandlerName))
	}
}

func (e *Executor) runCharacter(ctx context.Context, r *run, p schedule.CharacterPayload) *Outcome {
	r.profileType = p.ProfileType
	r.styles = p.StylePreferences
	r.attrs = DrawAttributes(r.rng, p.ProfileType, p.Gender)

	var profile *CharacterProfile
	err := e.call(ctx, func(ctx context.Context) error {
		var err error
		profile, err = e.collab.Text.GenerateProfile(ctx, p.ProfileType, p.Gender)
		return err
	})
	if err == nil && (profile == nil || profile.Name == "") {
		err = errors.New("text generator returned an empty profile")
	}
	if err != nil {
		r.progress.EmitError(string(StepProfileSynthesis), err)
		return r.out.abort(StepProfileSynthesis, errors.Wrap(err, "profile synthesis failed"))
	}
	r.out.ok(StepProfileSynthesis, 0, profile.Name)

	var character *Character
	err = e.call(ctx, func(ctx context.Context) error {
		var err error
		character, err = e.collab.Entities.CreateCharacter(ctx, NewCharacter{
			OwnerID:    r.ownerID,
			Profile:    *profile,
			Attributes: r.attrs,
		})
		return err
	})
	if err != nil {
		r.progress.EmitError(string(StepPersistence), err)
		return r.out.abort(StepPersistence, errors.Wrap(err, "failed to save character"))
	}
	r.out.ok(StepPersistence, 0, character.ID)
	r.out.ResultRef = character.ID
	r.characterID = character.ID
	r.entityID = character.ID
	r.log = r.log.With(logger.FieldEntityID, character.ID)

	e.prepareImages(r, p.ImageCount, p.Width, p.Height)
	if out := e.imageLoop(ctx, r); out.Err != nil {
		return out
	}
	return e.finish(ctx, r, p.AutoPost, p.Platforms)
}

func (e *Executor) runContent(ctx context.Context, r *run, p schedule.ContentPayload) *Outcome {
	var character *Character
	err := e.call(ctx, func(ctx context.Context) error {
		var err error
		character, err = e.collab.Entities.GetCharacter(ctx, r.ownerID, p.CharacterID)
		return err
	})
	if err != nil {
		r.progress.EmitError(string(StepPersistence), err)
		return r.out.abort(StepPersistence, errors.Wrapf(err, "failed to load character %s", p.CharacterID))
	}

	r.attrs = character.Attributes
	r.profileType = character.Attributes.ProfileType
	r.theme = p.Theme
	r.styles = p.StylePreferences
	r.characterID = character.ID

	var item *ContentItem
	err = e.call(ctx, func(ctx context.Context) error {
		var err error
		item, err = e.collab.Entities.CreateContent(ctx, NewContent{
			OwnerID:     r.ownerID,
			CharacterID: character.ID,
			ContentType: p.ContentType,
			Theme:       p.Theme,
			Caption:     caption(character.Name, p.Theme),
		})
		return err
	})
	if err != nil {
		r.progress.EmitError(string(StepPersistence), err)
		return r.out.abort(StepPersistence, errors.Wrap(err, "failed to save content item"))
	}
	r.out.ok(StepPersistence, 0, item.ID)
	r.out.ResultRef = item.ID
	r.entityID = item.ID
	r.log = r.log.With(logger.FieldEntityID, item.ID)

	r.hasMainFace = p.FaceImageID != "" || character.MainFaceImageID != ""
	r.face = e.referenceFace(ctx, r, p.FaceImageID, character)

	e.prepareImages(r, p.ImageCount, p.Width, p.Height)
	if out := e.imageLoop(ctx, r); out.Err != nil {
		return out
	}
	return e.finish(ctx, r, p.AutoPost, p.Platforms)
}

// referenceFace resolves the job's face, else the character's main face.
// A lookup failure is recorded and the loop starts without a face; the
// established main face is still never replaced.
func (e *Executor) referenceFace(ctx context.Context, r *run, faceImageID string, character *Character) *Face {
	var face *Face
	err := e.call(ctx, func(ctx context.Context) error {
		var err error
		if faceImageID != "" {
			face, err = e.collab.Entities.LoadFace(ctx, r.ownerID, faceImageID)
			return err
		}
		if character.MainFaceImageID == "" {
			return nil
		}
		face, err = e.collab.Entities.MainFace(ctx, r.ownerID, character.ID)
		return err
	})
	if err != nil {
		r.progress.EmitError(string(StepFaceSwap), err)
		r.out.fail(StepFaceSwap, 0, errors.Wrap(err, "failed to load reference face"))
		return nil
	}
	return face
}

func (e *Executor) prepareImages(r *run, count, width, height int) {
	if count <= 0 {
		count = schedule.DefaultImageCount
	}
	r.imageCount = min(count, e.config.MaxImagesPerJob)
	r.width, r.height = width, height
	if r.width <= 0 {
		r.width = e.config.ImageWidth
	}
	if r.height <= 0 {
		r.height = e.config.ImageHeight
	}
}

// imageLoop generates imageCount images one after another. A failed
// iteration is recorded and skipped; zero successes fail the job.
func (e *Executor) imageLoop(ctx context.Context, r *run) *Outcome {
	for i := 1; i <= r.imageCount; i++ {
		if err := ctx.Err(); err != nil {
			r.out.fail(StepImageGeneration, i, err)
			break
		}
		if e.generateOne(ctx, r, i) {
			r.out.Images++
			_ = r.progress.UpdateProgress(ctx, r.out.Images)
		}
	}

	if r.out.Images == 0 {
		return r.out.abort(StepImageGeneration, errors.Newf("no images generated (0 of %d)", r.imageCount))
	}
	r.log.Infow("Images generated", logger.FieldCount, r.out.Images, "requested", r.imageCount)
	return r.out
}

// generateOne runs a single iteration and reports whether an image was stored
func (e *Executor) generateOne(ctx context.Context, r *run, i int) bool {
	log := r.log.With(logger.FieldIteration, i)

	shot := shotTypes[r.rng.IntN(len(shotTypes))]
	prompt := BuildPrompt(r.attrs, pickScene(r.rng, r.profileType, r.theme), r.styles, shot)

	var data []byte
	err := e.call(ctx, func(ctx context.Context) error {
		var err error
		data, err = e.collab.Images.Generate(ctx, prompt, r.width, r.height)
		return err
	})
	if err == nil && len(data) == 0 {
		err = errors.New("image generator returned no data")
	}
	if err != nil {
		log.Warnw("Image generation failed", logger.FieldError, err)
		r.progress.EmitError(string(StepImageGeneration), err)
		r.out.fail(StepImageGeneration, i, err)
		return false
	}

	swapped := false
	if r.face != nil && e.collab.Faces != nil {
		var out []byte
		err := e.call(ctx, func(ctx context.Context) error {
			var err error
			out, err = e.collab.Faces.Swap(ctx, r.face.Data, data)
			return err
		})
		if err == nil && len(out) == 0 {
			err = errors.New("face swapper returned no data")
		}
		if err != nil {
			log.Warnw("Face swap failed, keeping original image", logger.FieldError, err)
			r.progress.EmitError(string(StepFaceSwap), err)
			r.out.fail(StepFaceSwap, i, err)
		} else {
			data = out
			swapped = true
		}
	}

	var img *Image
	err = e.call(ctx, func(ctx context.Context) error {
		var err error
		img, err = e.collab.Entities.AttachImage(ctx, r.ownerID, r.entityID, NewImage{
			Data:        data,
			Prompt:      prompt,
			Width:       r.width,
			Height:      r.height,
			FaceSwapped: swapped,
		})
		return err
	})
	if err != nil {
		log.Warnw("Failed to store image", logger.FieldError, err)
		r.progress.EmitError(string(StepImageGeneration), err)
		r.out.fail(StepImageGeneration, i, errors.Wrap(err, "failed to store image"))
		return false
	}
	r.out.ok(StepImageGeneration, i, img.ID)

	// The first image becomes the reference face for the rest of the loop,
	// and the main face only when the character had none
	if r.face == nil {
		r.face = &Face{ImageID: img.ID, Data: data}
		if r.hasMainFace {
			return true
		}
		err := e.call(ctx, func(ctx context.Context) error {
			return e.collab.Entities.SetMainFace(ctx, r.ownerID, r.characterID, img.ID)
		})
		if err != nil {
			log.Warnw("Failed to set main face", logger.FieldError, err)
			r.progress.EmitError(string(StepPersistence), err)
			r.out.fail(StepPersistence, i, errors.Wrap(err, "failed to set main face"))
		}
	}
	return true
}

// finish runs the optional auto-post and completes the outcome
func (e *Executor) finish(ctx context.Context, r *run, autoPost bool, platforms []string) *Outcome {
	r.out.Status = async.JobStatusCompleted
	if !autoPost {
		return r.out
	}
	if e.collab.Publisher == nil {
		r.out.fail(StepAutoPost, 0, errors.New("auto-post requested but publishing is disabled"))
		return r.out
	}

	var postID string
	err := e.call(ctx, func(ctx context.Context) error {
		var err error
		postID, err = e.collab.Publisher.Post(ctx, r.out.ResultRef, platforms)
		return err
	})
	if err != nil {
		r.log.Warnw("Auto-post failed", logger.FieldError, err)
		r.progress.EmitError(string(StepAutoPost), err)
		r.out.fail(StepAutoPost, 0, err)
		return r.out
	}
	r.out.PostID = postID
	r.out.ok(StepAutoPost, 0, postID)

	if r.entityID != r.characterID {
		err := e.call(ctx, func(ctx context.Context) error {
			return e.collab.Entities.RecordPost(ctx, r.ownerID, r.entityID, postID)
		})
		if err != nil {
			r.log.Warnw("Failed to record post id", logger.FieldError, err, "post_id", postID)
		}
	}
	return r.out
}

// call runs fn under the per-call timeout. Hitting the deadline is reported
// as ErrTimeout so it classifies as a timeout, not a cancellation.
func (e *Executor) call(ctx context.Context, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, e.config.CallTimeout)
	defer cancel()

	err := fn(callCtx)
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return errors.Wrapf(errors.ErrTimeout, "call exceeded %s: %v", e.config.CallTimeout, err)
	}
	return err
}
