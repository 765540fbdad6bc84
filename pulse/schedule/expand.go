package schedule

import (
	"encoding/json"
	"math/rand/v2"

	"github.com/teranos/cadence/errors"
	"github.com/teranos/cadence/pulse/async"
)

// Pools drawn from when a schedule does not narrow them
var (
	DefaultProfileTypes = []string{"lifestyle", "fitness", "fashion", "travel", "food", "gaming", "art", "tech"}
	DefaultGenders      = []string{"female", "male"}
	DefaultThemes       = []string{"morning routine", "city walk", "beach day", "cafe", "workout", "night out", "at home"}
)

// Expand turns one due period into JobsPerRun job specs. Each character job
// gets a freshly drawn profile type and gender; each content job a fresh theme.
func Expand(sched *Schedule, rng *rand.Rand) ([]async.JobSpec, error) {
	n := sched.JobsPerRun()
	specs := make([]async.JobSpec, 0, n)

	imageCount := sched.Params.ImageCount
	if imageCount <= 0 {
		imageCount = DefaultImageCount
	}

	for i := 0; i < n; i++ {
		var (
			handler string
			payload interface{}
		)
		switch sched.Kind {
		case KindCharacterAutogen:
			handler = HandlerCharacterAutogen
			payload = CharacterPayload{
				ProfileType:      pick(rng, sched.Params.ProfileTypes, DefaultProfileTypes),
				Gender:           pick(rng, sched.Params.Genders, DefaultGenders),
				ImageCount:       imageCount,
				StylePreferences: sched.Params.StylePreferences,
				Width:            sched.Params.Width,
				Height:           sched.Params.Height,
				AutoPost:         sched.Params.AutoPost,
				Platforms:        sched.Params.Platforms,
			}
		case KindContent:
			handler = HandlerContentGenerate
			payload = ContentPayload{
				CharacterID:      sched.TargetID,
				ContentType:      sched.Params.ContentType,
				Theme:            pick(rng, sched.Params.Themes, DefaultThemes),
				StylePreferences: sched.Params.StylePreferences,
				ImageCount:       imageCount,
				Width:            sched.Params.Width,
				Height:           sched.Params.Height,
				AutoPost:         sched.Params.AutoPost,
				Platforms:        sched.Params.Platforms,
			}
		default:
			return nil, errors.Newf("schedule %s has unknown kind %q", sched.ID, sched.Kind)
		}

		data, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to encode payload for schedule %s", sched.ID)
		}
		specs = append(specs, async.JobSpec{
			ScheduleID:    sched.ID,
			OwnerID:       sched.OwnerID,
			HandlerName:   handler,
			Payload:       data,
			ProgressTotal: imageCount,
		})
	}
	return specs, nil
}

func pick(rng *rand.Rand, choices, fallback []string) string {
	if len(choices) == 0 {
		choices = fallback
	}
	return choices[rng.IntN(len(choices))]
}
