package generation

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

var scenesByProfile = map[string][]string{
	"lifestyle": {"sunlit apartment living room", "rooftop terrace at golden hour", "cozy coffee shop"},
	"fitness":   {"modern gym with natural light", "outdoor running track", "yoga studio"},
	"fashion":   {"city street with boutique storefronts", "minimal photo studio", "hotel lobby"},
	"travel":    {"old town square in Europe", "tropical beach at sunset", "mountain viewpoint"},
	"food":      {"rustic kitchen", "busy night market", "brunch table by a window"},
	"gaming":    {"neon-lit gaming setup", "arcade", "streaming room with rgb lights"},
	"art":       {"paint-splattered studio", "gallery opening", "street mural"},
	"tech":      {"co-working space", "tech conference hall", "home office with monitors"},
}

var defaultScenes = []string{"city street", "park on a sunny day", "cafe terrace"}

var shotTypes = []string{"candid photo", "portrait photo", "mirror selfie", "medium shot"}

// pickScene chooses a backdrop for one image. A content theme wins over the
// profile's scene list.
func pickScene(rng *rand.Rand, profileType, theme string) string {
	if theme != "" {
		return theme
	}
	scenes, ok := scenesByProfile[profileType]
	if !ok {
		scenes = defaultScenes
	}
	return scenes[rng.IntN(len(scenes))]
}

// BuildPrompt renders the image prompt for one iteration
func BuildPrompt(a Attributes, scene string, stylePreferences []string, shot string) string {
	subject := "woman"
	if a.Gender == "male" {
		subject = "man"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s of a %s %s %s in their %s", shot, a.BodyType, a.Ethnicity, subject, a.AgeRange)
	fmt.Fprintf(&b, ", %s %s hair, %s eyes", a.HairColor, a.HairStyle, a.EyeColor)
	fmt.Fprintf(&b, ", wearing %s outfit", a.Style)
	fmt.Fprintf(&b, ", %s", scene)
	for _, pref := range stylePreferences {
		if pref = strings.TrimSpace(pref); pref != "" {
			b.WriteString(", ")
			b.WriteString(pref)
		}
	}
	b.WriteString(", photorealistic, natural lighting, 35mm, high detail")
	return b.String()
}

// caption is the default text for a content item
func caption(name, theme string) string {
	if theme == "" {
		return name
	}
	return fmt.Sprintf("%s | %s", name, theme)
}
