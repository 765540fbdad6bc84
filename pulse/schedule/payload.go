package schedule

// Handler names shared by the scheduler and the generation handlers
const (
	HandlerCharacterAutogen = "character.autogen"
	HandlerContentGenerate  = "content.generate"
)

// DefaultImageCount is used when a schedule does not set image_count
const DefaultImageCount = 1

// CharacterPayload is the job payload for HandlerCharacterAutogen
type CharacterPayload struct {
	ProfileType      string   `json:"profile_type"`
	Gender           string   `json:"gender"`
	ImageCount       int      `json:"image_count"`
	StylePreferences []string `json:"style_preferences,omitempty"`
	Width            int      `json:"width,omitempty"`
	Height           int      `json:"height,omitempty"`
	AutoPost         bool     `json:"auto_post,omitempty"`
	Platforms        []string `json:"platforms,omitempty"`
}

// ContentPayload is the job payload for HandlerContentGenerate
type ContentPayload struct {
	CharacterID      string   `json:"character_id"`
	ContentType      string   `json:"content_type,omitempty"`
	Theme            string   `json:"theme,omitempty"`
	StylePreferences []string `json:"style_preferences,omitempty"`
	ImageCount       int      `json:"image_count"`
	Width            int      `json:"width,omitempty"`
	Height           int      `json:"height,omitempty"`
	AutoPost         bool     `json:"auto_post,omitempty"`
	Platforms        []string `json:"platforms,omitempty"`
	FaceImageID      string   `json:"face_image_id,omitempty"` // overrides the character's main face
}
