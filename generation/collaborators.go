// Package generation runs one queued job through the character or content
// pipeline: profile synthesis, persistence, an image loop with optional face
// swap, and auto-posting. External services are reached only through the
// interfaces in this file.
package generation

import (
	"context"
	"time"
)

// CharacterProfile is the text part of a new character
type CharacterProfile struct {
	Name        string   `json:"name"`
	Bio         string   `json:"bio"`
	Occupation  string   `json:"occupation,omitempty"`
	Location    string   `json:"location,omitempty"`
	Personality []string `json:"personality,omitempty"`
	Interests   []string `json:"interests,omitempty"`
}

// Character is a persisted character owned by one user
type Character struct {
	ID              string           `json:"id"`
	OwnerID         string           `json:"owner_id"`
	Name            string           `json:"name"`
	Description     string           `json:"description,omitempty"`
	Profile         CharacterProfile `json:"profile"`
	Attributes      Attributes       `json:"attributes"`
	MainFaceImageID string           `json:"main_face_image_id,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// NewCharacter is what CreateCharacter persists
type NewCharacter struct {
	OwnerID    string
	Profile    CharacterProfile
	Attributes Attributes
}

// ContentItem is one generated post-to-be for a character
type ContentItem struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	CharacterID string    `json:"character_id"`
	ContentType string    `json:"content_type,omitempty"`
	Theme       string    `json:"theme,omitempty"`
	Caption     string    `json:"caption,omitempty"`
	PostID      string    `json:"post_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewContent is what CreateContent persists
type NewContent struct {
	OwnerID     string
	CharacterID string
	ContentType string
	Theme       string
	Caption     string
}

// Image is a stored image attached to a character or content item
type Image struct {
	ID          string    `json:"id"`
	EntityID    string    `json:"entity_id"`
	BlobKey     string    `json:"blob_key"`
	URL         string    `json:"url,omitempty"`
	Prompt      string    `json:"prompt,omitempty"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	FaceSwapped bool      `json:"face_swapped"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewImage is what AttachImage persists
type NewImage struct {
	Data        []byte
	Prompt      string
	Width       int
	Height      int
	FaceSwapped bool
}

// Face is a reference face used for swapping
type Face struct {
	ImageID string
	Data    []byte
}

// TextGenerator synthesizes character profiles
type TextGenerator interface {
	GenerateProfile(ctx context.Context, profileType, gender string) (*CharacterProfile, error)
}

// ImageGenerator renders one image from a prompt
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string, width, height int) ([]byte, error)
}

// FaceSwapper puts sourceFace onto target
type FaceSwapper interface {
	Swap(ctx context.Context, sourceFace, target []byte) ([]byte, error)
}

// Publisher posts a finished artifact and returns the remote post id
type Publisher interface {
	Post(ctx context.Context, artifactRef string, platforms []string) (string, error)
}

// EntityStore persists characters, content and images. Every call is scoped
// to an owner: another owner's character is reported as not found.
type EntityStore interface {
	CreateCharacter(ctx context.Context, c NewCharacter) (*Character, error)
	CreateContent(ctx context.Context, c NewContent) (*ContentItem, error)
	GetCharacter(ctx context.Context, ownerID, id string) (*Character, error)
	MainFace(ctx context.Context, ownerID, characterID string) (*Face, error) // nil when unset
	LoadFace(ctx context.Context, ownerID, imageID string) (*Face, error)
	AttachImage(ctx context.Context, ownerID, entityID string, img NewImage) (*Image, error)
	SetMainFace(ctx context.Context, ownerID, characterID, imageID string) error
	RecordPost(ctx context.Context, ownerID, contentID, postID string) error
}

// ProgressReporter receives per-job progress. UpdateProgress doubles as the
// job lease heartbeat.
type ProgressReporter interface {
	UpdateProgress(ctx context.Context, count int) error
	EmitError(step string, err error)
}

type nopProgress struct{}

func (nopProgress) UpdateProgress(context.Context, int) error { return nil }
func (nopProgress) EmitError(string, error)                   {}
