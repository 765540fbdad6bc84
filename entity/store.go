// Package entity is the sqlite EntityStore for characters, content items and
// their images. Image bytes live in a blob store; rows keep the key and URL.
package entity

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/cadence/db"
	"github.com/teranos/cadence/errors"
	"github.com/teranos/cadence/generation"
	"github.com/teranos/cadence/storage/blob"
)

// Store persists generated entities. Every read and write is scoped to an owner.
type Store struct {
	db    *sql.DB
	blobs blob.Store
	now   func() time.Time
}

// NewStore creates an entity store
func NewStore(conn *sql.DB, blobs blob.Store) *Store {
	return &Store{
		db:    conn,
		blobs: blobs,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

const characterColumns = `id, owner_id, name, description, personality, attributes, main_face_image_id, created_at, updated_at`

// CreateCharacter inserts a character built from a synthesized profile
func (s *Store) CreateCharacter(ctx context.Context, c generation.NewCharacter) (*generation.Character, error) {
	now := s.now()
	ch := &generation.Character{
		ID:          uuid.NewString(),
		OwnerID:     c.OwnerID,
		Name:        c.Profile.Name,
		Description: c.Profile.Bio,
		Profile:     c.Profile,
		Attributes:  c.Attributes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	profile, err := json.Marshal(c.Profile)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal profile")
	}
	attrs, err := json.Marshal(c.Attributes)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal attributes")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO characters (`+characterColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, NULL, ?, ?)`,
		ch.ID, ch.OwnerID, ch.Name, ch.Description, string(profile), string(attrs),
		db.FormatTime(now), db.FormatTime(now),
	)
	if err != nil {
		err = errors.Wrap(err, "failed to create character")
		return nil, errors.WithDetailf(err, "Owner ID: %s", c.OwnerID)
	}
	return ch, nil
}

// GetCharacter loads one of the owner's characters
func (s *Store) GetCharacter(ctx context.Context, ownerID, id string) (*generation.Character, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+characterColumns+` FROM characters WHERE id = ? AND owner_id = ?`, id, ownerID)
	ch, err := scanCharacter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("character %s not found", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get character %s", id)
	}
	return ch, nil
}

// ListCharacters returns the owner's characters, newest first
func (s *Store) ListCharacters(ctx context.Context, ownerID string) ([]*generation.Character, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+characterColumns+` FROM characters WHERE owner_id = ? ORDER BY created_at DESC, id`, ownerID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list characters")
	}
	defer rows.Close()

	var out []*generation.Character
	for rows.Next() {
		ch, err := scanCharacter(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan character")
		}
		out = append(out, ch)
	}
	return out, errors.Wrap(rows.Err(), "error iterating characters")
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCharacter(row rowScanner) (*generation.Character, error) {
	var ch generation.Character
	var description, profile, attrs, mainFace sql.NullString
	var createdAt, updatedAt string

	if err := row.Scan(&ch.ID, &ch.OwnerID, &ch.Name, &description, &profile, &attrs, &mainFace, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	ch.Description = description.String
	ch.MainFaceImageID = mainFace.String

	if profile.Valid {
		if err := json.Unmarshal([]byte(profile.String), &ch.Profile); err != nil {
			return nil, errors.Wrapf(err, "character %s personality", ch.ID)
		}
	}
	if attrs.Valid {
		if err := json.Unmarshal([]byte(attrs.String), &ch.Attributes); err != nil {
			return nil, errors.Wrapf(err, "character %s attributes", ch.ID)
		}
	}

	var err error
	if ch.CreatedAt, err = db.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if ch.UpdatedAt, err = db.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &ch, nil
}

// CreateContent inserts a content item for one of the owner's characters
func (s *Store) CreateContent(ctx context.Context, c generation.NewContent) (*generation.ContentItem, error) {
	if _, err := s.GetCharacter(ctx, c.OwnerID, c.CharacterID); err != nil {
		return nil, err
	}

	item := &generation.ContentItem{
		ID:          uuid.NewString(),
		OwnerID:     c.OwnerID,
		CharacterID: c.CharacterID,
		ContentType: c.ContentType,
		Theme:       c.Theme,
		Caption:     c.Caption,
		CreatedAt:   s.now(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO content_items (id, owner_id, character_id, content_type, theme, caption, post_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, NULL, ?)`,
		item.ID, item.OwnerID, item.CharacterID,
		nullString(item.ContentType), nullString(item.Theme), nullString(item.Caption),
		db.FormatTime(item.CreatedAt),
	)
	if err != nil {
		err = errors.Wrap(err, "failed to create content item")
		return nil, errors.WithDetailf(err, "Character ID: %s", c.CharacterID)
	}
	return item, nil
}

// GetContent loads one of the owner's content items
func (s *Store) GetContent(ctx context.Context, ownerID, id string) (*generation.ContentItem, error) {
	var item generation.ContentItem
	var contentType, theme, caption, postID sql.NullString
	var createdAt string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, character_id, content_type, theme, caption, post_id, created_at
		FROM content_items WHERE id = ? AND owner_id = ?`, id, ownerID,
	).Scan(&item.ID, &item.OwnerID, &item.CharacterID, &contentType, &theme, &caption, &postID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("content item %s not found", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get content item %s", id)
	}

	item.ContentType = contentType.String
	item.Theme = theme.String
	item.Caption = caption.String
	item.PostID = postID.String
	if item.CreatedAt, err = db.ParseTime(createdAt); err != nil {
		return nil, err
	}
	return &item, nil
}

// RecordPost stores the remote post id of a published content item
func (s *Store) RecordPost(ctx context.Context, ownerID, contentID, postID string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE content_items SET post_id = ? WHERE id = ? AND owner_id = ?`, postID, contentID, ownerID)
	if err != nil {
		return errors.Wrapf(err, "failed to record post for %s", contentID)
	}
	return requireRow(result, "content item %s not found", contentID)
}

// SetMainFace makes imageID the character's reference face
func (s *Store) SetMainFace(ctx context.Context, ownerID, characterID, imageID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE characters SET main_face_image_id = ?, updated_at = ?
		WHERE id = ? AND owner_id = ?`,
		imageID, db.FormatTime(s.now()), characterID, ownerID,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to set main face of %s", characterID)
	}
	return requireRow(result, "character %s not found", characterID)
}

// MainFace returns the character's reference face, or nil when none is set
func (s *Store) MainFace(ctx context.Context, ownerID, characterID string) (*generation.Face, error) {
	ch, err := s.GetCharacter(ctx, ownerID, characterID)
	if err != nil {
		return nil, err
	}
	if ch.MainFaceImageID == "" {
		return nil, nil
	}
	return s.LoadFace(ctx, ownerID, ch.MainFaceImageID)
}

// LoadFace reads the bytes of one of the owner's images
func (s *Store) LoadFace(ctx context.Context, ownerID, imageID string) (*generation.Face, error) {
	var blobKey string
	err := s.db.QueryRowContext(ctx, `
		SELECT i.blob_key
		FROM entity_images i
		LEFT JOIN characters c ON c.id = i.entity_id
		LEFT JOIN content_items ci ON ci.id = i.entity_id
		WHERE i.id = ? AND (c.owner_id = ? OR ci.owner_id = ?)`,
		imageID, ownerID, ownerID,
	).Scan(&blobKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("image %s not found", imageID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to look up image %s", imageID)
	}

	data, err := s.blobs.Get(ctx, blobKey)
	if err != nil {
		return nil, err
	}
	return &generation.Face{ImageID: imageID, Data: data}, nil
}

// AttachImage uploads the image and records it against the entity
func (s *Store) AttachImage(ctx context.Context, ownerID, entityID string, img generation.NewImage) (*generation.Image, error) {
	if err := s.checkOwner(ctx, ownerID, entityID); err != nil {
		return nil, err
	}

	contentType := http.DetectContentType(img.Data)
	stored := &generation.Image{
		ID:          uuid.NewString(),
		EntityID:    entityID,
		Prompt:      img.Prompt,
		Width:       img.Width,
		Height:      img.Height,
		FaceSwapped: img.FaceSwapped,
		CreatedAt:   s.now(),
	}
	stored.BlobKey = entityID + "/" + stored.ID + extension(contentType)

	url, err := s.blobs.Put(ctx, stored.BlobKey, img.Data, contentType)
	if err != nil {
		return nil, errors.Wrap(err, "failed to upload image")
	}
	stored.URL = url

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entity_images (id, entity_id, blob_key, url, prompt, width, height, face_swapped, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stored.ID, stored.EntityID, stored.BlobKey, nullString(stored.URL), nullString(stored.Prompt),
		stored.Width, stored.Height, stored.FaceSwapped, db.FormatTime(stored.CreatedAt),
	)
	if err != nil {
		// Orphaned blobs are harmless but cost storage
		_ = s.blobs.Delete(context.WithoutCancel(ctx), stored.BlobKey)
		return nil, errors.Wrapf(err, "failed to record image for %s", entityID)
	}
	return stored, nil
}

// ListImages returns the images of an entity in creation order
func (s *Store) ListImages(ctx context.Context, ownerID, entityID string) ([]*generation.Image, error) {
	if err := s.checkOwner(ctx, ownerID, entityID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entity_id, blob_key, url, prompt, width, height, face_swapped, created_at
		FROM entity_images WHERE entity_id = ? ORDER BY created_at, id`, entityID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list images")
	}
	defer rows.Close()

	var out []*generation.Image
	for rows.Next() {
		var img generation.Image
		var url, prompt sql.NullString
		var width, height sql.NullInt64
		var createdAt string
		if err := rows.Scan(&img.ID, &img.EntityID, &img.BlobKey, &url, &prompt, &width, &height, &img.FaceSwapped, &createdAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan image")
		}
		img.URL = url.String
		img.Prompt = prompt.String
		img.Width = int(width.Int64)
		img.Height = int(height.Int64)
		if img.CreatedAt, err = db.ParseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, &img)
	}
	return out, errors.Wrap(rows.Err(), "error iterating images")
}

// checkOwner reports not found unless entityID is a character or content item of ownerID
func (s *Store) checkOwner(ctx context.Context, ownerID, entityID string) error {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM characters WHERE id = ? AND owner_id = ?)
		     + (SELECT COUNT(*) FROM content_items WHERE id = ? AND owner_id = ?)`,
		entityID, ownerID, entityID, ownerID,
	).Scan(&n)
	if err != nil {
		return errors.Wrapf(err, "failed to check owner of %s", entityID)
	}
	if n == 0 {
		return errors.NewNotFoundError("entity %s not found", entityID)
	}
	return nil
}

func requireRow(result sql.Result, format string, args ...interface{}) error {
	n, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read update result")
	}
	if n == 0 {
		return errors.NewNotFoundError(format, args...)
	}
	return nil
}

func extension(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".bin"
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ generation.EntityStore = (*Store)(nil)
