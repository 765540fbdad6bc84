package entity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/cadence/errors"
	"github.com/teranos/cadence/generation"
	cadencetest "github.com/teranos/cadence/internal/testing"
	"github.com/teranos/cadence/storage/blob"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n0000")

func newTestStore(t *testing.T) (*Store, *blob.FSStore) {
	t.Helper()
	blobs, err := blob.NewFSStore(t.TempDir(), "")
	require.NoError(t, err)
	return NewStore(cadencetest.CreateTestDB(t), blobs), blobs
}

func createCharacter(t *testing.T, s *Store, ownerID string) *generation.Character {
	t.Helper()
	ch, err := s.CreateCharacter(context.Background(), generation.NewCharacter{
		OwnerID: ownerID,
		Profile: generation.CharacterProfile{Name: "Mira Okafor", Bio: "Sunsets and stairs", Interests: []string{"running"}},
		Attributes: generation.Attributes{
			ProfileType: "fitness", Gender: "female", HairColor: "black", HairStyle: "braids",
		},
	})
	require.NoError(t, err)
	return ch
}

func TestCharacterRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	ch := createCharacter(t, s, "owner-1")
	got, err := s.GetCharacter(ctx, "owner-1", ch.ID)
	require.NoError(t, err)
	assert.Equal(t, "Mira Okafor", got.Name)
	assert.Equal(t, "Sunsets and stairs", got.Description)
	assert.Equal(t, []string{"running"}, got.Profile.Interests)
	assert.Equal(t, "braids", got.Attributes.HairStyle)
	assert.Empty(t, got.MainFaceImageID)

	list, err := s.ListCharacters(ctx, "owner-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestOtherOwnersCharacterIsNotFound(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	ch := createCharacter(t, s, "owner-1")

	_, err := s.GetCharacter(ctx, "owner-2", ch.ID)
	assert.True(t, errors.IsNotFoundError(err))

	_, err = s.CreateContent(ctx, generation.NewContent{OwnerID: "owner-2", CharacterID: ch.ID})
	assert.True(t, errors.IsNotFoundError(err))

	_, err = s.AttachImage(ctx, "owner-2", ch.ID, generation.NewImage{Data: pngHeader})
	assert.True(t, errors.IsNotFoundError(err))

	assert.True(t, errors.IsNotFoundError(s.SetMainFace(ctx, "owner-2", ch.ID, "img")))
}

func TestImagesAndMainFace(t *testing.T) {
	s, blobs := newTestStore(t)
	ctx := context.Background()
	ch := createCharacter(t, s, "owner-1")

	face, err := s.MainFace(ctx, "owner-1", ch.ID)
	require.NoError(t, err)
	assert.Nil(t, face)

	img, err := s.AttachImage(ctx, "owner-1", ch.ID, generation.NewImage{
		Data: pngHeader, Prompt: "portrait", Width: 832, Height: 1216,
	})
	require.NoError(t, err)
	assert.Equal(t, ch.ID+"/"+img.ID+".png", img.BlobKey)
	assert.NotEmpty(t, img.URL)

	stored, err := blobs.Get(ctx, img.BlobKey)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, stored)

	require.NoError(t, s.SetMainFace(ctx, "owner-1", ch.ID, img.ID))
	face, err = s.MainFace(ctx, "owner-1", ch.ID)
	require.NoError(t, err)
	require.NotNil(t, face)
	assert.Equal(t, img.ID, face.ImageID)
	assert.Equal(t, pngHeader, face.Data)

	_, err = s.LoadFace(ctx, "owner-2", img.ID)
	assert.True(t, errors.IsNotFoundError(err))

	images, err := s.ListImages(ctx, "owner-1", ch.ID)
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, 832, images[0].Width)
	assert.Equal(t, "portrait", images[0].Prompt)
}

func TestContentItemsAndPosts(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	ch := createCharacter(t, s, "owner-1")

	item, err := s.CreateContent(ctx, generation.NewContent{
		OwnerID: "owner-1", CharacterID: ch.ID, ContentType: "post", Theme: "beach day", Caption: "Mira | beach day",
	})
	require.NoError(t, err)

	img, err := s.AttachImage(ctx, "owner-1", item.ID, generation.NewImage{Data: []byte("\xff\xd8\xff\xe0jpeg"), FaceSwapped: true})
	require.NoError(t, err)
	assert.Contains(t, img.BlobKey, ".jpg")

	// A content item's image can serve as a face override
	face, err := s.LoadFace(ctx, "owner-1", img.ID)
	require.NoError(t, err)
	assert.Equal(t, img.ID, face.ImageID)

	require.NoError(t, s.RecordPost(ctx, "owner-1", item.ID, "post-42"))
	got, err := s.GetContent(ctx, "owner-1", item.ID)
	require.NoError(t, err)
	assert.Equal(t, "post-42", got.PostID)
	assert.Equal(t, "beach day", got.Theme)

	assert.True(t, errors.IsNotFoundError(s.RecordPost(ctx, "owner-2", item.ID, "post-43")))
}
