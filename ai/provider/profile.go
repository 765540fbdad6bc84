package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/cadence/ai/openrouter"
	"github.com/teranos/cadence/errors"
	"github.com/teranos/cadence/generation"
)

const profileSystemPrompt = `You write short, believable social media personas.
Reply with a single JSON object and nothing else, using these keys:
"name" (first and last name), "bio" (one or two sentences, first person),
"occupation", "location" (city, country), "personality" (3 adjectives),
"interests" (3 to 5 short phrases).`

// ProfileWriter synthesizes character profiles with a chat model
type ProfileWriter struct {
	client ChatClient
	logger *zap.SugaredLogger
}

// NewProfileWriter creates a ProfileWriter on top of any ChatClient
func NewProfileWriter(client ChatClient, log *zap.SugaredLogger) *ProfileWriter {
	return &ProfileWriter{client: client, logger: log.Named("profile")}
}

// GenerateProfile asks the model for a persona matching profileType and gender
func (w *ProfileWriter) GenerateProfile(ctx context.Context, profileType, gender string) (*generation.CharacterProfile, error) {
	resp, err := w.client.Chat(ctx, openrouter.ChatRequest{
		SystemPrompt: profileSystemPrompt,
		UserPrompt:   fmt.Sprintf("Create a %s %s influencer persona.", gender, profileType),
		JSON:         true,
	})
	if err != nil {
		return nil, err
	}

	profile, err := ParseProfile(resp.Content)
	if err != nil {
		w.logger.Debugw("Unparseable profile reply", "content", resp.Content)
		return nil, err
	}
	w.logger.Debugw("Profile synthesized",
		"name", profile.Name,
		"profile_type", profileType,
		"total_tokens", resp.Usage.TotalTokens,
	)
	return profile, nil
}

// ParseProfile extracts a profile from a model reply, tolerating code
// fences and prose around the JSON object
func ParseProfile(content string) (*generation.CharacterProfile, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return nil, errors.New("profile reply contains no JSON object")
	}

	var profile generation.CharacterProfile
	if err := json.Unmarshal([]byte(content[start:end+1]), &profile); err != nil {
		return nil, errors.Wrap(err, "decode profile reply")
	}
	profile.Name = strings.TrimSpace(profile.Name)
	profile.Bio = strings.TrimSpace(profile.Bio)
	if profile.Name == "" {
		return nil, errors.New("profile reply has no name")
	}
	return &profile, nil
}

var _ generation.TextGenerator = (*ProfileWriter)(nil)
