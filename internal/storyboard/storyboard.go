// Package storyboard manufactures the text artifact that substitutes for a
// video when every video attempt has failed. The artifact is packaged as a
// data URI so callers handle it exactly like a video URI.
package storyboard

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	internalerrors "github.com/jimeng-relay/storyvideo/internal/errors"
	"github.com/jimeng-relay/storyvideo/internal/textgen"
)

const (
	URIPrefix    = "data:application/json;base64,"
	ArtifactType = "storyboard"

	NoteSubstituted     = "video generation failed, textual storyboard substituted"
	NoteTextUnavailable = "video generation failed, storyboard text generation also failed"
)

type Artifact struct {
	Type           string    `json:"type"`
	Prompt         string    `json:"prompt"`
	AspectRatio    string    `json:"aspectRatio"`
	StoryboardText string    `json:"storyboardText"`
	GeneratedAt    time.Time `json:"generatedAt"`
	Note           string    `json:"note"`
}

type Result struct {
	URI      string
	Artifact Artifact
	// Instruction is the text sent to the collaborator, kept for cost
	// estimation.
	Instruction string
	// TextErr is set when the text call failed; the artifact is still valid.
	TextErr error
}

type Generator struct {
	text    textgen.Generator
	modelID string
	now     func() time.Time
	logger  *slog.Logger
}

func NewGenerator(text textgen.Generator, modelID string, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		text:    text,
		modelID: modelID,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger,
	}
}

func (g *Generator) ModelID() string {
	return g.modelID
}

// Generate makes one text call and never fails: a failed call yields an
// artifact with empty text and NoteTextUnavailable.
func (g *Generator) Generate(ctx context.Context, prompt, aspectRatio string, durationSeconds int) Result {
	instruction := buildInstruction(prompt, aspectRatio, durationSeconds)
	art := Artifact{
		Type:        ArtifactType,
		Prompt:      prompt,
		AspectRatio: aspectRatio,
		GeneratedAt: g.now(),
		Note:        NoteSubstituted,
	}

	var textErr error
	if g.text == nil {
		textErr = internalerrors.New(internalerrors.ErrConfiguration, "no text generator configured", nil)
	} else {
		out, err := g.text.GenerateText(ctx, instruction, g.modelID)
		switch {
		case err != nil:
			textErr = err
		case strings.TrimSpace(out) == "":
			textErr = internalerrors.New(internalerrors.ErrUnknown, "storyboard text is empty", nil)
		default:
			art.StoryboardText = strings.TrimSpace(out)
		}
	}
	if textErr != nil {
		art.StoryboardText = ""
		art.Note = NoteTextUnavailable
		g.logger.WarnContext(ctx, "storyboard text generation failed", "error", textErr)
	}

	return Result{
		URI:         Encode(art),
		Artifact:    art,
		Instruction: instruction,
		TextErr:     textErr,
	}
}

func buildInstruction(prompt, aspectRatio string, durationSeconds int) string {
	if durationSeconds <= 0 {
		durationSeconds = 8
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Write a shot-by-shot storyboard for a %d-second video in %s aspect ratio.\n", durationSeconds, aspectRatio)
	b.WriteString("Number every shot and give it a timestamp range (for example \"Shot 1 (0:00-0:02)\").\n")
	b.WriteString("For each shot describe framing, camera movement, subject action, lighting and transition.\n")
	b.WriteString("Cover the same narrative beats as the scene below and nothing else. Plain text only.\n\n")
	b.WriteString("Scene: ")
	b.WriteString(prompt)
	return b.String()
}

func Encode(a Artifact) string {
	b, err := json.Marshal(a)
	if err != nil {
		// Artifact holds only strings and a time; Marshal cannot fail here.
		b = []byte(`{"type":"storyboard"}`)
	}
	return URIPrefix + base64.StdEncoding.EncodeToString(b)
}

func IsStoryboardURI(uri string) bool {
	return strings.HasPrefix(uri, URIPrefix)
}

func Decode(uri string) (Artifact, error) {
	if !IsStoryboardURI(uri) {
		return Artifact{}, internalerrors.New(internalerrors.ErrDecodeFailed, "not a storyboard artifact", nil)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, URIPrefix))
	if err != nil {
		return Artifact{}, internalerrors.New(internalerrors.ErrDecodeFailed, "decode storyboard base64", err)
	}
	var a Artifact
	if err := json.Unmarshal(raw, &a); err != nil {
		return Artifact{}, internalerrors.New(internalerrors.ErrDecodeFailed, "decode storyboard json", err)
	}
	if a.Type != ArtifactType {
		return Artifact{}, internalerrors.New(internalerrors.ErrDecodeFailed, fmt.Sprintf("unexpected artifact type %q", a.Type), nil)
	}
	return a, nil
}
