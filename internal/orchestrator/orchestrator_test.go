package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jimeng-relay/storyvideo/internal/asset"
	internalerrors "github.com/jimeng-relay/storyvideo/internal/errors"
	"github.com/jimeng-relay/storyvideo/internal/models"
	"github.com/jimeng-relay/storyvideo/internal/registry"
	"github.com/jimeng-relay/storyvideo/internal/storyboard"
	"github.com/jimeng-relay/storyvideo/internal/usage"
	"github.com/jimeng-relay/storyvideo/internal/video"
	"github.com/stretchr/testify/require"
)

var pngAsset = asset.EncodeDataURI("image/png", []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'})

func TestGenerateVideo_SucceedsAfterTwoPolls(t *testing.T) {
	t.Parallel()

	var pollCalls atomic.Int32
	backend := &fakeBackend{
		submitFn: func(context.Context, video.Request) (*video.OperationHandle, error) {
			return &video.OperationHandle{Name: "operations/cat"}, nil
		},
		pollFn: func(_ context.Context, h *video.OperationHandle) (*video.OperationHandle, error) {
			if pollCalls.Add(1) == 1 {
				return &video.OperationHandle{Name: h.Name}, nil
			}
			return doneHandle(h.Name, "https://storage.example.com/cat.mp4"), nil
		},
	}
	obs := &recordingObserver{}
	o, acc := newTestOrchestrator(t, testOptions{backend: backend, observers: []Observer{obs}})

	res, err := o.GenerateVideo(context.Background(), GenerationRequest{
		RawPrompt:    "a cat walking in rain",
		AspectRatio:  "16:9",
		ModelVersion: "veo-3.0-generate-001",
	})
	require.NoError(t, err)
	require.Equal(t, "https://storage.example.com/cat.mp4", res.ArtifactURI)
	require.Equal(t, ArtifactVideo, res.Kind)
	require.Equal(t, 1, res.Attempts)
	require.True(t, strings.HasPrefix(res.JobID, "job_"))
	require.Equal(t, 2, backend.Polls())

	submits := backend.Submits()
	require.Len(t, submits, 1)
	require.Equal(t, "Create a 8-second video with 16:9 aspect ratio: a cat walking in rain", submits[0].Prompt)
	require.Equal(t, 8, submits[0].DurationSeconds)
	require.Equal(t, "1080p", submits[0].Resolution)
	require.Equal(t, video.PersonGenerationAllowAdult, submits[0].PersonGeneration)
	require.Nil(t, submits[0].GenerateAudio)
	require.Nil(t, submits[0].Image)

	records := acc.Records()
	require.Len(t, records, 1)
	require.Equal(t, models.OutcomeVideo, records[0].Outcome)
	require.Equal(t, "google", records[0].Provider)
	require.Equal(t, res.JobID, records[0].JobID)
	require.InDelta(t, 3.2, records[0].EstimatedCost, 1e-9)

	require.Len(t, obs.attempts, 1)
	require.Equal(t, 2, obs.attempts[0].PollCount)
	require.Equal(t, "operations/cat", obs.attempts[0].OperationName)
	require.Len(t, obs.outcomes, 1)
	require.Equal(t, res, obs.outcomes[0].Result)
}

func TestGenerateVideo_AssetErrorRetriesWithoutAssets(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	backend := &fakeBackend{
		submitFn: func(context.Context, video.Request) (*video.OperationHandle, error) {
			if calls.Add(1) == 1 {
				return nil, errors.New("Unable to process input image")
			}
			return doneHandle("operations/retry", "https://storage.example.com/retry.mp4"), nil
		},
	}
	obs := &recordingObserver{}
	o, acc := newTestOrchestrator(t, testOptions{backend: backend, observers: []Observer{obs}})

	res, err := o.GenerateVideo(context.Background(), GenerationRequest{
		RawPrompt:       "a cat walking in rain",
		AspectRatio:     "16:9",
		ReferenceAssets: []string{pngAsset},
	})
	require.NoError(t, err)
	require.Equal(t, "https://storage.example.com/retry.mp4", res.ArtifactURI)
	require.Equal(t, 2, res.Attempts)

	submits := backend.Submits()
	require.Len(t, submits, 2)
	require.NotNil(t, submits[0].Image)
	require.Equal(t, "image/png", submits[0].Image.MIMEType)
	require.Nil(t, submits[1].Image)
	require.Equal(t, submits[0].Model, submits[1].Model, "asset retry keeps the model")

	require.Len(t, obs.attempts, 2)
	require.Equal(t, KindAsset, obs.attempts[0].Kind)
	require.Equal(t, DecisionRetryWithoutAssets, obs.attempts[0].Decision)
	require.True(t, obs.attempts[0].HasAssets)
	require.False(t, obs.attempts[1].HasAssets)

	records := acc.Records()
	require.Len(t, records, 1)
	require.Equal(t, models.OutcomeVideo, records[0].Outcome)
}

func TestGenerateVideo_AllModelsQuotaExceededFallsBackToStoryboard(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{
		submitFn: func(context.Context, video.Request) (*video.OperationHandle, error) {
			return nil, errors.New("quota exceeded for project")
		},
	}
	text := &fakeText{storyboardText: "Shot 1 (0:00-0:04): rain on a window.\nShot 2 (0:04-0:08): the cat steps out."}
	o, acc := newTestOrchestrator(t, testOptions{backend: backend, text: text})

	res, err := o.GenerateVideo(context.Background(), GenerationRequest{RawPrompt: "a cat walking in rain", AspectRatio: "16:9"})
	require.NoError(t, err)
	require.Equal(t, ArtifactStoryboard, res.Kind)
	require.True(t, storyboard.IsStoryboardURI(res.ArtifactURI))
	require.Equal(t, 3, res.Attempts)

	art, err := storyboard.Decode(res.ArtifactURI)
	require.NoError(t, err)
	require.Equal(t, storyboard.NoteSubstituted, art.Note)
	require.Equal(t, "a cat walking in rain", art.Prompt)
	require.Contains(t, art.StoryboardText, "Shot 1")

	var versions []string
	for _, s := range backend.Submits() {
		versions = append(versions, s.Model)
	}
	require.Equal(t, []string{"veo-3.0-generate-001", "veo-3.0-fast-generate-001", "veo-2.0-generate-001"}, versions)
	require.EqualValues(t, 1, text.storyboards.Load())

	records := acc.Records()
	require.Len(t, records, 1)
	require.Equal(t, models.OutcomeStoryboard, records[0].Outcome)
	require.Equal(t, "gemini", records[0].Provider)
	require.Equal(t, "gemini-2.5-flash", records[0].Model)
	require.Positive(t, records[0].EstimatedTokens)
	require.InDelta(t, usage.EstimateTextCost(records[0].EstimatedTokens), records[0].EstimatedCost, 1e-12)
}

func TestGenerateVideo_CancelledBeforeFirstTick(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend := &fakeBackend{
		submitFn: func(context.Context, video.Request) (*video.OperationHandle, error) {
			cancel()
			return &video.OperationHandle{Name: "operations/abandoned"}, nil
		},
	}
	text := &fakeText{storyboardText: "unused"}
	o, acc := newTestOrchestrator(t, testOptions{backend: backend, text: text, pollInterval: time.Hour})

	_, err := o.GenerateVideo(ctx, GenerationRequest{RawPrompt: "a cat walking in rain", AspectRatio: "16:9"})
	require.Error(t, err)
	require.True(t, internalerrors.IsCancelled(err))
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 0, backend.Polls())
	require.Zero(t, text.storyboards.Load())
	require.Empty(t, acc.Records())
}

func TestGenerateVideo_CancelledWhilePolling(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend := &fakeBackend{
		submitFn: func(context.Context, video.Request) (*video.OperationHandle, error) {
			return &video.OperationHandle{Name: "operations/slow"}, nil
		},
		pollFn: func(_ context.Context, h *video.OperationHandle) (*video.OperationHandle, error) {
			cancel()
			return &video.OperationHandle{Name: h.Name}, nil
		},
	}
	o, _ := newTestOrchestrator(t, testOptions{backend: backend})

	_, err := o.GenerateVideo(ctx, GenerationRequest{RawPrompt: "p", AspectRatio: "16:9"})
	require.True(t, internalerrors.IsCancelled(err))
	require.Equal(t, 1, backend.Polls())
	require.Len(t, backend.Submits(), 1)
}

func TestGenerateVideo_ConfigurationErrorsPropagate(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{submitFn: func(context.Context, video.Request) (*video.OperationHandle, error) {
		t.Fatal("submit must not be called")
		return nil, nil
	}}
	o, acc := newTestOrchestrator(t, testOptions{backend: backend})

	_, err := o.GenerateVideo(context.Background(), GenerationRequest{RawPrompt: "p", AspectRatio: "16:9", ModelVersion: "veo-9"})
	require.ErrorIs(t, err, registry.ErrUnknownModel)
	require.Equal(t, internalerrors.ErrConfiguration, internalerrors.GetCode(err))

	_, err = o.GenerateVideo(context.Background(), GenerationRequest{RawPrompt: "p", AspectRatio: "16:9", ModelVersion: "jimeng-v30"})
	require.True(t, internalerrors.IsConfiguration(err))
	require.Empty(t, acc.Records())
}

func TestGenerateVideo_PolicyErrorSkipsLadder(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{submitFn: func(context.Context, video.Request) (*video.OperationHandle, error) {
		return nil, errors.New("request blocked by safety filters")
	}}
	o, _ := newTestOrchestrator(t, testOptions{backend: backend, text: &fakeText{storyboardText: "Shot 1"}})

	res, err := o.GenerateVideo(context.Background(), GenerationRequest{RawPrompt: "p", AspectRatio: "16:9"})
	require.NoError(t, err)
	require.Equal(t, ArtifactStoryboard, res.Kind)
	require.Len(t, backend.Submits(), 1)
}

func TestGenerateVideo_OversizedAssetProceedsWithoutIt(t *testing.T) {
	t.Parallel()

	huge := "data:image/png;base64," + strings.Repeat("A", asset.MaxBytes/3*4+8)
	backend := &fakeBackend{submitFn: func(context.Context, video.Request) (*video.OperationHandle, error) {
		return doneHandle("operations/ok", "https://storage.example.com/ok.mp4"), nil
	}}
	o, _ := newTestOrchestrator(t, testOptions{backend: backend})

	res, err := o.GenerateVideo(context.Background(), GenerationRequest{
		RawPrompt:       "p",
		AspectRatio:     "16:9",
		ReferenceAssets: []string{huge},
	})
	require.NoError(t, err)
	require.Equal(t, ArtifactVideo, res.Kind)
	require.Nil(t, backend.Submits()[0].Image)
}

func TestGenerateVideo_OperationFailureDowngrades(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{
		submitFn: func(_ context.Context, req video.Request) (*video.OperationHandle, error) {
			return &video.OperationHandle{Name: "operations/" + req.Model}, nil
		},
		pollFn: func(_ context.Context, h *video.OperationHandle) (*video.OperationHandle, error) {
			if strings.HasSuffix(h.Name, "veo-3.0-generate-001") {
				return &video.OperationHandle{Name: h.Name, Done: true, ErrorDetail: &video.ErrorDetail{Code: 8, Message: "Resource exhausted: quota"}}, nil
			}
			return doneHandle(h.Name, "https://storage.example.com/fast.mp4"), nil
		},
	}
	o, _ := newTestOrchestrator(t, testOptions{backend: backend})

	res, err := o.GenerateVideo(context.Background(), GenerationRequest{RawPrompt: "p", AspectRatio: "16:9"})
	require.NoError(t, err)
	require.Equal(t, "veo-3.0-fast-generate-001", res.Model)
	require.Equal(t, "https://storage.example.com/fast.mp4", res.ArtifactURI)
}

func TestGenerateVideo_EmptyResultIsFailure(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{submitFn: func(context.Context, video.Request) (*video.OperationHandle, error) {
		return &video.OperationHandle{Name: "operations/empty", Done: true, Response: &video.Response{}}, nil
	}}
	o, _ := newTestOrchestrator(t, testOptions{backend: backend, text: &fakeText{storyboardText: "Shot 1"}})

	res, err := o.GenerateVideo(context.Background(), GenerationRequest{RawPrompt: "p", AspectRatio: "16:9"})
	require.NoError(t, err)
	require.Equal(t, ArtifactStoryboard, res.Kind)
	require.Len(t, backend.Submits(), 3)
}

func TestGenerateVideo_MaxWaitIsTransient(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{submitFn: func(context.Context, video.Request) (*video.OperationHandle, error) {
		return &video.OperationHandle{Name: "operations/forever"}, nil
	}}
	obs := &recordingObserver{}
	o, _ := newTestOrchestrator(t, testOptions{
		backend:   backend,
		text:      &fakeText{storyboardText: "Shot 1"},
		maxWait:   20 * time.Millisecond,
		observers: []Observer{obs},
	})

	res, err := o.GenerateVideo(context.Background(), GenerationRequest{RawPrompt: "p", AspectRatio: "16:9"})
	require.NoError(t, err)
	require.Equal(t, ArtifactStoryboard, res.Kind)
	require.Len(t, obs.attempts, 3)
	for _, a := range obs.attempts {
		require.Equal(t, KindTransient, a.Kind)
	}
}

func TestGenerateVideo_FallbackTextFailureSurfacesWithoutDecisionMaker(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{submitFn: func(context.Context, video.Request) (*video.OperationHandle, error) {
		return nil, errors.New("network unreachable")
	}}
	text := &fakeText{storyboardErr: errors.New("text service unavailable")}
	o, acc := newTestOrchestrator(t, testOptions{backend: backend, text: text})

	_, err := o.GenerateVideo(context.Background(), GenerationRequest{RawPrompt: "p", AspectRatio: "16:9"})
	require.Error(t, err)
	require.False(t, internalerrors.IsCancelled(err))
	require.Contains(t, err.Error(), "text service unavailable")

	records := acc.Records()
	require.Len(t, records, 1)
	require.Equal(t, models.OutcomeFailed, records[0].Outcome)
}

func TestGenerateVideo_DecisionMaker(t *testing.T) {
	t.Parallel()

	failing := func() *fakeBackend {
		return &fakeBackend{submitFn: func(context.Context, video.Request) (*video.OperationHandle, error) {
			return nil, errors.New("Unable to process input image")
		}}
	}

	t.Run("storyboard", func(t *testing.T) {
		t.Parallel()

		var gotMsg string
		var gotAssets bool
		var calls atomic.Int32
		dm := func(_ context.Context, msg string, hasAssets bool) RecoveryDecision {
			calls.Add(1)
			gotMsg, gotAssets = msg, hasAssets
			return DecisionFallbackToStoryboard
		}
		backend := failing()
		o, _ := newTestOrchestrator(t, testOptions{backend: backend, text: &fakeText{storyboardText: "Shot 1"}, decisionMaker: dm})

		res, err := o.GenerateVideo(context.Background(), GenerationRequest{RawPrompt: "p", AspectRatio: "16:9", ReferenceAssets: []string{pngAsset}})
		require.NoError(t, err)
		require.Equal(t, ArtifactStoryboard, res.Kind)
		require.EqualValues(t, 1, calls.Load())
		require.Contains(t, gotMsg, "Unable to process input image")
		require.True(t, gotAssets)
	})

	t.Run("cancel", func(t *testing.T) {
		t.Parallel()

		text := &fakeText{storyboardText: "Shot 1"}
		backend := failing()
		o, acc := newTestOrchestrator(t, testOptions{backend: backend, text: text, decisionMaker: func(context.Context, string, bool) RecoveryDecision {
			return DecisionCancel
		}})

		_, err := o.GenerateVideo(context.Background(), GenerationRequest{RawPrompt: "p", AspectRatio: "16:9"})
		require.True(t, internalerrors.IsCancelled(err))
		require.Zero(t, text.storyboards.Load())
		require.Empty(t, acc.Records())
	})

	t.Run("retry is bounded", func(t *testing.T) {
		t.Parallel()

		backend := failing()
		o, _ := newTestOrchestrator(t, testOptions{backend: backend, text: &fakeText{storyboardText: "Shot 1"}, decisionMaker: func(context.Context, string, bool) RecoveryDecision {
			return DecisionRetry
		}})

		res, err := o.GenerateVideo(context.Background(), GenerationRequest{RawPrompt: "p", AspectRatio: "16:9"})
		require.NoError(t, err)
		require.Equal(t, ArtifactStoryboard, res.Kind)
		require.Len(t, backend.Submits(), o.MaxAttempts())
		for _, s := range backend.Submits() {
			require.Equal(t, "veo-3.0-generate-001", s.Model)
		}
	})

	t.Run("fallback text failure still returns artifact", func(t *testing.T) {
		t.Parallel()

		backend := failing()
		o, acc := newTestOrchestrator(t, testOptions{
			backend:       backend,
			text:          &fakeText{storyboardErr: errors.New("boom")},
			decisionMaker: func(context.Context, string, bool) RecoveryDecision { return DecisionFallbackToStoryboard },
		})

		res, err := o.GenerateVideo(context.Background(), GenerationRequest{RawPrompt: "p", AspectRatio: "16:9"})
		require.NoError(t, err)
		art, err := storyboard.Decode(res.ArtifactURI)
		require.NoError(t, err)
		require.Equal(t, storyboard.NoteTextUnavailable, art.Note)
		require.Empty(t, art.StoryboardText)
		require.Len(t, acc.Records(), 1)
		require.Zero(t, acc.Records()[0].EstimatedCost)
	})
}

func TestGenerateBatch_PreservesOrderAndIsolatesFailures(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{submitFn: func(_ context.Context, req video.Request) (*video.OperationHandle, error) {
		return doneHandle("operations/"+req.Prompt, "https://storage.example.com/"+req.Model+".mp4"), nil
	}}
	o, acc := newTestOrchestrator(t, testOptions{backend: backend})

	items := o.GenerateBatch(context.Background(), []GenerationRequest{
		{RawPrompt: "cut one", AspectRatio: "16:9"},
		{RawPrompt: "cut two", AspectRatio: "16:9", ModelVersion: "not-a-model"},
		{RawPrompt: "cut three", AspectRatio: "9:16", ModelVersion: "veo-2.0-generate-001"},
	}, 2)

	require.Len(t, items, 3)
	require.NoError(t, items[0].Err)
	require.Equal(t, "https://storage.example.com/veo-3.0-generate-001.mp4", items[0].Result.ArtifactURI)
	require.ErrorIs(t, items[1].Err, registry.ErrUnknownModel)
	require.NoError(t, items[2].Err)
	require.Equal(t, "https://storage.example.com/veo-2.0-generate-001.mp4", items[2].Result.ArtifactURI)
	require.Len(t, acc.Records(), 2)
}

func TestNew_RequiresRegistryAndBackend(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Router: video.Router{registry.ProviderGoogle: &fakeBackend{}}})
	require.True(t, internalerrors.IsConfiguration(err))

	_, err = New(Config{Registry: registry.Default()})
	require.True(t, internalerrors.IsConfiguration(err))

	_, err = New(Config{Registry: registry.Default(), Router: video.Router{registry.ProviderGoogle: &fakeBackend{}}, DefaultModel: "nope"})
	require.ErrorIs(t, err, registry.ErrUnknownModel)
}

func TestGenerateVideo_DefaultsToFirstServableModel(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{submitFn: func(_ context.Context, req video.Request) (*video.OperationHandle, error) {
		return doneHandle("operations/jimeng", "https://storage.example.com/"+req.Model+".mp4"), nil
	}}
	for name, configured := range map[string]string{
		"unset":             "",
		"google only model": "veo-3.0-generate-001",
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			o, err := New(Config{
				Registry:     registry.Default(),
				Router:       video.Router{registry.ProviderVolcengine: backend},
				DefaultModel: configured,
				PollInterval: time.Millisecond,
				TokenCounter: estimateCounter,
				Logger:       discardLogger(),
			})
			require.NoError(t, err)

			res, err := o.GenerateVideo(context.Background(), GenerationRequest{RawPrompt: "a cat walking in rain", AspectRatio: "16:9"})
			require.NoError(t, err)
			require.Equal(t, "jimeng-v30", res.Model)
			require.Equal(t, "https://storage.example.com/jimeng-v30.mp4", res.ArtifactURI)
		})
	}
}

func TestNew_RejectsRouterServingNoModel(t *testing.T) {
	t.Parallel()

	reg, err := registry.New(registry.DefaultModels()[0])
	require.NoError(t, err)
	_, err = New(Config{Registry: reg, Router: video.Router{registry.ProviderVolcengine: &fakeBackend{}}, Logger: discardLogger()})
	require.True(t, internalerrors.IsConfiguration(err))
}
