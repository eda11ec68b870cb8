package cmd

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jimeng-relay/storyvideo/internal/asset"
	"github.com/jimeng-relay/storyvideo/internal/orchestrator"
)

type generateFlagValues struct {
	prompt      string
	aspectRatio string
	model       string
	duration    int
	resolution  string
	images      []string
	interactive bool
	downloadDir string
	overwrite   bool
	userID      string
	projectID   string
}

var generateFlags generateFlagValues

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate one video cut",
	Long: `Generate one video cut from a prompt. On failure the job walks down the
model ladder, and ends in a storyboard artifact when no video can be made.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		formatter, err := newFormatterFromRootFlags()
		if err != nil {
			return err
		}
		req, err := buildGenerationRequest(generateFlags)
		if err != nil {
			return err
		}

		opts := appOptions{DownloadDir: generateFlags.downloadDir, Overwrite: generateFlags.overwrite}
		if generateFlags.interactive {
			opts.DecisionMaker = stdinDecisionMaker(cmd.InOrStdin(), cmd.ErrOrStderr())
		}
		a, err := newApp(cmd, opts)
		if err != nil {
			return err
		}
		defer a.close()

		res, err := a.orch.GenerateVideo(commandContext(cmd), req)
		if err != nil {
			return err
		}

		var localFile string
		if a.saver != nil {
			localFile, _ = a.saver.File(res.JobID)
		}
		out, err := formatter.FormatResult(res, localFile)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	},
}

func buildGenerationRequest(f generateFlagValues) (orchestrator.GenerationRequest, error) {
	prompt := strings.TrimSpace(f.prompt)
	if prompt == "" {
		return orchestrator.GenerationRequest{}, fmt.Errorf("--prompt is required")
	}
	if f.duration < 0 {
		return orchestrator.GenerationRequest{}, fmt.Errorf("--duration must be positive")
	}

	assets := make([]string, 0, len(f.images))
	for _, path := range f.images {
		uri, err := readImageAsDataURI(path)
		if err != nil {
			return orchestrator.GenerationRequest{}, err
		}
		assets = append(assets, uri)
	}

	return orchestrator.GenerationRequest{
		RawPrompt:          prompt,
		AspectRatio:        strings.TrimSpace(f.aspectRatio),
		DurationOverride:   f.duration,
		ResolutionOverride: strings.TrimSpace(f.resolution),
		ReferenceAssets:    assets,
		ModelVersion:       strings.TrimSpace(f.model),
		UserID:             strings.TrimSpace(f.userID),
		ProjectID:          strings.TrimSpace(f.projectID),
	}, nil
}

// readImageAsDataURI does not validate the image; the orchestrator decides
// whether an unusable asset is dropped.
func readImageAsDataURI(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("--image must not be empty")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read --image %s: %w", path, err)
	}
	mimeType := http.DetectContentType(b)
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = mimeType[:i]
	}
	return asset.EncodeDataURI(mimeType, b), nil
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().StringVar(&generateFlags.prompt, "prompt", "", "Scene description (required)")
	generateCmd.Flags().StringVar(&generateFlags.aspectRatio, "aspect-ratio", "16:9", "Aspect ratio, e.g. 16:9 or 9:16")
	generateCmd.Flags().StringVar(&generateFlags.model, "model", "", "Model version to start the ladder from")
	generateCmd.Flags().IntVar(&generateFlags.duration, "duration", 0, "Duration in seconds (capped at the model maximum)")
	generateCmd.Flags().StringVar(&generateFlags.resolution, "resolution", "", "Resolution, e.g. 720p or 1080p")
	generateCmd.Flags().StringSliceVar(&generateFlags.images, "image", nil, "Reference image file (only the first is sent)")
	generateCmd.Flags().BoolVar(&generateFlags.interactive, "interactive", false, "Ask on stdin how to recover from failed attempts")
	generateCmd.Flags().StringVar(&generateFlags.downloadDir, "download-dir", "", "Save the generated video into this directory")
	generateCmd.Flags().BoolVar(&generateFlags.overwrite, "overwrite", false, "Overwrite an existing downloaded file")
	generateCmd.Flags().StringVar(&generateFlags.userID, "user", "", "User id recorded on usage records")
	generateCmd.Flags().StringVar(&generateFlags.projectID, "project", "", "Project id recorded on usage records")
}
