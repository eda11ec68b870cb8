package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jimeng-relay/storyvideo/internal/orchestrator"
)

type batchFlagValues struct {
	file        string
	concurrency int
	downloadDir string
	overwrite   bool
}

var batchFlags batchFlagValues

// cutFile is the YAML layout of a batch: shared defaults plus one entry per
// cut. Image paths are resolved relative to the file.
type cutFile struct {
	Defaults cutEntry   `yaml:"defaults"`
	Cuts     []cutEntry `yaml:"cuts"`
}

type cutEntry struct {
	Prompt      string `yaml:"prompt"`
	AspectRatio string `yaml:"aspect_ratio"`
	Model       string `yaml:"model"`
	Duration    int    `yaml:"duration"`
	Resolution  string `yaml:"resolution"`
	Image       string `yaml:"image"`
	User        string `yaml:"user"`
	Project     string `yaml:"project"`
}

func (c cutEntry) withDefaults(d cutEntry) cutEntry {
	if c.AspectRatio == "" {
		c.AspectRatio = d.AspectRatio
	}
	if c.Model == "" {
		c.Model = d.Model
	}
	if c.Duration == 0 {
		c.Duration = d.Duration
	}
	if c.Resolution == "" {
		c.Resolution = d.Resolution
	}
	if c.User == "" {
		c.User = d.User
	}
	if c.Project == "" {
		c.Project = d.Project
	}
	return c
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Generate every cut listed in a YAML file",
	RunE: func(cmd *cobra.Command, args []string) error {
		formatter, err := newFormatterFromRootFlags()
		if err != nil {
			return err
		}
		reqs, err := loadCutFile(batchFlags.file)
		if err != nil {
			return err
		}
		if batchFlags.concurrency < 0 {
			return fmt.Errorf("--concurrency must be positive")
		}

		a, err := newApp(cmd, appOptions{DownloadDir: batchFlags.downloadDir, Overwrite: batchFlags.overwrite})
		if err != nil {
			return err
		}
		defer a.close()

		items := a.orch.GenerateBatch(commandContext(cmd), reqs, batchFlags.concurrency)
		out, err := formatter.FormatBatch(items)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)

		var failed int
		for _, it := range items {
			if it.Err != nil {
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d cuts failed", failed, len(items))
		}
		return nil
	},
}

func loadCutFile(path string) ([]orchestrator.GenerationRequest, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("--file is required")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cut file: %w", err)
	}
	var f cutFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse cut file %s: %w", path, err)
	}
	if len(f.Cuts) == 0 {
		return nil, fmt.Errorf("cut file %s lists no cuts", path)
	}

	base := filepath.Dir(path)
	reqs := make([]orchestrator.GenerationRequest, 0, len(f.Cuts))
	for i, c := range f.Cuts {
		c = c.withDefaults(f.Defaults)
		flags := generateFlagValues{
			prompt:      c.Prompt,
			aspectRatio: c.AspectRatio,
			model:       c.Model,
			duration:    c.Duration,
			resolution:  c.Resolution,
			userID:      c.User,
			projectID:   c.Project,
		}
		if img := strings.TrimSpace(c.Image); img != "" {
			if !filepath.IsAbs(img) {
				img = filepath.Join(base, img)
			}
			flags.images = []string{img}
		}
		req, err := buildGenerationRequest(flags)
		if err != nil {
			return nil, fmt.Errorf("cut %d: %w", i+1, err)
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().StringVar(&batchFlags.file, "file", "", "YAML file listing the cuts (required)")
	batchCmd.Flags().IntVar(&batchFlags.concurrency, "concurrency", orchestrator.DefaultBatchConcurrency, "Maximum cuts generated at once")
	batchCmd.Flags().StringVar(&batchFlags.downloadDir, "download-dir", "", "Save generated videos into this directory")
	batchCmd.Flags().BoolVar(&batchFlags.overwrite, "overwrite", false, "Overwrite existing downloaded files")
}
