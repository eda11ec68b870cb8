package output

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jimeng-relay/storyvideo/internal/models"
	"github.com/jimeng-relay/storyvideo/internal/orchestrator"
	"github.com/jimeng-relay/storyvideo/internal/registry"
	"github.com/jimeng-relay/storyvideo/internal/storyboard"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

type Formatter struct {
	Format Format
}

func NewFormatter(format Format) *Formatter {
	return &Formatter{Format: format}
}

func (f *Formatter) format() Format {
	if f != nil && f.Format != "" {
		return f.Format
	}
	return FormatText
}

func marshal(v any) (string, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// FormatResult prints a job result. Storyboard artifacts are decoded in text
// mode so the shots are readable.
func (f *Formatter) FormatResult(res orchestrator.Result, localFile string) (string, error) {
	switch f.format() {
	case FormatJSON:
		type withFile struct {
			orchestrator.Result
			LocalFile string `json:"localFile,omitempty"`
		}
		return marshal(withFile{Result: res, LocalFile: localFile})
	case FormatText:
		var b strings.Builder
		fmt.Fprintf(&b, "JobID=%s Kind=%s Model=%s Attempts=%d", res.JobID, res.Kind, res.Model, res.Attempts)
		if res.Kind == orchestrator.ArtifactStoryboard {
			art, err := storyboard.Decode(res.ArtifactURI)
			if err != nil {
				return "", err
			}
			fmt.Fprintf(&b, "\nNote=%s\n%s", art.Note, art.StoryboardText)
			return b.String(), nil
		}
		fmt.Fprintf(&b, " URI=%s", res.ArtifactURI)
		if localFile != "" {
			fmt.Fprintf(&b, " File=%s", localFile)
		}
		return b.String(), nil
	default:
		return "", fmt.Errorf("unsupported format: %q", f.format())
	}
}

func (f *Formatter) FormatModels(ms []registry.ModelConfig) (string, error) {
	switch f.format() {
	case FormatJSON:
		return marshal(ms)
	case FormatText:
		lines := make([]string, 0, len(ms))
		for i, m := range ms {
			lines = append(lines, fmt.Sprintf(
				"%d. %s provider=%s max=%ds/%s ratios=%s audio=%t prompt_tokens=%d",
				i+1, m.Version, m.Provider, m.MaxDurationSeconds, m.MaxResolution,
				strings.Join(m.SupportedAspectRatios, ","), m.SupportsAudio, m.MaxPromptTokens,
			))
		}
		return strings.Join(lines, "\n"), nil
	default:
		return "", fmt.Errorf("unsupported format: %q", f.format())
	}
}

func (f *Formatter) FormatUsage(records []models.UsageRecord) (string, error) {
	switch f.format() {
	case FormatJSON:
		if records == nil {
			records = []models.UsageRecord{}
		}
		return marshal(records)
	case FormatText:
		lines := make([]string, 0, len(records)+1)
		total := 0.0
		for _, r := range records {
			total += r.EstimatedCost
			lines = append(lines, fmt.Sprintf(
				"%s job=%s outcome=%s provider=%s model=%s tokens=%d cost=%.4f",
				r.Timestamp.Format("2006-01-02T15:04:05Z07:00"), r.JobID, r.Outcome, r.Provider, r.Model, r.EstimatedTokens, r.EstimatedCost,
			))
		}
		lines = append(lines, fmt.Sprintf("Total=%.4f Records=%d", total, len(records)))
		return strings.Join(lines, "\n"), nil
	default:
		return "", fmt.Errorf("unsupported format: %q", f.format())
	}
}

func (f *Formatter) FormatAttempts(attempts []models.JobAttempt) (string, error) {
	switch f.format() {
	case FormatJSON:
		return marshal(attempts)
	case FormatText:
		lines := make([]string, 0, len(attempts))
		for _, a := range attempts {
			line := fmt.Sprintf("#%d model=%s polls=%d latency=%dms", a.AttemptNumber, a.Model, a.PollCount, a.LatencyMs)
			if a.Error != nil {
				line += fmt.Sprintf(" classification=%s decision=%s error=%q", a.Classification, a.Decision, *a.Error)
			}
			lines = append(lines, line)
		}
		return strings.Join(lines, "\n"), nil
	default:
		return "", fmt.Errorf("unsupported format: %q", f.format())
	}
}

// FormatBatch prints one line per cut, in input order.
func (f *Formatter) FormatBatch(items []orchestrator.BatchItem) (string, error) {
	switch f.format() {
	case FormatJSON:
		type item struct {
			orchestrator.Result
			Error string `json:"error,omitempty"`
		}
		out := make([]item, 0, len(items))
		for _, it := range items {
			v := item{Result: it.Result}
			if it.Err != nil {
				v.Error = it.Err.Error()
			}
			out = append(out, v)
		}
		return marshal(out)
	case FormatText:
		lines := make([]string, 0, len(items))
		for i, it := range items {
			if it.Err != nil {
				lines = append(lines, fmt.Sprintf("%d. error=%v", i+1, it.Err))
				continue
			}
			lines = append(lines, fmt.Sprintf("%d. JobID=%s Kind=%s Model=%s URI=%s", i+1, it.Result.JobID, it.Result.Kind, it.Result.Model, shorten(it.Result.ArtifactURI)))
		}
		return strings.Join(lines, "\n"), nil
	default:
		return "", fmt.Errorf("unsupported format: %q", f.format())
	}
}

func shorten(uri string) string {
	if storyboard.IsStoryboardURI(uri) {
		return storyboard.URIPrefix + "..."
	}
	return uri
}
