package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jimeng-relay/storyvideo/internal/repository"
)

type usageFlagValues struct {
	userID    string
	projectID string
	jobID     string
	since     string
	limit     int
}

var usageFlags usageFlagValues

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "List persisted usage records",
	RunE: func(cmd *cobra.Command, args []string) error {
		formatter, err := newFormatterFromRootFlags()
		if err != nil {
			return err
		}
		filter, err := buildUsageFilter(usageFlags)
		if err != nil {
			return err
		}
		store, err := openStoreOnly(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		records, err := store.UsageRecords().List(commandContext(cmd), filter)
		if err != nil {
			return err
		}
		out, err := formatter.FormatUsage(records)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	},
}

func buildUsageFilter(f usageFlagValues) (repository.UsageFilter, error) {
	filter := repository.UsageFilter{
		UserID:    strings.TrimSpace(f.userID),
		ProjectID: strings.TrimSpace(f.projectID),
		JobID:     strings.TrimSpace(f.jobID),
		Limit:     f.limit,
	}
	if f.limit < 0 {
		return repository.UsageFilter{}, fmt.Errorf("--limit must be positive")
	}
	if raw := strings.TrimSpace(f.since); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			filter.Since = time.Now().UTC().Add(-d)
		} else if t, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.Since = t
		} else {
			return repository.UsageFilter{}, fmt.Errorf("invalid --since %q: want a duration like 24h or an RFC3339 time", raw)
		}
	}
	return filter, nil
}

func init() {
	rootCmd.AddCommand(usageCmd)

	usageCmd.Flags().StringVar(&usageFlags.userID, "user", "", "Only records for this user id")
	usageCmd.Flags().StringVar(&usageFlags.projectID, "project", "", "Only records for this project id")
	usageCmd.Flags().StringVar(&usageFlags.jobID, "job", "", "Only records for this job id")
	usageCmd.Flags().StringVar(&usageFlags.since, "since", "", "Only records newer than a duration (24h) or RFC3339 time")
	usageCmd.Flags().IntVar(&usageFlags.limit, "limit", 100, "Maximum records to list (0 = all)")
}
