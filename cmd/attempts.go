package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jimeng-relay/storyvideo/internal/repository"
)

var attemptsJobID string

var attemptsCmd = &cobra.Command{
	Use:   "attempts",
	Short: "List the recorded attempts of one job",
	RunE: func(cmd *cobra.Command, args []string) error {
		formatter, err := newFormatterFromRootFlags()
		if err != nil {
			return err
		}
		jobID := strings.TrimSpace(attemptsJobID)
		if jobID == "" {
			return fmt.Errorf("--job is required")
		}
		store, err := openStoreOnly(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		attempts, err := store.JobAttempts().ListByJobID(commandContext(cmd), jobID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("no attempts recorded for job %s", jobID)
			}
			return err
		}
		out, err := formatter.FormatAttempts(attempts)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(attemptsCmd)

	attemptsCmd.Flags().StringVar(&attemptsJobID, "job", "", "Job id (required)")
}
