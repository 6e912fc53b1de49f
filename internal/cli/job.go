package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// NewJobCmd создаёт группу команд для управления заданиями.
func NewJobCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Manage job definitions",
	}

	cmd.AddCommand(
		newJobListCmd(clientFn, outputFn),
		newJobApplyCmd(clientFn, outputFn),
		newJobShowCmd(clientFn, outputFn),
		newJobDeleteCmd(clientFn, outputFn),
	)

	return cmd
}

func newJobListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List job definitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			jobs, err := client.ListJobs()
			if err != nil {
				return err
			}

			headers := []string{"ID", "NAME", "ACTIVE", "STEPS", "CREATED"}
			rows := make([][]string, len(jobs))
			for i, j := range jobs {
				rows[i] = []string{
					j.ID, j.Name,
					strconv.FormatBool(j.IsActive),
					strconv.Itoa(len(j.Steps)),
					j.Created,
				}
			}

			out.Print(headers, rows, jobs)
			return nil
		},
	}
}

func newJobApplyCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "apply JOB_ID",
		Short: "Create or update a job definition from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			raw, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read spec file: %w", err)
			}

			var spec map[string]any
			if err := json.Unmarshal(raw, &spec); err != nil {
				return fmt.Errorf("parse spec file: %w", err)
			}

			job, err := client.ApplyJob(args[0], spec)
			if err != nil {
				return err
			}

			out.Message("Job %s applied", job.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to job definition JSON (required)")
	cmd.MarkFlagRequired("file")

	return cmd
}

func newJobShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show JOB_ID",
		Short: "Show a job definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			job, err := client.GetJob(args[0])
			if err != nil {
				return err
			}
			out.JSON(job)
			return nil
		},
	}
}

func newJobDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete JOB_ID",
		Short: "Delete a job definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.DeleteJob(args[0]); err != nil {
				return err
			}
			out.Message("Job %s deleted", args[0])
			return nil
		},
	}
}
