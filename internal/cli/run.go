package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewRunCmd создаёт группу команд для управления runs.
func NewRunCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Manage runs",
	}

	cmd.AddCommand(
		newRunListCmd(clientFn, outputFn),
		newRunStartCmd(clientFn, outputFn),
		newRunShowCmd(clientFn, outputFn),
		newRunCancelCmd(clientFn, outputFn),
	)

	return cmd
}

func newRunListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var jobID string
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			runs, err := client.ListRuns(ListRunsOpts{
				JobID:  jobID,
				Status: status,
				Limit:  limit,
			})
			if err != nil {
				return err
			}

			headers := []string{"ID", "JOB_ID", "STATUS", "CREATED"}
			rows := make([][]string, len(runs))
			for i, r := range runs {
				rows[i] = []string{r.ID, r.JobID, r.Status, r.CreatedAt}
			}

			out.Print(headers, rows, runs)
			return nil
		},
	}

	cmd.Flags().StringVar(&jobID, "job-id", "", "Filter by job ID")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (PENDING, RUNNING, SUCCEEDED, FAILED, CANCELLED)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newRunStartCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var payload []string
	var idempotencyKey string

	cmd := &cobra.Command{
		Use:   "start JOB_ID",
		Short: "Start a new run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			payloadMap, err := parseKeyValues(payload)
			if err != nil {
				return err
			}

			resp, err := client.StartRun(CreateRunRequest{
				JobID:          args[0],
				Payload:        payloadMap,
				IdempotencyKey: idempotencyKey,
			})
			if err != nil {
				return err
			}

			out.Message("Run %s accepted", resp.RunID)
			out.Print(
				[]string{"RUN_ID", "STATUS"},
				[][]string{{resp.RunID, resp.Status}},
				resp,
			)
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&payload, "payload", nil, "Trigger payload key=value (repeatable)")
	cmd.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "Idempotency key")

	return cmd
}

func newRunShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show run details with step outcomes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			run, err := client.GetRun(args[0])
			if err != nil {
				return err
			}

			headers := []string{"STEP_ID", "STATUS", "ATTEMPTS", "ERROR"}
			rows := make([][]string, len(run.Outcomes))
			for i, o := range run.Outcomes {
				rows[i] = []string{o.StepID, o.Status, strconv.Itoa(o.Attempts), o.Error}
			}

			out.Message("Run %s [%s]", run.ID, run.Status)
			if run.Error != "" {
				out.Message("Error: %s", run.Error)
			}
			out.Print(headers, rows, run)
			return nil
		},
	}
}

func newRunCancelCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel RUN_ID",
		Short: "Request run cancellation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.CancelRun(args[0]); err != nil {
				return err
			}
			out.Message("Cancellation requested for run %s", args[0])
			return nil
		},
	}
}

// parseKeyValues разбирает флаги вида key=value.
func parseKeyValues(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	result := make(map[string]any, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid payload %q, expected key=value", p)
		}
		result[key] = value
	}
	return result, nil
}
