package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	workerOnce      bool
	deadLetterLimit int
	deadLetterJSON  bool
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Index queued documents",
	Long: `Consumes document events from the queue and ingests each document.
Failed messages are redelivered after the visibility timeout and moved to
the dead-letter list once they exceed the maximum receive count.

The worker also watches the blob directory, so files copied there directly
are indexed without an upload. Stop it with Ctrl-C.`,
	Args:        cobra.NoArgs,
	Annotations: requires(needsQueue),
	RunE:        runWorker,
}

var deadLettersCmd = &cobra.Command{
	Use:         "dead-letters",
	Short:       "List messages that exhausted their deliveries",
	Args:        cobra.NoArgs,
	Annotations: requires(needsQueue),
	RunE:        runDeadLetters,
}

func init() {
	workerCmd.Flags().BoolVar(&workerOnce, "once", false, "process a single batch and exit")
	deadLettersCmd.Flags().IntVarP(&deadLetterLimit, "limit", "n", 20, "maximum number of messages")
	deadLettersCmd.Flags().BoolVar(&deadLetterJSON, "json", false, "output messages as JSON")
	workerCmd.AddCommand(deadLettersCmd)
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, _ []string) error {
	if workerService == nil {
		return errors.New("worker not configured")
	}

	if !workerOnce {
		cmd.Println("Worker running. Press Ctrl-C to stop.")
		return workerService.Run(cmd.Context())
	}

	n, result, err := workerService.RunOnce(cmd.Context())
	if err != nil {
		return fmt.Errorf("worker failed: %w", err)
	}
	if n == 0 {
		cmd.Println("Queue is empty.")
		return nil
	}
	cmd.Printf("Received %d messages: %d documents processed, %d skipped, %d messages left for redelivery\n",
		n, result.Processed, result.Skipped, len(result.Failures))
	return nil
}

type deadLetterOutput struct {
	MessageID    string    `json:"message_id"`
	ReceiveCount int       `json:"receive_count"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
	Documents    []string  `json:"documents,omitempty"`
	Body         string    `json:"body"`
}

func runDeadLetters(cmd *cobra.Command, _ []string) error {
	if workerService == nil {
		return errors.New("worker not configured")
	}

	letters, err := workerService.DeadLetters(cmd.Context(), deadLetterLimit)
	if err != nil {
		return err
	}

	if deadLetterJSON {
		out := make([]deadLetterOutput, len(letters))
		for i, l := range letters {
			out[i] = deadLetterOutput{
				MessageID:    l.MessageID,
				ReceiveCount: l.ReceiveCount,
				EnqueuedAt:   l.EnqueuedAt,
				Body:         l.Body,
			}
			for _, key := range l.DocumentKeys {
				out[i].Documents = append(out[i].Documents, string(key))
			}
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal dead letters: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(letters) == 0 {
		cmd.Println("No dead letters.")
		return nil
	}
	for _, l := range letters {
		cmd.Printf("  %s  received %d times, enqueued %s\n",
			l.MessageID, l.ReceiveCount, l.EnqueuedAt.Local().Format("2006-01-02 15:04"))
		if len(l.DocumentKeys) == 0 {
			cmd.Printf("      body: %s\n", snippet(l.Body, 120))
		}
		for _, key := range l.DocumentKeys {
			cmd.Printf("      %s\n", key)
		}
	}
	cmd.Println()
	cmd.Println("Re-run ingestion with 'doraemo ingest <document-key>' once the cause is fixed.")
	return nil
}
