package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/doraemo/internal/core/domain"
)

var (
	historyLimit  int
	historyThread string
	historyJSON   bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent conversation turns",
	Long: `Shows the most recent turns of your conversation, newest first.
With --thread, shows that thread from its beginning instead.`,
	Args:        cobra.NoArgs,
	Annotations: requires(needsServices),
	RunE:        runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "maximum number of turns")
	historyCmd.Flags().StringVar(&historyThread, "thread", "", "show a single thread, oldest first")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "output turns as JSON")
	rootCmd.AddCommand(historyCmd)
}

type turnOutput struct {
	SequenceNumber int64     `json:"sequence_number"`
	ThreadID       string    `json:"thread_id"`
	Prompt         string    `json:"prompt"`
	Response       string    `json:"response"`
	OwnerID        string    `json:"owner_id"`
	CreatedAt      time.Time `json:"created_at"`
}

func runHistory(cmd *cobra.Command, _ []string) error {
	if historyService == nil {
		return errors.New("history service not configured")
	}

	var (
		turns []domain.ConversationTurn
		err   error
	)
	if historyThread != "" {
		turns, err = historyService.Thread(cmd.Context(), currentUser(), historyThread, historyLimit)
	} else {
		turns, err = historyService.Latest(cmd.Context(), currentUser(), historyLimit)
	}
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}

	if historyJSON {
		out := make([]turnOutput, len(turns))
		for i, t := range turns {
			out[i] = turnOutput{
				SequenceNumber: t.SequenceNumber,
				ThreadID:       t.ThreadID,
				Prompt:         t.PromptText,
				Response:       t.ResponseText,
				OwnerID:        t.OwnerID,
				CreatedAt:      t.CreatedAt,
			}
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal history: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(turns) == 0 {
		cmd.Printf("No conversation yet for %s.\n", currentUser())
		return nil
	}
	for _, t := range turns {
		cmd.Printf("#%d  %s  thread %s\n", t.SequenceNumber, t.CreatedAt.Local().Format("2006-01-02 15:04"), t.ThreadID)
		cmd.Printf("  you: %s\n", t.PromptText)
		cmd.Printf("  assistant: %s\n", t.ResponseText)
		cmd.Println()
	}
	return nil
}
