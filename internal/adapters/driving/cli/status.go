package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/doraemo/internal/core/domain"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status [document-key]",
	Short: "Show document ingestion status",
	Long: `Shows the ingestion status of one document, or of every document of
the current user when no key is given.

Statuses: pending, processing, processed, error (unknown for keys never seen).`,
	Args:        cobra.MaximumNArgs(1),
	Annotations: requires(needsServices),
	RunE:        runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output status as JSON")
	rootCmd.AddCommand(statusCmd)
}

type statusOutput struct {
	DocumentKey string `json:"document_key"`
	Status      string `json:"status"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	var records []domain.DocumentRecord
	if len(args) == 1 {
		key, _, err := domain.ParseDocumentKey(args[0])
		if err != nil {
			return err
		}
		status, err := documentService.GetStatus(cmd.Context(), key)
		if err != nil {
			return fmt.Errorf("failed to get status: %w", err)
		}
		records = []domain.DocumentRecord{{DocumentKey: key, Status: status}}
	} else {
		var err error
		records, err = documentService.List(cmd.Context(), currentUser())
		if err != nil {
			return fmt.Errorf("failed to list documents: %w", err)
		}
	}

	if statusJSON {
		out := make([]statusOutput, len(records))
		for i, r := range records {
			out[i] = statusOutput{DocumentKey: string(r.DocumentKey), Status: string(r.Status)}
			if !r.UpdatedAt.IsZero() {
				out[i].UpdatedAt = r.UpdatedAt.UTC().Format(time.RFC3339)
			}
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal status: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(records) == 0 {
		cmd.Printf("No documents for %s.\n", currentUser())
		return nil
	}
	for _, r := range records {
		if r.UpdatedAt.IsZero() {
			cmd.Printf("  %-12s %s\n", r.Status, r.DocumentKey)
			continue
		}
		cmd.Printf("  %-12s %s  (updated %s)\n", r.Status, r.DocumentKey, r.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	return nil
}
