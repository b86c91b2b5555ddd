package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/doraemo/internal/core/domain"
)

var ingestAll bool

var ingestCmd = &cobra.Command{
	Use:   "ingest [document-key]...",
	Short: "Index stored documents now",
	Long: `Runs ingestion in this process for the given documents, bypassing the
queue. Keys have the form user/path, as printed by upload and status.
With --all, every document tracked for the current user is re-indexed.`,
	Annotations: requires(needsServices),
	RunE:        runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestAll, "all", false, "re-index every document of the current user")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestionService == nil {
		return errors.New("ingestion service not configured")
	}

	keys, err := ingestKeys(cmd, args)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		cmd.Println("Nothing to ingest.")
		return nil
	}

	var errs []error
	for _, key := range keys {
		result, err := ingestionService.Ingest(cmd.Context(), key)
		if err != nil {
			cmd.Printf("  %s: failed: %v\n", key, err)
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			continue
		}
		switch {
		case result.Skipped:
			cmd.Printf("  %s: skipped (no longer stored)\n", key)
		case result.Superseded:
			cmd.Printf("  %s: superseded by a newer ingestion\n", key)
		default:
			cmd.Printf("  %s: %d chunks indexed\n", key, result.Chunks)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("ingestion failed for %d of %d documents: %w", len(errs), len(keys), errors.Join(errs...))
	}
	return nil
}

func ingestKeys(cmd *cobra.Command, args []string) ([]domain.DocumentKey, error) {
	if ingestAll {
		if len(args) > 0 {
			return nil, errors.New("--all cannot be combined with document keys")
		}
		if documentService == nil {
			return nil, errors.New("document service not configured")
		}
		records, err := documentService.List(cmd.Context(), currentUser())
		if err != nil {
			return nil, fmt.Errorf("failed to list documents: %w", err)
		}
		keys := make([]domain.DocumentKey, len(records))
		for i, r := range records {
			keys[i] = r.DocumentKey
		}
		return keys, nil
	}

	if len(args) == 0 {
		return nil, errors.New("requires at least one document key, or --all")
	}
	return parseKeys(args)
}

func parseKeys(args []string) ([]domain.DocumentKey, error) {
	keys := make([]domain.DocumentKey, len(args))
	for i, arg := range args {
		key, _, err := domain.ParseDocumentKey(arg)
		if err != nil {
			return nil, err
		}
		keys[i] = key
	}
	return keys, nil
}
