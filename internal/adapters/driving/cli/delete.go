package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <document-key>...",
	Short: "Remove stored documents and their indexed chunks",
	Long: `Deletes the stored blob, every indexed chunk and the status record of
each document. Keys have the form user/path. Deleting a document that is
no longer stored is not an error.`,
	Args:        cobra.MinimumNArgs(1),
	Annotations: requires(needsServices),
	RunE:        runDelete,
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	if ingestionService == nil {
		return errors.New("ingestion service not configured")
	}

	keys, err := parseKeys(args)
	if err != nil {
		return err
	}

	var errs []error
	for _, key := range keys {
		if err := ingestionService.Remove(cmd.Context(), key); err != nil {
			cmd.Printf("  %s: failed: %v\n", key, err)
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			continue
		}
		cmd.Printf("  %s: removed\n", key)
	}
	if len(errs) > 0 {
		return fmt.Errorf("delete failed for %d of %d documents: %w", len(errs), len(keys), errors.Join(errs...))
	}
	return nil
}
