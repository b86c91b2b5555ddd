package cli

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/doraemo/internal/core/domain"
)

var (
	uploadAs          string
	uploadContentType string
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file>...",
	Short: "Upload documents for indexing",
	Long: `Stores each file under your user and queues it for ingestion.
Documents are indexed by the worker; use 'doraemo status' to follow progress.

Supported formats: plain text, Markdown, HTML and PDF.`,
	Args:        cobra.MinimumNArgs(1),
	Annotations: requires(needsQueue),
	RunE:        runUpload,
}

func init() {
	uploadCmd.Flags().StringVar(&uploadAs, "as", "", "document path to store a single file under (default: file name)")
	uploadCmd.Flags().StringVar(&uploadContentType, "content-type", "", "declared content type (default: detected)")
	rootCmd.AddCommand(uploadCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	if uploadService == nil {
		return errors.New("upload service not configured")
	}
	if uploadAs != "" && len(args) > 1 {
		return errors.New("--as can only be used with a single file")
	}

	for _, file := range args {
		name := uploadAs
		if name == "" {
			name = filepath.Base(file)
		}
		key, err := documentKey(name)
		if err != nil {
			return err
		}

		data, err := os.ReadFile(file) //nolint:gosec // G304: user-provided upload path
		if err != nil {
			return fmt.Errorf("reading %s: %w", file, err)
		}
		if err := uploadService.Upload(cmd.Context(), key, data, uploadContentType); err != nil {
			return fmt.Errorf("failed to upload %s: %w", file, err)
		}
		cmd.Printf("Uploaded %s (%d bytes)\n", key, len(data))
	}
	return nil
}

// documentKey places name under the current user unless it already names one.
func documentKey(name string) (domain.DocumentKey, error) {
	name = strings.TrimPrefix(path.Clean("/"+filepath.ToSlash(name)), "/")
	user := currentUser()
	if !strings.HasPrefix(name, user+"/") {
		name = user + "/" + name
	}
	key, _, err := domain.ParseDocumentKey(name)
	return key, err
}
