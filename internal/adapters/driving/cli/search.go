package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/doraemo/internal/core/domain"
)

var (
	searchTopK int
	searchJSON bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search uploaded documents",
	Long: `Runs a semantic (vector) search over the current user's documents and
prints the closest passages. This is the retrieval step chat uses, without
the model.`,
	Args:        cobra.ExactArgs(1),
	Annotations: requires(needsServices),
	RunE:        runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchTopK, "top-k", "k", 4, "maximum number of passages")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := args[0]

	if searchService == nil {
		return errors.New("search service not configured")
	}

	results, err := searchService.Search(cmd.Context(), currentUser(), query, searchTopK)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return outputSearchJSON(cmd, results)
	}

	return outputSearchTable(cmd, results)
}

func outputSearchJSON(cmd *cobra.Command, results []domain.SearchResult) error {
	out := make([]sourceOutput, len(results))
	for i, r := range results {
		out[i] = sourceOutput{
			DocumentKey: string(r.DocumentKey),
			Page:        r.Metadata.Page,
			Distance:    r.Distance,
			Text:        r.Text,
		}
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputSearchTable(cmd *cobra.Command, results []domain.SearchResult) error {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	cmd.Println("Results:")
	cmd.Println()
	for i := range results {
		// Format: [N] file, page P (distance)
		cmd.Printf("  [%d] %s (%.3f)\n", i+1, sourceLabel(results[i]), results[i].Distance)
		cmd.Printf("      %s\n", snippet(results[i].Text, 200))
		cmd.Println()
	}

	return nil
}

// snippet shortens text to at most n runes on one line.
func snippet(text string, n int) string {
	text = domain.NormalizeWhitespace(text)
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}
