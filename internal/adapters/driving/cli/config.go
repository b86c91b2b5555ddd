package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/doraemo/internal/core/domain"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `View and change settings stored in ~/.doraemo/config.toml.

API keys may also come from ANTHROPIC_API_KEY, OPENAI_API_KEY and
GEMINI_API_KEY; DORAEMO_REDIS_URL selects the Redis append lock.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective settings",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> [value]",
	Short: "Set a configuration key",
	Long: `Sets one dotted key, for example:

  doraemo config set llm.provider openai
  doraemo config set chat.top_k 6
  doraemo config set llm.stop_sequences "human:,user:"

When the value of an *.api_key is omitted it is read without echo.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runConfigSet,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check that configured providers are reachable",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List configuration keys",
	Args:  cobra.NoArgs,
	RunE:  runConfigKeys,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configKeysCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	cmd.Println("Current Settings")
	cmd.Println("================")
	cmd.Println()

	cmd.Println("[Embedding]")
	printProvider(cmd, settings.Embedding.Provider, settings.Embedding.Model, settings.Embedding.BaseURL,
		settings.Embedding.APIKey, settings.Embedding.IsConfigured())
	if settings.Embedding.Dimensions > 0 {
		cmd.Printf("  Dimensions: %d\n", settings.Embedding.Dimensions)
	}
	if settings.Embedding.RatePerSecond > 0 {
		cmd.Printf("  Rate limit: %.1f/s (burst %d)\n", settings.Embedding.RatePerSecond, settings.Embedding.Burst)
	}
	cmd.Println()

	cmd.Println("[LLM]")
	printProvider(cmd, settings.LLM.Provider, settings.LLM.Model, settings.LLM.BaseURL,
		settings.LLM.APIKey, settings.LLM.IsConfigured())
	p := settings.LLM.Params
	cmd.Printf("  Max tokens: %d, temperature: %.2f, top_p: %.2f\n", p.MaxTokens, p.Temperature, p.TopP)
	cmd.Printf("  Stop sequences: %s\n", strings.Join(p.StopSequences, ", "))
	if settings.LLM.SystemPrompt != "" {
		cmd.Println("  System prompt: (set in config)")
	}
	cmd.Println()

	cmd.Println("[Chat]")
	cmd.Printf("  History turns: %d\n", settings.Chat.HistoryLimit)
	cmd.Printf("  Retrieved passages: %d\n", settings.Chat.TopK)
	cmd.Printf("  Chunk size: %d (overlap %d)\n", settings.Chunker.ChunkSize, settings.Chunker.Overlap)
	cmd.Println()

	cmd.Println("[Storage]")
	cmd.Printf("  Data dir: %s\n", orDefault(settings.Storage.DataDir))
	cmd.Printf("  Blob root: %s\n", orDefault(settings.Storage.BlobRoot))
	cmd.Printf("  Queue dir: %s\n", orDefault(settings.Storage.QueueDir))
	cmd.Printf("  Queue: visibility %s, max receive %d, batch %d\n",
		settings.Queue.VisibilityTimeout, settings.Queue.MaxReceive, settings.Queue.BatchSize)
	if settings.Lock.RedisURL != "" {
		cmd.Printf("  Append lock: redis (ttl %s)\n", settings.Lock.TTL)
	} else {
		cmd.Println("  Append lock: in-process")
	}
	cmd.Println()

	cmd.Println("[Timeouts]")
	t := settings.Timeouts
	cmd.Printf("  embed %s, completion %s, blob %s, query %s, retrieval %s\n",
		t.Embed, t.Completion, t.Blob, t.Query, t.Retrieval)

	return nil
}

func printProvider(cmd *cobra.Command, provider domain.AIProvider, model, baseURL, apiKey string, configured bool) {
	cmd.Printf("  Provider: %s\n", provider.Description())
	if provider == domain.AIProviderNone {
		return
	}
	if model != "" {
		cmd.Printf("  Model: %s\n", model)
	}
	if baseURL != "" {
		cmd.Printf("  Base URL: %s\n", baseURL)
	}
	if provider.RequiresAPIKey() {
		if apiKey != "" {
			cmd.Printf("  API Key: %s\n", maskAPIKey(apiKey))
		} else {
			cmd.Printf("  API Key: (not set)\n")
		}
	}
	status := "configured"
	if !configured {
		status = "not configured"
	}
	cmd.Printf("  Status: %s\n", status)
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	key := args[0]
	var value string
	switch {
	case len(args) == 2:
		value = args[1]
	case strings.HasSuffix(key, ".api_key"):
		cmd.Printf("%s: ", key)
		value = readPassword(cmd.InOrStdin())
		cmd.Println()
	default:
		return fmt.Errorf("missing value for %s", key)
	}

	if err := settingsService.Set(key, value); err != nil {
		return err
	}
	if strings.HasSuffix(key, ".api_key") {
		value = maskAPIKey(value)
	}
	cmd.Printf("Set %s = %s\n", key, value)
	return nil
}

func runConfigValidate(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}
	if err := settingsService.Validate(cmd.Context()); err != nil {
		return fmt.Errorf("configuration is not usable: %w", err)
	}
	cmd.Println("Configuration is valid.")
	return nil
}

func runConfigKeys(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}
	for _, key := range settingsService.Keys() {
		cmd.Println(key)
	}
	return nil
}

// Helper functions.

func orDefault(path string) string {
	if path == "" {
		return "(default, under ~/.doraemo)"
	}
	return path
}

//nolint:errcheck // CLI helper, error ignored for UX
func readPassword(in io.Reader) string {
	// Try to read password without echo
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) { //nolint:gosec // G115: file descriptors fit in int
		password, err := term.ReadPassword(int(f.Fd())) //nolint:gosec // G115: file descriptors fit in int
		if err == nil {
			return strings.TrimSpace(string(password))
		}
	}
	// Fallback to regular input
	reader := bufio.NewReader(in)
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
