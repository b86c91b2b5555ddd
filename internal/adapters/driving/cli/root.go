// Package cli implements the doraemo command line on top of the driving ports.
package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/doraemo/internal/core/domain"
	"github.com/custodia-labs/doraemo/internal/core/ports/driving"
	"github.com/custodia-labs/doraemo/internal/logger"
)

// version is overridden at build time through SetVersion.
var version = "dev"

// Annotation keys declaring what a command needs from the bootstrap.
const (
	annotationNeeds = "doraemo/needs"
	needsServices   = "services"
	needsQueue      = "queue"
)

// Needs describes the components a command requires.
type Needs struct {
	// Queue opens the event queue. The persistent queue allows a single
	// process at a time, so only commands that enqueue or consume ask for it.
	Queue bool
}

// Services bundles the driving ports used by the commands.
type Services struct {
	Chat      driving.ChatService
	History   driving.HistoryService
	Ingestion driving.IngestionService
	Documents driving.DocumentService
	Search    driving.SearchService
	Upload    driving.UploadService
	Worker    driving.WorkerService
}

// Bootstrap builds the services for a command. The returned function
// releases everything it opened.
type Bootstrap func(ctx context.Context, needs Needs) (*Services, func() error, error)

var (
	chatService      driving.ChatService
	historyService   driving.HistoryService
	ingestionService driving.IngestionService
	documentService  driving.DocumentService
	searchService    driving.SearchService
	uploadService    driving.UploadService
	workerService    driving.WorkerService
	settingsService  driving.SettingsService
)

var (
	bootstrap Bootstrap
	release   func() error
)

// Persistent flags.
var (
	verbose  bool
	userName string
)

var rootCmd = &cobra.Command{
	Use:   "doraemo",
	Short: "Chat with an assistant grounded in your documents",
	Long: `doraemo is a conversational assistant whose answers draw on your recent
conversation and on the documents you upload.

Upload documents, run a worker to index them, then chat:

  doraemo upload --user alice report.pdf
  doraemo worker --once
  doraemo chat --user alice "What does the report conclude?"`,
	SilenceUsage:      true,
	PersistentPreRunE: prepare,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&userName, "user", "u", "",
		"user whose conversation and documents are used (default "+domain.DefaultIdentityName+")")
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// SetSettingsService sets the service behind the config command.
func SetSettingsService(svc driving.SettingsService) {
	settingsService = svc
}

// SetBootstrap sets the function that builds services for commands that need them.
func SetBootstrap(b Bootstrap) {
	bootstrap = b
}

// Configure installs services directly, bypassing the bootstrap.
func Configure(s *Services) {
	if s == nil {
		s = &Services{}
	}
	chatService = s.Chat
	historyService = s.History
	ingestionService = s.Ingestion
	documentService = s.Documents
	searchService = s.Search
	uploadService = s.Upload
	workerService = s.Worker
}

// Execute runs the root command and releases whatever the bootstrap opened.
func Execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if release != nil {
		closeFn := release
		release = nil
		if cerr := closeFn(); cerr != nil {
			cerr = fmt.Errorf("closing resources: %w", cerr)
			rootCmd.PrintErrln("Error:", cerr)
			err = errors.Join(err, cerr)
		}
	}
	return err
}

// prepare applies persistent flags and builds the services a command declares.
func prepare(cmd *cobra.Command, _ []string) error {
	if verbose {
		logger.SetVerbose(true)
	}

	needs, ok := cmd.Annotations[annotationNeeds]
	if !ok || bootstrap == nil {
		return nil
	}

	svcs, closeFn, err := bootstrap(cmd.Context(), Needs{Queue: needs == needsQueue})
	if err != nil {
		return fmt.Errorf("starting doraemo: %w", err)
	}
	Configure(svcs)
	release = closeFn
	return nil
}

// currentUser returns the --user flag or the anonymous user.
func currentUser() string {
	return domain.Identity{Name: userName}.WithDefaults().Name
}

func requires(needs string) map[string]string {
	return map[string]string{annotationNeeds: needs}
}
