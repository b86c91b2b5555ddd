package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/doraemo/internal/core/domain"
)

var (
	chatJSON      bool
	chatThread    string
	chatNewThread bool
	chatSubject   string
)

var chatCmd = &cobra.Command{
	Use:   "chat [prompt]",
	Short: "Ask the assistant a question",
	Long: `Sends a prompt to the assistant. The reply draws on your recent
conversation and on passages retrieved from your uploaded documents.

With no prompt argument, an interactive session starts when stdin is a
terminal; otherwise the prompt is read from stdin. In a session, /new
starts a new thread and /quit leaves.`,
	Args:        cobra.MaximumNArgs(1),
	Annotations: requires(needsServices),
	RunE:        runChat,
}

func init() {
	chatCmd.Flags().BoolVar(&chatJSON, "json", false, "output the reply with its sources as JSON")
	chatCmd.Flags().StringVar(&chatThread, "thread", "", "continue this conversation thread")
	chatCmd.Flags().BoolVar(&chatNewThread, "new-thread", false, "start a new conversation thread")
	chatCmd.Flags().StringVar(&chatSubject, "subject", "", "identifier recorded as the owner of the turn")
	rootCmd.AddCommand(chatCmd)
}

// chatOutput is the JSON form of a reply.
type chatOutput struct {
	Response       string         `json:"response"`
	ThreadID       string         `json:"thread_id"`
	SequenceNumber int64          `json:"sequence_number"`
	Retrieval      string         `json:"retrieval"`
	Sources        []sourceOutput `json:"sources"`
}

type sourceOutput struct {
	DocumentKey string  `json:"document_key"`
	Page        *int    `json:"page,omitempty"`
	Distance    float64 `json:"distance"`
	Text        string  `json:"text"`
}

func runChat(cmd *cobra.Command, args []string) error {
	if chatService == nil {
		return errors.New("chat service not configured")
	}

	if len(args) == 1 {
		_, err := chatOnce(cmd, args[0], chatThread, chatNewThread)
		return err
	}

	in := cmd.InOrStdin()
	if isTerminal(in) {
		return chatSession(cmd, in)
	}

	data, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("reading prompt: %w", err)
	}
	_, err = chatOnce(cmd, string(data), chatThread, chatNewThread)
	return err
}

// chatOnce sends one prompt and prints the reply.
func chatOnce(cmd *cobra.Command, prompt, threadID string, newThread bool) (*domain.ChatResponse, error) {
	resp, err := chatService.Chat(cmd.Context(), domain.ChatRequest{
		Identity:  domain.Identity{Name: userName, SubjectID: chatSubject},
		Prompt:    prompt,
		ThreadID:  threadID,
		NewThread: newThread,
	})
	if err != nil {
		return nil, fmt.Errorf("chat failed: %w", err)
	}

	if chatJSON {
		return resp, outputChatJSON(cmd, resp)
	}
	outputChatText(cmd, resp)
	return resp, nil
}

// chatSession runs an interactive loop that stays on one thread.
func chatSession(cmd *cobra.Command, in io.Reader) error {
	threadID, newThread := chatThread, chatNewThread
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	cmd.Printf("Chatting as %s. /new starts a new thread, /quit exits.\n", currentUser())
	for {
		cmd.Print("> ")
		if !scanner.Scan() {
			cmd.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/new":
			threadID, newThread = "", true
			cmd.Println("Started a new thread.")
			continue
		}

		resp, err := chatOnce(cmd, line, threadID, newThread)
		if err != nil {
			if domain.IsValidation(err) {
				cmd.PrintErrln(err)
				continue
			}
			return err
		}
		threadID, newThread = resp.Turn.ThreadID, false
		cmd.Println()
	}
}

func outputChatText(cmd *cobra.Command, resp *domain.ChatResponse) {
	cmd.Println(resp.Response)

	if resp.Retrieval.Degraded() {
		cmd.PrintErrf("(document search %s; answered from conversation only)\n", resp.Retrieval)
	}
	if len(resp.SearchResults) == 0 {
		return
	}
	cmd.Println()
	cmd.Println("Sources:")
	for i, r := range resp.SearchResults {
		cmd.Printf("  [%d] %s\n", i+1, sourceLabel(r))
	}
}

func outputChatJSON(cmd *cobra.Command, resp *domain.ChatResponse) error {
	out := chatOutput{
		Response:       resp.Response,
		ThreadID:       resp.Turn.ThreadID,
		SequenceNumber: resp.Turn.SequenceNumber,
		Retrieval:      string(resp.Retrieval),
		Sources:        make([]sourceOutput, len(resp.SearchResults)),
	}
	for i, r := range resp.SearchResults {
		out.Sources[i] = sourceOutput{
			DocumentKey: string(r.DocumentKey),
			Page:        r.Metadata.Page,
			Distance:    r.Distance,
			Text:        r.Text,
		}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal reply: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

// sourceLabel names a retrieved passage as "file, page N".
func sourceLabel(r domain.SearchResult) string {
	label := r.Metadata.Filename
	if label == "" {
		label = string(r.DocumentKey)
	}
	if r.Metadata.Page != nil {
		label = fmt.Sprintf("%s, page %d", label, *r.Metadata.Page)
	}
	return label
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd())) //nolint:gosec // G115: file descriptors fit in int
}
