package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jweetan/newsvet/internal/model"
	"github.com/jweetan/newsvet/internal/pipeline"
)

var (
	chatIndexPath string
	chatSession   string
)

var chatCmd = &cobra.Command{
	Use:   "chat [question]",
	Short: "Ask questions grounded in the indexed articles",
	Long: `Starts an interactive session over the article index. With a question
argument it answers once and exits. Type /clear to reset the session
and /quit to leave.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatIndexPath, "index", "", "index database path")
	chatCmd.Flags().StringVar(&chatSession, "session", "", "session id (default random)")
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	if chatIndexPath != "" {
		cfg.Index.Path = chatIndexPath
	}

	if err := requireAPIKey(cfg); err != nil {
		return err
	}

	log := buildLogger(cfg)
	defer log.Sync()

	p, err := pipeline.New(cfg, log)
	if err != nil {
		return err
	}
	defer p.Close()

	mgr := p.NewChatManager()
	session := chatSession
	if session == "" {
		session = uuid.NewString()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if len(args) == 1 {
		return askOnce(ctx, mgr, session, args[0])
	}

	fmt.Println("newsvet chat. /clear resets the session, /quit exits.")
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit", line == "/exit":
			return nil
		case line == "/clear":
			mgr.Clear(session)
			fmt.Println("session cleared")
			continue
		}
		if err := askOnce(ctx, mgr, session, line); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
	return scanner.Err()
}

type chatResponder interface {
	Respond(ctx context.Context, sessionID, userText string) (*model.ChatReply, error)
}

func askOnce(ctx context.Context, mgr chatResponder, session, question string) error {
	reply, err := mgr.Respond(ctx, session, question)
	if err != nil {
		return err
	}
	fmt.Println(reply.Message.Text)
	if reply.GroundingDegraded {
		fmt.Fprintln(os.Stderr, "note: retrieval unavailable, answered without article grounding")
	} else if len(reply.Grounding) > 0 {
		fmt.Println("\nSources:")
		for _, g := range reply.Grounding {
			title := g.Metadata.Title
			if title == "" {
				title = g.ContentHash[:12]
			}
			fmt.Printf("  - %s (%s)\n", title, g.Metadata.SourceURL)
		}
	}
	return nil
}
