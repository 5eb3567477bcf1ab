package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tailored-agentic-units/exchange/core/protocol"
	"github.com/tailored-agentic-units/exchange/exchange"
	"github.com/tailored-agentic-units/exchange/extract"
	"github.com/tailored-agentic-units/exchange/observability"
	"github.com/tailored-agentic-units/exchange/session"
)

var (
	configFile string
	prompt     string
	uploadPath string
	botName    string
	provider   string
	verbose    bool
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with a model from the terminal",
	Long: `chat sends messages to the configured backend and streams the replies.

With --prompt (or --file) it runs a single exchange and exits. Otherwise it
reads one message per line from stdin. A message that is a single URL is
fetched and summarized. Interactive commands:
  /clear   start a new context window
  /retry   run the last message again
  /quit    exit

Ctrl-C stops the reply in progress.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env is not an error.
		_ = godotenv.Load()
		return configureLogging()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	RunE: runChat,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&configFile, "config", "c", "", "Path to a JSON or YAML config file")
	flags.StringVarP(&prompt, "prompt", "p", "", "Send a single message and exit")
	flags.StringVarP(&uploadPath, "file", "f", "", "Attach a file (.pdf, .txt, .md) to the message")
	flags.StringVarP(&botName, "bot", "b", "", "Bot to chat with (overrides config)")
	flags.StringVar(&provider, "provider", "", "Backend provider: gemini or echo (overrides config)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging to stderr")
	flags.StringVar(&logFormat, "log-format", "slog", "Log backend: slog or zap")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func configureLogging() error {
	switch logFormat {
	case "slog":
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		observability.RegisterObserver("slog", observability.NewSlogObserver(logger))
	case "zap":
		cfg := zap.NewDevelopmentConfig()
		if !verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		}
		logger, err := cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		zap.ReplaceGlobals(logger)
		observability.RegisterObserver("zap", observability.NewZapObserver(logger))
	default:
		return fmt.Errorf("unknown log format %q", logFormat)
	}
	return nil
}

func loadConfig() (*exchange.Config, error) {
	cfg := exchange.DefaultConfig()
	if configFile != "" {
		loaded, err := exchange.LoadConfig(configFile)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}

	cfg.Observer = logFormat
	if provider != "" {
		cfg.Backend.Provider = provider
	}
	if botName != "" {
		cfg.Bot = botName
	}
	return &cfg, nil
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	o, err := exchange.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	sess, err := o.NewSession(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	stopOnInterrupt(ctx, o, sess)

	out := cmd.OutOrStdout()

	if prompt != "" || uploadPath != "" {
		upload, err := readUpload(uploadPath)
		if err != nil {
			return err
		}
		p := newPrinter(out)
		if _, err := o.Run(ctx, sess, prompt, p.update, upload); err != nil {
			return err
		}
		p.done()
		return nil
	}

	return repl(ctx, o, sess, cmd.InOrStdin(), out)
}

func repl(ctx context.Context, o *exchange.Orchestrator, sess session.Session, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	var lastReply string

	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/clear":
			sess.ClearContext()
			fmt.Fprintln(out, "context cleared")
			continue
		case "/retry":
			if lastReply == "" {
				fmt.Fprintln(out, "nothing to retry")
				continue
			}
			p := newPrinter(out)
			reply, err := o.Retry(ctx, sess, lastReply, p.update, nil)
			if err != nil {
				fmt.Fprintf(out, "retry failed: %v\n", err)
				continue
			}
			p.done()
			lastReply = replyID(reply, sess)
			continue
		}

		p := newPrinter(out)
		reply, err := o.Run(ctx, sess, line, p.update, nil)
		if err != nil {
			return err
		}
		p.done()
		lastReply = replyID(reply, sess)
	}
}

// replyID picks the message a later /retry should target.
func replyID(reply *protocol.Message, sess session.Session) string {
	if reply != nil {
		return reply.ID
	}
	msgs := sess.Messages()
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1].ID
}

// stopOnInterrupt turns SIGINT into a stop of the session's pending
// exchanges. With nothing pending the process exits.
func stopOnInterrupt(ctx context.Context, o *exchange.Orchestrator, sess session.Session) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt)

	go func() {
		for range signals {
			if o.StopAll(ctx, sess.ID()) == 0 {
				os.Exit(130)
			}
		}
	}()
}

func readUpload(path string) (*extract.Upload, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	name := filepath.Base(path)
	return &extract.Upload{
		Name: name,
		Type: mime.TypeByExtension(filepath.Ext(name)),
		Data: data,
	}, nil
}
