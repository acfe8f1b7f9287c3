package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	mcpadapter "github.com/kirillkom/admissions-rag/internal/adapters/mcp"
	"github.com/kirillkom/admissions-rag/internal/bootstrap"
	"github.com/kirillkom/admissions-rag/internal/config"
	"github.com/kirillkom/admissions-rag/internal/core/domain"
	"github.com/kirillkom/admissions-rag/internal/infrastructure/queue/nats"
	"github.com/kirillkom/admissions-rag/internal/observability/logging"
)

const serviceName = "ragctl"

type rootOptions struct {
	envFile string
	logJSON bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "ragctl",
		Short:         "Query the admissions assistant pipeline from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.setup(cmd.ErrOrStderr())
		},
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Dotenv file read before the environment")
	cmd.PersistentFlags().BoolVar(&opts.logJSON, "log", false, "Write JSON logs to stderr")

	cmd.AddCommand(newAskCommand())
	cmd.AddCommand(newClassifyCommand())
	cmd.AddCommand(newTracesCommand())
	cmd.AddCommand(newMCPCommand())
	return cmd
}

func (o *rootOptions) setup(stderr io.Writer) error {
	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", o.envFile, err)
		}
	}
	level := "error"
	if o.logJSON {
		level = config.Load().LogLevel
	}
	// stdout carries answers and MCP frames; logs always go to stderr.
	slog.SetDefault(logging.NewJSONLoggerTo(stderr, serviceName, level))
	return nil
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func newAskCommand() *cobra.Command {
	var (
		webSearch bool
		category  string
		stream    bool
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := domain.NewQuery(args[0], webSearch, category, nil)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd)
			defer cancel()

			app, err := bootstrap.New(ctx, config.Load(), serviceName)
			if err != nil {
				return err
			}
			defer app.Close()

			out := cmd.OutOrStdout()
			if stream {
				return printStream(out, app.Chat.Stream(ctx, query))
			}
			resp, err := app.Chat.Answer(ctx, query)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			fmt.Fprintln(out, resp.Answer)
			fmt.Fprintf(out, "\n[category=%s local=%t web=%t]\n", resp.Category, resp.HasLocalEvidence, resp.ExternalSearchUsed)
			return nil
		},
	}
	cmd.Flags().BoolVar(&webSearch, "web", false, "Consult web search as well")
	cmd.Flags().StringVar(&category, "category", "", "Category hint, e.g. COLLEGE or EXAM")
	cmd.Flags().BoolVar(&stream, "stream", false, "Print tokens as they are generated")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full response as JSON")
	return cmd
}

func printStream(out io.Writer, events <-chan domain.StreamEvent) error {
	for ev := range events {
		switch ev.Kind {
		case domain.StreamEventMeta:
			fmt.Fprintf(out, "[category=%s local=%t web=%t]\n", ev.Meta.Category, ev.Meta.HasLocalEvidence, ev.Meta.ExternalSearchUsed)
		case domain.StreamEventChunk:
			fmt.Fprint(out, ev.Text)
		case domain.StreamEventDone:
			fmt.Fprintln(out)
			return nil
		case domain.StreamEventError:
			fmt.Fprintln(out)
			return errors.New(ev.Message)
		}
	}
	return errors.New("stream ended without a terminal event")
}

func newClassifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <question>",
		Short: "Show the category and entities the router detects",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			app, err := bootstrap.New(ctx, config.Load(), serviceName)
			if err != nil {
				return err
			}
			defer app.Close()

			category, entities := app.Router.Classify(ctx, args[0])
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{"category": category, "entities": entities})
		},
	}
}

func newTracesCommand() *cobra.Command {
	var subject string
	cmd := &cobra.Command{
		Use:   "traces",
		Short: "Follow retrieval traces published by running API replicas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			if cfg.NATSURL == "" {
				return errors.New("NATS_URL is not set")
			}
			if subject == "" {
				subject = cfg.NATSTraceSubject
			}
			ctx, cancel := signalContext(cmd)
			defer cancel()

			out := cmd.OutOrStdout()
			return nats.SubscribeTraces(ctx, cfg.NATSURL, subject, func(trace domain.RetrievalTrace) {
				fmt.Fprintln(out, formatTrace(trace))
			})
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "Subject to follow (defaults to NATS_TRACE_SUBJECT)")
	return cmd
}

func formatTrace(trace domain.RetrievalTrace) string {
	return fmt.Sprintf("%s attempt=%d category=%s verdict=%s docs=%d query=%q",
		trace.Timestamp.Format("15:04:05"), trace.Attempt, trace.Category, trace.Verdict, len(trace.Documents), trace.Query)
}

func newMCPCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the assistant as MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := bootstrap.New(cmd.Context(), config.Load(), serviceName)
			if err != nil {
				return err
			}
			defer app.Close()

			slog.Info("mcp_server_starting", "name", mcpadapter.ServerName)
			return mcpadapter.ServeStdio(mcpadapter.NewTools(app.Chat, app.Router).NewServer())
		},
	}
}
