package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/opensource-finance/discern/internal/analysis"
	"github.com/opensource-finance/discern/internal/assistant"
	"github.com/opensource-finance/discern/internal/bus"
	"github.com/opensource-finance/discern/internal/catalog"
	"github.com/opensource-finance/discern/internal/domain"
	"github.com/opensource-finance/discern/internal/mcptools"
	"github.com/opensource-finance/discern/internal/projection"
	"github.com/opensource-finance/discern/internal/scoring"
)

// options are the persistent flags shared by every subcommand.
type options struct {
	catalogPath string
	tenant      string
	compact     bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "discernctl",
		Short:         "Lexical manipulation detection from the command line",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.catalogPath, "catalog", os.Getenv("DISCERN_CATALOG"),
		"Pattern catalog file (.json/.yaml); empty uses the embedded catalog")
	root.PersistentFlags().StringVar(&opts.tenant, "tenant", domain.DefaultTenant, "Tenant ID")
	root.PersistentFlags().BoolVar(&opts.compact, "compact", false, "Print single-line JSON")

	root.AddCommand(
		newThreatCmd(opts),
		newScanCmd(opts),
		newCheckCmd(opts),
		newQuickCmd(opts),
		newProjectCmd(opts),
		newCatalogCmd(opts),
		newMCPCmd(opts),
		newAssistantCmd(opts),
	)
	return root
}

// service builds a pure scoring service: no cache, audit log or bus.
func (o *options) service() (*analysis.Service, error) {
	cat, err := catalog.FromPath(o.catalogPath)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return analysis.New(cat, analysis.Options{}), nil
}

func (o *options) print(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	if !o.compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

// readText joins args into the input text; a single "-" or no args reads stdin.
func readText(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 0 || (len(args) == 1 && args[0] == "-") {
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return strings.TrimRight(string(b), "\n"), nil
	}
	return strings.Join(args, " "), nil
}

var threatRank = map[domain.Tier]int{
	domain.TierClear:  0,
	domain.TierLow:    1,
	domain.TierMedium: 2,
	domain.TierHigh:   3,
}

func newThreatCmd(opts *options) *cobra.Command {
	var failOn string
	cmd := &cobra.Command{
		Use:   "threat [text|-]",
		Short: "Multi-category threat report",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readText(cmd, args)
			if err != nil {
				return err
			}
			svc, err := opts.service()
			if err != nil {
				return err
			}
			report, err := svc.Detect(cmd.Context(), opts.tenant, text)
			if err != nil {
				return err
			}
			if err := opts.print(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if failOn == "" {
				return nil
			}
			limit, ok := threatRank[domain.Tier(strings.ToUpper(failOn))]
			if !ok {
				return fmt.Errorf("--fail-on: unknown level %q", failOn)
			}
			if threatRank[report.ThreatLevel] >= limit {
				return fmt.Errorf("threat level %s reached --fail-on %s", report.ThreatLevel, strings.ToUpper(failOn))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&failOn, "fail-on", "", "Exit non-zero at or above this level (LOW, MEDIUM, HIGH)")
	return cmd
}

func newScanCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "scan <detector> [text|-]",
		Short: "Run one free-text detector",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readText(cmd, args[1:])
			if err != nil {
				return err
			}
			return runAnalyze(cmd, opts, args[0], scoring.Input{Text: text})
		},
	}
}

func newCheckCmd(opts *options) *cobra.Command {
	var selected []int
	cmd := &cobra.Command{
		Use:   "check <detector>",
		Short: "Score a checklist detector",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, opts, args[0], scoring.Input{Selected: selected})
		},
	}
	cmd.Flags().IntSliceVar(&selected, "select", nil, "Zero-based indices of the signs that apply")
	return cmd
}

func runAnalyze(cmd *cobra.Command, opts *options, detector string, in scoring.Input) error {
	svc, err := opts.service()
	if err != nil {
		return err
	}
	verdict, err := svc.Analyze(cmd.Context(), opts.tenant, detector, in)
	if err != nil {
		return err
	}
	return opts.print(cmd.OutOrStdout(), verdict)
}

func newQuickCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "quick [text|-]",
		Short: "Truth/deceit split of a message",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readText(cmd, args)
			if err != nil {
				return err
			}
			svc, err := opts.service()
			if err != nil {
				return err
			}
			verdict, err := svc.Quick(cmd.Context(), opts.tenant, text)
			if err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), verdict)
		},
	}
}

func newProjectCmd(opts *options) *cobra.Command {
	var (
		pairs   []string
		pr      float64
		horizon int
	)
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Project the seven-domain vector forward",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			domains, err := projection.ParseDomains(pairs)
			if err != nil {
				return err
			}
			req := projection.Request{Domains: domains}
			if cmd.Flags().Changed("pr") {
				req.PatternRecognition = &pr
			}
			if cmd.Flags().Changed("horizon") {
				req.TimeHorizon = &horizon
			}
			svc, err := opts.service()
			if err != nil {
				return err
			}
			result, err := svc.Project(cmd.Context(), req)
			if err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringArrayVar(&pairs, "domain", nil, "Domain score as name=value; repeat for all seven domains")
	cmd.Flags().Float64Var(&pr, "pr", 0, "Pattern recognition score [0,100]")
	cmd.Flags().IntVar(&horizon, "horizon", projection.DefaultHorizon, "Milestone horizon in days")
	return cmd
}

func newCatalogCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the pattern catalog",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List detectors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := opts.service()
			if err != nil {
				return err
			}
			cat := svc.Catalog()
			return opts.print(cmd.OutOrStdout(), map[string]any{
				"version":   cat.Version(),
				"count":     cat.Len(),
				"detectors": cat.Summaries(),
			})
		},
	}, &cobra.Command{
		Use:   "show <detector>",
		Short: "Show one detector",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := opts.service()
			if err != nil {
				return err
			}
			def, ok := svc.Catalog().Get(args[0])
			if !ok {
				return fmt.Errorf("%w: detector %q", domain.ErrNotFound, args[0])
			}
			return opts.print(cmd.OutOrStdout(), def)
		},
	})
	return cmd
}

func newMCPCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the detectors as MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := opts.service()
			if err != nil {
				return err
			}
			// stdout carries the protocol; diagnostics go to stderr.
			fmt.Fprintf(cmd.ErrOrStderr(), "discern MCP server %s (%d detectors)\n", Version, svc.Catalog().Len())
			return server.ServeStdio(mcptools.NewServer(svc, opts.tenant, Version))
		},
	}
}

func newAssistantCmd(opts *options) *cobra.Command {
	cfg := domain.EventBusConfig{Type: "nats"}
	var topic string

	cmd := &cobra.Command{
		Use:   "assistant",
		Short: "Answer chat requests over NATS with the local pattern-analysis reply",
		Long: "Subscribes to the assistant topic of --tenant and answers every chat\n" +
			"request from the server with the local pattern-analysis reply.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := opts.service()
			if err != nil {
				return err
			}
			b, err := bus.NewNATSBus(cfg)
			if err != nil {
				return err
			}
			defer b.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sub, err := assistant.Serve(ctx, b, opts.tenant, topic, localResponder(svc, opts.tenant))
			if err != nil {
				return fmt.Errorf("subscribe: %w", err)
			}
			defer sub.Unsubscribe()

			fmt.Fprintf(cmd.ErrOrStderr(), "discern assistant answering %s for tenant %s\n", sub.Topic(), opts.tenant)
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&cfg.NATSUrl, "nats-url", envOr("DISCERN_NATS_URL", "nats://localhost:4222"), "NATS server URL")
	cmd.Flags().StringVar(&cfg.NATSToken, "nats-token", "", "NATS auth token")
	cmd.Flags().StringVar(&topic, "topic", domain.TopicAssistantRequest, "Assistant request topic")
	return cmd
}

// localResponder answers with the same reply the server falls back to.
func localResponder(svc *analysis.Service, tenantID string) assistant.Handler {
	return func(ctx context.Context, req assistant.Request) (string, error) {
		verdict, err := svc.Quick(ctx, tenantID, req.Message)
		if err != nil {
			return "", err
		}
		return assistant.Fallback(req.Message, verdict), nil
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
