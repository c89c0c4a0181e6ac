package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/triage-ai/lark-agent/internal/config"
	"github.com/triage-ai/lark-agent/internal/dispatch"
	"github.com/triage-ai/lark-agent/internal/engine"
	"github.com/triage-ai/lark-agent/internal/i18n"
	"github.com/triage-ai/lark-agent/internal/mcp"
	"github.com/triage-ai/lark-agent/internal/storage"
	"github.com/triage-ai/lark-agent/internal/store"
)

var errNoPostgres = errors.New("POSTGRES_DSN is not set")

type app struct {
	getenv func(string) string // nil reads .env and the process environment
	logger *zap.Logger
}

func (a *app) config() (*config.Config, error) {
	if a.getenv == nil {
		return config.Load(a.logger)
	}
	return config.FromEnv(a.getenv, a.logger)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "agentctl",
		Short:         "Operate the Lark agent",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newAnalyzeCmd(),
		newResolveCmd(a),
		newDispatchCmd(a),
		newClientsCmd(a),
		newMigrateCmd(a),
	)
	return root
}

// AnalysisOutput is printed by analyze and resolve.
type AnalysisOutput struct {
	Normalized string `json:"normalized"`
	Category   string `json:"category"`
	Action     string `json:"action"`
	Confidence int    `json:"confidence"`
	ShouldAsk  bool   `json:"should_ask"`
	Table      *TableOutput `json:"table,omitempty"`
	Verdict    string       `json:"verdict,omitempty"`
	Reason     string       `json:"reason,omitempty"`
}

// TableOutput is the resolved table printed by resolve.
type TableOutput struct {
	Name   string `json:"name,omitempty"`
	ID     string `json:"id,omitempty"`
	Status string `json:"status"`
}

func newAnalyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "analyze <text>",
		Short:   "Print the normalized text and detected intent",
		Example: `  agentctl analyze "ดูข้อมูลลูกค้าทั้งหมด"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			normalized := engine.NewNormalizer().Normalize(strings.Join(args, " "))
			intent := engine.NewAnalyzer().Analyze(normalized)
			return printJSON(cmd.OutOrStdout(), AnalysisOutput{
				Normalized: normalized,
				Category:   intent.Category.String(),
				Action:     intent.Action.String(),
				Confidence: intent.Confidence,
				ShouldAsk:  intent.ShouldAsk,
			})
		},
	}
}

func newResolveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <text>",
		Short: "Resolve the target table using TABLE_MAP_JSON and ALLOWED_TABLE_IDS_JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			eng := engine.New(cfg, nil, nil, nil, &storage.MemoryWriter{}, a.logger)
			turn := eng.Prepare(engine.TaskRequest{Text: strings.Join(args, " ")})

			out := AnalysisOutput{
				Normalized: turn.Normalized,
				Category:   turn.Intent.Category.String(),
				Action:     turn.Intent.Action.String(),
				Confidence: turn.Intent.Confidence,
				ShouldAsk:  turn.Intent.ShouldAsk,
				Table: &TableOutput{
					Name:   turn.Table.Name,
					ID:     turn.Table.ID,
					Status: turn.Table.Status.String(),
				},
				Verdict: turn.Assessment.Verdict.String(),
				Reason:  turn.Assessment.Reason,
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}

func newDispatchCmd(a *app) *cobra.Command {
	var rawParams string
	cmd := &cobra.Command{
		Use:   "dispatch <command>",
		Short: "Run a structured command against the configured tool server",
		Example: `  agentctl dispatch "list tables"
  agentctl dispatch "list records" --params '{"table_id":"tblXXXX","page_size":5}'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParams(rawParams)
			if err != nil {
				return err
			}
			cfg, err := a.config()
			if err != nil {
				return err
			}
			bundle, err := i18n.NewBundle()
			if err != nil {
				return err
			}
			client, err := mcp.NewClient(cfg.MCP, cfg.Lock, a.logger)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			router, err := dispatch.NewRouter(client, dispatch.Options{
				BaseID:  cfg.Lock.BaseID,
				Allowed: cfg.Allowed,
				Timeout: cfg.MCP.Timeout,
			}, i18n.LocalizerFunc(bundle, cfg.Locale), &storage.MemoryWriter{}, a.logger)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()
			_, err = fmt.Fprintln(cmd.OutOrStdout(), router.Dispatch(ctx, strings.Join(args, " "), params))
			return err
		},
	}
	cmd.Flags().StringVar(&rawParams, "params", "", "JSON object of command parameters")
	return cmd
}

func parseParams(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var params map[string]any
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return nil, fmt.Errorf("--params must be a JSON object: %w", err)
	}
	return params, nil
}

func newClientsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clients",
		Short: "Manage API clients stored in Postgres",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "create <name>",
		Short: "Create a client and print its API key once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(ctx context.Context, s *store.Store) error {
				c, key, err := s.CreateClient(ctx, args[0])
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "id:      %s\nname:    %s\napi_key: %s\n", c.ID, c.Name, key)
				return err
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List clients",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(cmd.Context(), func(ctx context.Context, s *store.Store) error {
				clients, err := s.ListClients(ctx)
				if err != nil {
					return err
				}
				return printClients(cmd.OutOrStdout(), clients)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke a client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(ctx context.Context, s *store.Store) error {
				c, err := s.RevokeClient(ctx, args[0])
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "revoked %s (%s)\n", c.ID, c.Name)
				return err
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rotate <id>",
		Short: "Issue a new API key for an active client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(ctx context.Context, s *store.Store) error {
				c, key, err := s.RotateAPIKey(ctx, args[0])
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "id:      %s\napi_key: %s\n", c.ID, key)
				return err
			})
		},
	})
	return cmd
}

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the Postgres tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(cmd.Context(), func(ctx context.Context, s *store.Store) error {
				if err := s.Migrate(ctx); err != nil {
					return err
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "ok")
				return err
			})
		},
	}
}

func (a *app) withStore(ctx context.Context, fn func(context.Context, *store.Store) error) error {
	cfg, err := a.config()
	if err != nil {
		return err
	}
	if cfg.PostgresDSN == "" {
		return errNoPostgres
	}
	db, err := store.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	return fn(ctx, store.NewStore(db))
}

func printClients(w io.Writer, clients []*store.APIClient) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPREFIX\tSTATUS\tCREATED")
	for _, c := range clients {
		status := "active"
		if !c.Active() {
			status = "revoked"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", c.ID, c.Name, c.APIKeyPrefix, status, c.CreatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
