// Nuggets CLI - command line client for the nugget ledger
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sendmedown/bio-quantum-platform/clients/go/nuggets"
)

// rootOptions holds global flags for all commands.
type rootOptions struct {
	URL   string
	Token string
	JSON  bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "nuggets",
		Short:         "Nuggets CLI - record and inspect interaction nuggets",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.URL, "url", os.Getenv("NUGGETS_URL"), "server URL (env NUGGETS_URL)")
	cmd.PersistentFlags().StringVar(&opts.Token, "token", "", "bearer token (env NUGGETS_TOKEN, or saved by login)")
	cmd.PersistentFlags().BoolVar(&opts.JSON, "json", false, "print raw JSON responses")

	cmd.AddCommand(
		newLoginCommand(opts),
		newCreateCommand(opts),
		newQueryCommand(opts),
		newOutcomeCommand(opts),
		newTimelineCommand(opts),
		newRelatedCommand(opts),
		newSessionCommand(opts),
		newAuditCommand(opts),
		newSharedCommand(opts),
		newHealthCommand(opts),
		newStatsCommand(opts),
		newWatchCommand(opts),
	)
	return cmd
}

func (o *rootOptions) client() *nuggets.Client {
	c := nuggets.NewClient(o.URL)
	if o.Token != "" {
		c.Token = o.Token
	}
	return c
}

func newLoginCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "login <token>",
		Short: "Save a bearer token and server URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := opts.client()
			c.Token = args[0]
			if err := c.SaveConfig(); err != nil {
				return err
			}
			fmt.Printf("Saved credentials for %s\n", c.BaseURL)
			return nil
		},
	}
}

func newCreateCommand(opts *rootOptions) *cobra.Command {
	var req nuggets.CreateRequest
	var tags, related string

	cmd := &cobra.Command{
		Use:   "create <content>",
		Short: "Record a nugget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Content = args[0]
			req.SemanticIndex = splitList(tags)
			req.RelatedNuggets = splitList(related)

			resp, err := opts.client().Create(cmd.Context(), req)
			if err != nil {
				return err
			}
			if opts.JSON {
				return printJSON(resp)
			}
			fmt.Printf("Created: %s (session %s)\n", resp.NuggetID, resp.SessionID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&req.SessionID, "session", "s", "", "session ID")
	cmd.Flags().StringVarP(&req.PromptID, "prompt", "p", "", "prompt ID")
	cmd.Flags().StringVar(&req.Type, "type", "", "nugget type (default Condition)")
	cmd.Flags().StringVar(&req.Origin, "origin", "", "origin (default User)")
	cmd.Flags().StringVar(&req.RiskLevel, "risk", "", "risk level")
	cmd.Flags().StringVar(&req.TemporalCluster, "cluster", "", "temporal cluster")
	cmd.Flags().StringVar(&tags, "tags", "", "comma-separated semantic tags")
	cmd.Flags().StringVar(&related, "related", "", "comma-separated related nugget IDs")
	cmd.MarkFlagRequired("session")
	cmd.MarkFlagRequired("prompt")
	return cmd
}

func newQueryCommand(opts *rootOptions) *cobra.Command {
	var f nuggets.Filters

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Find nuggets matching every given filter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := opts.client().Query(cmd.Context(), f)
			if err != nil {
				return err
			}
			if opts.JSON {
				return printJSON(resp)
			}
			printNuggets(resp.Nuggets)
			return nil
		},
	}

	cmd.Flags().StringVarP(&f.SessionID, "session", "s", "", "session ID")
	cmd.Flags().StringVar(&f.RiskLevel, "risk", "", "risk level")
	cmd.Flags().StringVar(&f.Agent, "agent", "", "attributed agent")
	cmd.Flags().StringVar(&f.Strategy, "strategy", "", "content substring")
	cmd.Flags().StringVar(&f.TemporalCluster, "cluster", "", "temporal cluster")
	return cmd
}

func newOutcomeCommand(opts *rootOptions) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "outcome <nugget_id> <json>",
		Short: "Attach an outcome to a nugget",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var outcome map[string]any
			if err := json.Unmarshal([]byte(args[1]), &outcome); err != nil {
				return fmt.Errorf("outcome must be a JSON object: %w", err)
			}

			resp, err := opts.client().SetOutcome(cmd.Context(), sessionID, args[0], outcome)
			if err != nil {
				return err
			}
			if opts.JSON {
				return printJSON(resp)
			}
			fmt.Printf("Outcome set on %s\n", resp.NuggetID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session ID (resolved from the nugget when omitted)")
	return cmd
}

func newTimelineCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "timeline <nugget_id>",
		Short: "Show a nugget's history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := opts.client().Timeline(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if opts.JSON {
				return printJSON(resp)
			}
			for _, ev := range resp.Timeline {
				fmt.Printf("[%s] %s\n", ev.Timestamp.Format("2006-01-02 15:04:05"), ev.Event)
			}
			return nil
		},
	}
}

func newRelatedCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "related <nugget_id>",
		Short: "List a nugget's related nuggets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := opts.client().Related(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if opts.JSON {
				return printJSON(resp)
			}
			printNuggets(resp.Nuggets)
			return nil
		},
	}
}

func newSessionCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "session <session_id>",
		Short: "List a session's nuggets in commit order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := opts.client().Session(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if opts.JSON {
				return printJSON(resp)
			}
			printNuggets(resp.Nuggets)
			return nil
		},
	}
}

func newAuditCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Show the compliance log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := opts.client().Audit(cmd.Context())
			if err != nil {
				return err
			}
			if opts.JSON {
				return printJSON(resp)
			}
			for _, e := range resp.Entries {
				fmt.Printf("%6d [%s] %-14s %s %s\n", e.Seq, e.Timestamp.Format("2006-01-02 15:04:05"), e.Action, e.SessionID, e.NuggetID)
			}
			return nil
		},
	}
}

func newSharedCommand(opts *rootOptions) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "shared",
		Short: "List items shared over live connections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := opts.client().Shared(cmd.Context(), sessionID)
			if err != nil {
				return err
			}
			if opts.JSON {
				return printJSON(resp)
			}
			for _, it := range resp.Items {
				fmt.Printf("  %s  %s %s\n", it.ID, it.Name, it.URL)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session ID")
	return cmd
}

func newHealthCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := opts.client().Health(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(resp)
		},
	}
}

func newStatsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show ledger statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := opts.client().Stats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(resp)
		},
	}
}

func newWatchCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [session_id]",
		Short: "Stream live updates for a session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID := ""
			if len(args) > 0 {
				sessionID = args[0]
			}
			return opts.client().Watch(cmd.Context(), sessionID, func(ev nuggets.Event) error {
				if opts.JSON {
					return printJSON(ev)
				}
				switch ev.Type {
				case "connection_established":
					fmt.Printf("Connected: %s (session %s)\n", ev.ConnectionID, ev.SessionID)
				case "nugget_update":
					fmt.Printf("[%s] %s %s: %s\n", ev.Timestamp.Format("15:04:05"), ev.NuggetType, ev.Nugget.ID, ev.Content)
				case "error":
					fmt.Fprintf(os.Stderr, "server: %s %s\n", ev.Code, ev.Error)
				}
				return nil
			})
		},
	}
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func printNuggets(list []nuggets.Nugget) {
	for _, n := range list {
		ts := n.Timestamp.Format("2006-01-02 15:04:05")
		fmt.Printf("[%s] %s %-10s %s\n", ts, n.ID, n.Type, n.Content)
	}
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
