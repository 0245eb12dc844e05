package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sesm/sesm/internal/client"
)

var (
	writeTTL  time.Duration
	serverURL string
)

var writeCmd = &cobra.Command{
	Use:   "write [content]",
	Short: "Mention an event",
	Long:  "Write an event to a running server. Repeating an event soon after the first mention promotes it to knowledge.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runWrite,
}

var listCmd = &cobra.Command{
	Use:       "list [episodic|knowledge|all]",
	Short:     "List memories",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"episodic", "knowledge", "all"},
	RunE:      runList,
}

var historyCmd = &cobra.Command{
	Use:   "history [id]",
	Short: "Show the recorded transitions of a memory",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func init() {
	writeCmd.Flags().DurationVar(&writeTTL, "ttl", 0, "Time to live for a new event (default: server default)")

	for _, c := range []*cobra.Command{writeCmd, listCmd, historyCmd} {
		c.Flags().StringVar(&serverURL, "url", "", "Server URL (default: $SESM_CLIENT__URL or http://127.0.0.1:8000)")
	}
}

func newClient(cmd *cobra.Command) (*client.Client, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	c := client.New(cfg.Client.URL, cfg.Client.Timeout)
	if !c.Healthy(cmd.Context()) {
		return nil, fmt.Errorf("no sesm server at %s (start one with 'sesm serve')", cfg.Client.URL)
	}
	return c, nil
}

func runWrite(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	if writeTTL < 0 || (writeTTL > 0 && writeTTL < time.Second) {
		return fmt.Errorf("--ttl must be at least 1s")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	it, err := c.Write(ctx, strings.Join(args, " "), writeTTL)
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}
	printItem(cmd.OutOrStdout(), *it)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	which := "all"
	if len(args) > 0 {
		which = args[0]
	}
	c, err := newClient(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	items, err := c.List(ctx, which)
	if err != nil {
		return fmt.Errorf("list: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(items) == 0 {
		fmt.Fprintln(out, "No memories.")
		return nil
	}
	for _, it := range items {
		printItem(out, it)
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	hist, err := c.History(ctx, args[0])
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}
	out := cmd.OutOrStdout()
	for _, tr := range hist {
		fmt.Fprintf(out, "%s  %-10s %-9s mentions=%d trust=%.1f\n",
			tr.At.Local().Format(time.DateTime), tr.Event, tr.Type, tr.Mentions, tr.Trust)
	}
	return nil
}

func printItem(w io.Writer, it client.Item) {
	ttl := "-"
	if it.TTLSeconds != nil {
		remaining := time.Until(it.CreatedAt.Add(time.Duration(*it.TTLSeconds) * time.Second))
		ttl = remaining.Truncate(time.Second).String()
	}
	fmt.Fprintf(w, "[%s] %-9s x%d trust=%.1f ttl=%s  %s\n", it.ID, it.Type, it.Mentions, it.Trust, ttl, it.Content)
}
