package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/michaelpento.lv/arbscan/types"
)

var statusAddr string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the statistics and opportunities of a running scanner",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		state, err := fetchStatus(ctx, http.DefaultClient, statusAddr)
		if err != nil {
			return err
		}
		renderStatus(cmd.OutOrStdout(), state)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVar(&statusAddr, "addr", "http://localhost:3001", "control API base URL")
}

func fetchStatus(ctx context.Context, client *http.Client, addr string) (*types.ScannerState, error) {
	url := strings.TrimRight(addr, "/") + "/status"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status request failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var state types.ScannerState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return nil, fmt.Errorf("failed to decode status: %w", err)
	}
	return &state, nil
}

func renderStatus(w io.Writer, state *types.ScannerState) {
	running := color.New(color.FgRed).Sprint("stopped")
	if state.IsRunning {
		running = color.New(color.FgGreen).Sprint("running")
	}
	fmt.Fprintf(w, "Scanner %s (dry run: %t, uptime %s)\n\n",
		running, state.IsDryRun, time.Duration(state.UptimeSeconds*float64(time.Second)).Truncate(time.Second))

	s := state.Statistics
	stats := tablewriter.NewWriter(w)
	stats.Header("Scans", "Skipped", "Positive", "Negative", "Profitable", "Unavailable", "Chain errors", "Avg bps", "Min bps", "Max bps", "Current")
	stats.Append(
		fmt.Sprintf("%d", s.TotalScans),
		fmt.Sprintf("%d", s.SkippedTicks),
		fmt.Sprintf("%d", s.PositiveSpreadCount),
		fmt.Sprintf("%d", s.NegativeSpreadCount),
		fmt.Sprintf("%d", s.ProfitableCount),
		fmt.Sprintf("%d", s.UnavailableCount),
		fmt.Sprintf("%d", s.ChainErrorCount),
		fmt.Sprintf("%.2f", s.AvgSpreadBps),
		fmt.Sprintf("%.2f", s.MinSpreadBps),
		fmt.Sprintf("%.2f", s.MaxSpreadBps),
		s.CurrentChain,
	)
	stats.Render()

	fmt.Fprintln(w)
	chains := tablewriter.NewWriter(w)
	chains.Header("Chain", "Gas (gwei)", "Ref price", "Balance", "Last sweep", "Last error")
	for _, c := range state.Chains {
		last := "-"
		if c.LastSweep != nil {
			last = c.LastSweep.Format(time.RFC3339)
		}
		if c.Stale {
			last = color.YellowString("%s (stale)", last)
		}
		chains.Append(
			c.ID,
			fmt.Sprintf("%.4f", c.GasPriceGwei),
			fmt.Sprintf("%.2f", c.ReferencePrice),
			orDash(c.Balance),
			last,
			orDash(c.LastError),
		)
	}
	chains.Render()

	fmt.Fprintln(w)
	if len(state.Opportunities) == 0 {
		fmt.Fprintln(w, "No profitable opportunities")
		return
	}

	opps := tablewriter.NewWriter(w)
	opps.Header("Time", "Chain", "Route", "Amount in", "Amount out", "Spread bps", "Net profit $", "Status")
	for _, o := range state.Opportunities {
		opps.Append(
			o.Timestamp.Format(time.RFC3339),
			o.ChainID,
			o.Route,
			o.AmountIn.String(),
			o.AmountOut.String(),
			fmt.Sprintf("%.2f", o.SpreadBps),
			fmt.Sprintf("%.4f", o.NetProfitFiat),
			statusLabel(o.Status),
		)
	}
	opps.Render()
}

func statusLabel(status types.Status) string {
	switch status {
	case types.StatusProfitable:
		return color.New(color.FgGreen).Sprint(status)
	case types.StatusPositiveSpreadNoProfit:
		return color.New(color.FgYellow).Sprint(status)
	default:
		return color.New(color.FgRed).Sprint(status)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
