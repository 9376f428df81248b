package cmd

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/michaelpento.lv/arbscan/config"
)

var chainsCmd = &cobra.Command{
	Use:   "chains",
	Short: "Print the configured chain registry",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		registry, err := cfg.Registry()
		if err != nil {
			return err
		}
		renderChains(cmd.OutOrStdout(), registry.All())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(chainsCmd)
}

func renderChains(w io.Writer, chains []config.ChainConfig) {
	table := tablewriter.NewWriter(w)
	table.Header("ID", "Name", "Chain ID", "Native", "Quoter", "Base", "Quote", "Explorer")
	for _, c := range chains {
		table.Append(
			c.ID,
			c.Name,
			fmt.Sprintf("%d", c.ChainID),
			c.NativeSymbol,
			c.Quoter.Hex(),
			fmt.Sprintf("%s (%d)", c.BaseToken.Hex(), c.BaseDecimals),
			fmt.Sprintf("%s (%d)", c.QuoteToken.Hex(), c.QuoteDecimals),
			c.ExplorerURL,
		)
	}
	table.Render()
}
