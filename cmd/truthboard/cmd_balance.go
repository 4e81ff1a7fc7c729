package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/vadiminshakov/truthboard/internal/domain"
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle     = lipgloss.NewStyle().Padding(0, 1)
	degradedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Padding(0, 1)
)

var balanceCmd = &cobra.Command{
	Use:   "balance <principal>[.<subaccount_hex>]",
	Short: "Fetch balances of one account from both ledgers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		principal, sub, _ := strings.Cut(args[0], ".")
		account, err := domain.ParseAccount(principal, sub)
		if err != nil {
			return err
		}

		d, err := loadDashboard()
		if err != nil {
			return err
		}

		p, err := d.Aggregator.Fetch(cmd.Context(), account)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), renderPortfolio(p))
		return nil
	},
}

func renderPortfolio(p domain.Portfolio) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("LEDGER", "SYMBOL", "AMOUNT", "RAW").
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row >= 0 && row < len(p.Entries) && !p.Entries[row].Available:
				return degradedStyle
			default:
				return cellStyle
			}
		})

	for _, e := range p.Entries {
		raw := e.Raw
		if !e.Available {
			raw = e.Error
		}
		t.Row(e.Ledger, e.Symbol, e.Amount, raw)
	}

	title := fmt.Sprintf("%s at %s", p.Account, p.FetchedAt.Format("2006-01-02 15:04:05"))
	return lipgloss.JoinVertical(lipgloss.Left, headerStyle.Render(title), t.Render())
}
