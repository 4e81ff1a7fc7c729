// Package setup contains the interactive configuration wizard.
package setup

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/truthboard/config"
	"github.com/vadiminshakov/truthboard/internal/domain"
)

const title = "TRUTHBOARD CONFIG WIZARD"

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

// Answers holds the raw wizard input.
type Answers struct {
	Gateway         string
	Listen          string
	RefreshInterval string
	RequestTimeout  string
	RateLimit       string
	Accounts        string

	PrimaryCanister   string
	SecondaryName     string
	SecondaryCanister string
	SecondaryDecimals string
}

// DefaultAnswers pre-fills the wizard from config.Default.
func DefaultAnswers() Answers {
	def := config.Default()
	return Answers{
		Gateway:           "http://127.0.0.1:4943",
		Listen:            ":8080",
		RefreshInterval:   "1m",
		RequestTimeout:    "30s",
		PrimaryCanister:   def.Primary.CanisterID,
		SecondaryName:     def.Secondary.Name,
		SecondaryCanister: def.Secondary.CanisterID,
		SecondaryDecimals: "8",
	}
}

// RunTUI launches the terminal configuration wizard and writes the result to path.
func RunTUI(path string) error {
	a := DefaultAnswers()
	var confirm bool

	// step 1: gateway
	screen("STEP 1: GATEWAY")
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Point the dashboard at a replica.\n"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Gateway URL").
				Description("Boundary node or local replica (e.g. https://icp-api.io)").
				Value(&a.Gateway).
				Validate(validateGateway),
			huh.NewInput().
				Title("Listen address").
				Value(&a.Listen),
		),
	).Run()
	if err != nil {
		return err
	}

	// step 2: ledgers
	screen("STEP 2: LEDGERS")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("ICP ledger canister").
				Value(&a.PrimaryCanister).
				Validate(validatePrincipal),
			huh.NewInput().
				Title("Token ledger name").
				Value(&a.SecondaryName).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("name cannot be empty")
					}
					if s == "icp" {
						return fmt.Errorf("name must differ from the ICP ledger")
					}
					return nil
				}),
			huh.NewInput().
				Title("Token ledger canister").
				Description("ICRC-1 ledger").
				Value(&a.SecondaryCanister).
				Validate(validatePrincipal),
			huh.NewInput().
				Title("Token decimals").
				Value(&a.SecondaryDecimals).
				Validate(validateNonNegativeInt),
		),
	).Run()
	if err != nil {
		return err
	}

	// step 3: accounts
	screen("STEP 3: ACCOUNTS")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewText().
				Title("Accounts to watch").
				Description("One per line: principal or principal.subaccount_hex").
				Value(&a.Accounts).
				Validate(validateAccounts),
		),
	).Run()
	if err != nil {
		return err
	}

	// step 4: timing
	screen("STEP 4: TIMING")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Refresh interval").
				Description("Duration string (e.g. 30s, 1m, 5m)").
				Value(&a.RefreshInterval).
				Validate(validatePositiveDuration),
			huh.NewInput().
				Title("Request timeout").
				Description("Force-settle slow calls, 0 disables").
				Value(&a.RequestTimeout).
				Validate(validateDuration),
			huh.NewInput().
				Title("Gateway rate limit").
				Description("Requests per second, empty for unlimited").
				Value(&a.RateLimit).
				Validate(validateRate),
		),
	).Run()
	if err != nil {
		return err
	}

	// confirmation
	screen("FINAL CONFIRMATION")
	summary := fmt.Sprintf(
		"Gateway: %s\nLedgers: icp (%s), %s (%s)\nAccounts: %d\nRefresh: %s\n",
		a.Gateway, a.PrimaryCanister, a.SecondaryName, a.SecondaryCanister, len(splitAccounts(a.Accounts)), a.RefreshInterval,
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}
	if !confirm {
		return fmt.Errorf("setup cancelled by user")
	}

	cfgTmp, err := a.Build()
	if err != nil {
		return err
	}
	if err := Save(path, cfgTmp); err != nil {
		return err
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s", path)))
	return nil
}

// Build converts the answers into a raw config and checks that it parses.
func (a Answers) Build() (config.ConfigTmp, error) {
	cfgTmp := config.Default()
	cfgTmp.Gateway = strings.TrimSpace(a.Gateway)
	cfgTmp.Listen = strings.TrimSpace(a.Listen)
	cfgTmp.RateLimitStr = strings.TrimSpace(a.RateLimit)
	cfgTmp.Accounts = splitAccounts(a.Accounts)

	if a.RefreshInterval != "" {
		d, err := time.ParseDuration(a.RefreshInterval)
		if err != nil {
			return config.ConfigTmp{}, fmt.Errorf("refresh interval: %w", err)
		}
		cfgTmp.RefreshInterval = d
	}
	if a.RequestTimeout != "" {
		d, err := time.ParseDuration(a.RequestTimeout)
		if err != nil {
			return config.ConfigTmp{}, fmt.Errorf("request timeout: %w", err)
		}
		cfgTmp.RequestTimeout = d
	}

	cfgTmp.Primary.CanisterID = strings.TrimSpace(a.PrimaryCanister)
	cfgTmp.Secondary.Name = strings.TrimSpace(a.SecondaryName)
	cfgTmp.Secondary.Symbol = strings.ToUpper(cfgTmp.Secondary.Name)
	cfgTmp.Secondary.CanisterID = strings.TrimSpace(a.SecondaryCanister)
	cfgTmp.Secondary.DecimalsStr = strings.TrimSpace(a.SecondaryDecimals)

	if _, err := config.Parse(cfgTmp); err != nil {
		return config.ConfigTmp{}, err
	}
	return cfgTmp, nil
}

// Save writes the raw config as YAML.
func Save(path string, cfgTmp config.ConfigTmp) error {
	data, err := yaml.Marshal(cfgTmp)
	if err != nil {
		return fmt.Errorf("failed to generate yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}
	return nil
}

func screen(step string) {
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render(title))
	fmt.Println(stepStyle.Render(step))
}

func splitAccounts(s string) []string {
	var out []string
	for _, line := range strings.FieldsFunc(s, func(r rune) bool { return r == '\n' || r == ',' }) {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func validateGateway(s string) error {
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		return fmt.Errorf("must start with http:// or https://")
	}
	return nil
}

func validatePrincipal(s string) error {
	_, err := domain.ParsePrincipal(strings.TrimSpace(s))
	return err
}

func validateAccounts(s string) error {
	for _, text := range splitAccounts(s) {
		principal, sub, _ := strings.Cut(text, ".")
		if _, err := domain.ParseAccount(principal, sub); err != nil {
			return fmt.Errorf("%s: %w", text, err)
		}
	}
	return nil
}

func validateDuration(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	if d < 0 {
		return fmt.Errorf("must not be negative")
	}
	return nil
}

func validatePositiveDuration(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	if d <= 0 {
		return fmt.Errorf("must be positive")
	}
	return nil
}

func validateRate(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("must be a valid number")
	}
	if d.IsNegative() {
		return fmt.Errorf("must not be negative")
	}
	return nil
}

func validateNonNegativeInt(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("must be an integer")
	}
	if n < 0 {
		return fmt.Errorf("must not be negative")
	}
	return nil
}
