package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/iho/satledger/internal/adapter/http/dto"
	"github.com/iho/satledger/internal/infrastructure/config"
	"github.com/iho/satledger/internal/infrastructure/logger"
	"github.com/iho/satledger/internal/infrastructure/postgres"
)

var (
	baseURL string
	timeout time.Duration
	asJSON  bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "satledger-cli",
		Short:         "SatLedger CLI tool",
		Long:          `A command line interface for operating a SatLedger wallet server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&baseURL, "url", "http://localhost:8080", "Base URL of the SatLedger API")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")
	rootCmd.PersistentFlags().BoolVar(&asJSON, "json", false, "Print raw JSON responses")

	rootCmd.AddCommand(ledgerCmd(), walletCmd(), invoiceCmd(), payCmd(), nodesCmd(), migrateCmd())
	return rootCmd
}

// apiError is a non-2xx answer from the server.
type apiError struct {
	Status int
	Body   dto.ErrorResponse
}

func (e *apiError) Error() string {
	if e.Body.Message != "" {
		return fmt.Sprintf("%s (status %d): %s", e.Body.Error, e.Status, e.Body.Message)
	}
	return fmt.Sprintf("%s (status %d)", e.Body.Error, e.Status)
}

type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient() *apiClient {
	return &apiClient{baseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

func (c *apiClient) get(path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *apiClient) post(path, idempotencyKey string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	return c.do(req, out)
}

func (c *apiClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &apiError{Status: resp.StatusCode}
		if err := json.Unmarshal(body, &apiErr.Body); err != nil || apiErr.Body.Error == "" {
			apiErr.Body.Error = truncate(string(bytes.TrimSpace(body)), 200)
		}
		// The consistency endpoint reports its findings alongside a 409.
		if resp.StatusCode == http.StatusConflict && out != nil {
			_ = json.Unmarshal(body, out)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func ledgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Ledger operations",
	}

	consistencyCmd := &cobra.Command{
		Use:   "consistency",
		Short: "Check ledger consistency",
		RunE: func(cmd *cobra.Command, args []string) error {
			var report dto.ConsistencyResponse
			err := newAPIClient().get("/api/v1/ledger/consistency", nil, &report)

			var apiErr *apiError
			if err != nil && !(errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict) {
				return err
			}
			if asJSON {
				printJSON(cmd.OutOrStdout(), report)
			} else {
				printConsistency(cmd.OutOrStdout(), report)
			}
			if err != nil {
				return errors.New("consistency check FAILED")
			}
			return nil
		},
	}

	var (
		account  string
		walletID string
		hash     string
		limit    int
		offset   int
	)
	entriesCmd := &cobra.Command{
		Use:   "entries",
		Short: "List ledger entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			setIfNotEmpty(q, "account", account)
			setIfNotEmpty(q, "wallet_id", walletID)
			setIfNotEmpty(q, "hash", hash)
			q.Set("limit", strconv.Itoa(limit))
			q.Set("offset", strconv.Itoa(offset))

			var entries []dto.EntryResponse
			if err := newAPIClient().get("/api/v1/ledger/entries", q, &entries); err != nil {
				return err
			}
			if asJSON {
				printJSON(cmd.OutOrStdout(), entries)
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tACCOUNT\tCURRENCY\tAMOUNT\tTYPE\tPENDING\tHASH")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%t\t%s\n",
					e.Timestamp.Format(time.RFC3339), e.AccountPath, e.Currency, e.Amount, e.Type, e.Pending, truncate(e.Hash, 20))
			}
			return tw.Flush()
		},
	}
	entriesCmd.Flags().StringVar(&account, "account", "", "Account path")
	entriesCmd.Flags().StringVar(&walletID, "wallet", "", "Wallet id")
	entriesCmd.Flags().StringVar(&hash, "hash", "", "Settlement hash")
	entriesCmd.Flags().IntVar(&limit, "limit", 50, "Maximum entries")
	entriesCmd.Flags().IntVar(&offset, "offset", 0, "Entries to skip")

	cmd.AddCommand(consistencyCmd, entriesCmd)
	return cmd
}

func printConsistency(w io.Writer, report dto.ConsistencyResponse) {
	if report.Consistent {
		fmt.Fprintln(w, "Consistency check PASSED")
	} else {
		fmt.Fprintln(w, "Consistency check FAILED")
	}
	fmt.Fprintf(w, "Status: %s\n", report.Status)
	for currency, total := range report.Totals {
		fmt.Fprintf(w, "Total %s: %d\n", currency, total)
	}
	if report.UnbalancedTransactions > 0 {
		fmt.Fprintf(w, "Unbalanced transactions: %d\n", report.UnbalancedTransactions)
	}
}

func walletCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Wallet queries",
	}

	var currency, view string
	balanceCmd := &cobra.Command{
		Use:   "balance <wallet-id>",
		Short: "Show a wallet balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			setIfNotEmpty(q, "currency", currency)
			setIfNotEmpty(q, "view", view)

			var bal dto.BalanceResponse
			if err := newAPIClient().get("/api/v1/wallets/"+url.PathEscape(args[0])+"/balance", q, &bal); err != nil {
				return err
			}
			if asJSON {
				printJSON(cmd.OutOrStdout(), bal)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s balance: %d %s\n", bal.WalletID, bal.View, bal.Balance, bal.Unit)
			return nil
		},
	}
	balanceCmd.Flags().StringVar(&currency, "currency", "", "Currency (BTC or USD); defaults to the wallet currency")
	balanceCmd.Flags().StringVar(&view, "view", "", "Balance view: spendable, settled or including_pending")

	var limit, offset int
	txCmd := &cobra.Command{
		Use:   "transactions <wallet-id>",
		Short: "List wallet transactions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			q.Set("limit", strconv.Itoa(limit))
			q.Set("offset", strconv.Itoa(offset))

			var txs []dto.WalletTransactionResponse
			if err := newAPIClient().get("/api/v1/wallets/"+url.PathEscape(args[0])+"/transactions", q, &txs); err != nil {
				return err
			}
			if asJSON {
				printJSON(cmd.OutOrStdout(), txs)
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tTYPE\tAMOUNT\tFEE\tUSD\tPENDING\tDESCRIPTION")
			for _, tx := range txs {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%t\t%s\n",
					tx.Timestamp.Format(time.RFC3339), tx.Type, tx.Amount, tx.Fee, tx.Usd.StringFixed(2), tx.Pending, truncate(tx.Description, 40))
			}
			return tw.Flush()
		},
	}
	txCmd.Flags().IntVar(&limit, "limit", 20, "Maximum transactions")
	txCmd.Flags().IntVar(&offset, "offset", 0, "Transactions to skip")

	cmd.AddCommand(balanceCmd, txCmd)
	return cmd
}

func invoiceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invoice",
		Short: "Invoice operations",
	}

	var (
		walletID string
		currency string
		amount   int64
		memo     string
		key      string
	)
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a lightning invoice",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := dto.CreateInvoiceRequest{WalletID: walletID, Currency: currency, Memo: memo}
			if cmd.Flags().Changed("amount") {
				req.Amount = &amount
			}

			var inv dto.InvoiceResponse
			if err := newAPIClient().post("/api/v1/invoices", idempotencyKey(key), req, &inv); err != nil {
				return err
			}
			printInvoice(cmd.OutOrStdout(), inv)
			return nil
		},
	}
	createCmd.Flags().StringVar(&walletID, "wallet", "", "Receiving wallet id")
	createCmd.Flags().StringVar(&currency, "currency", "", "Invoice currency; defaults to the wallet currency")
	createCmd.Flags().Int64Var(&amount, "amount", 0, "Amount in minor units; omit for an open invoice")
	createCmd.Flags().StringVar(&memo, "memo", "", "Invoice memo")
	createCmd.Flags().StringVar(&key, "idempotency-key", "", "Idempotency key; generated when empty")
	_ = createCmd.MarkFlagRequired("wallet")

	getCmd := &cobra.Command{
		Use:   "get <payment-hash>",
		Short: "Show an invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var inv dto.InvoiceResponse
			if err := newAPIClient().get("/api/v1/invoices/"+url.PathEscape(args[0]), nil, &inv); err != nil {
				return err
			}
			printInvoice(cmd.OutOrStdout(), inv)
			return nil
		},
	}

	cmd.AddCommand(createCmd, getCmd)
	return cmd
}

func printInvoice(w io.Writer, inv dto.InvoiceResponse) {
	if asJSON {
		printJSON(w, inv)
		return
	}
	fmt.Fprintf(w, "Payment hash: %s\n", inv.PaymentHash)
	fmt.Fprintf(w, "State:        %s\n", inv.State)
	if inv.Amount != nil {
		fmt.Fprintf(w, "Amount:       %d %s\n", *inv.Amount, inv.Currency)
	}
	fmt.Fprintf(w, "Expires:      %s\n", inv.ExpiresAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Request:      %s\n", inv.PaymentRequest)
}

func payCmd() *cobra.Command {
	var (
		walletID string
		amount   int64
		memo     string
		key      string
	)
	cmd := &cobra.Command{
		Use:   "pay <destination>",
		Short: "Send from a wallet to an invoice or address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := dto.SendPaymentRequest{
				WalletID:    walletID,
				Destination: args[0],
				Amount:      amount,
				Memo:        memo,
			}

			var res dto.SendPaymentResponse
			if err := newAPIClient().post("/api/v1/payments", idempotencyKey(key), req, &res); err != nil {
				return err
			}
			if asJSON {
				printJSON(cmd.OutOrStdout(), res)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Payment %s: %s %d sats (fee %d)\n", res.Status, res.Type, res.Amount, res.Fee)
			return nil
		},
	}
	cmd.Flags().StringVar(&walletID, "wallet", "", "Paying wallet id")
	cmd.Flags().Int64Var(&amount, "amount", 0, "Amount in minor units; required for addresses and open invoices")
	cmd.Flags().StringVar(&memo, "memo", "", "Payment memo")
	cmd.Flags().StringVar(&key, "idempotency-key", "", "Idempotency key; generated when empty")
	_ = cmd.MarkFlagRequired("wallet")
	return cmd
}

func nodesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nodes",
		Short: "Lightning node status",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "health",
		Short: "Show node health",
		RunE: func(cmd *cobra.Command, args []string) error {
			var health struct {
				Active int                `json:"active"`
				Total  int                `json:"total"`
				Nodes  []dto.NodeResponse `json:"nodes"`
			}
			if err := newAPIClient().get("/api/v1/nodes/health", nil, &health); err != nil {
				return err
			}
			if asJSON {
				printJSON(cmd.OutOrStdout(), health)
				return nil
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d nodes active\n", health.Active, health.Total)
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tROLE\tSTATE\tLAST CHECKED")
			for _, n := range health.Nodes {
				checked := "-"
				if n.LastChecked != nil {
					checked = n.LastChecked.Format(time.RFC3339)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", n.ID, n.Role, n.State, checked)
			}
			return tw.Flush()
		},
	})
	return cmd
}

// migrateCmd talks to the database directly using the server's environment.
func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database schema migrations",
	}

	newMigrator := func() (*postgres.Migrator, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		lg := logger.NewWithWriter(logger.Config{Level: cfg.LogLevel, Format: "console"}, os.Stderr)
		return postgres.NewMigrator(cfg.DatabaseURL, cfg.MigrationsPath, lg), nil
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := newMigrator()
				if err != nil {
					return err
				}
				return m.Up()
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the last migration",
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := newMigrator()
				if err != nil {
					return err
				}
				return m.Down()
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Show the applied schema version",
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := newMigrator()
				if err != nil {
					return err
				}
				v, dirty, err := m.Version()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", v, dirty)
				return nil
			},
		},
	)
	return cmd
}

func idempotencyKey(key string) string {
	if key != "" {
		return key
	}
	return ulid.Make().String()
}

func setIfNotEmpty(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode output: %v\n", err)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
