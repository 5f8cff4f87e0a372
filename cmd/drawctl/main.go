package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-gin-lucky-draw/internal/client"
	"go-gin-lucky-draw/internal/model"

	"github.com/goccy/go-json"
	"github.com/spf13/pflag"
)

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, c *client.Client, args []string, out io.Writer) error
}

var commands = []command{
	{"status", "show storage mode and pending ticket count", runStatus},
	{"inventory", "show remaining stock per prize", runInventory},
	{"tickets", "list issued tickets", runTickets},
	{"audit", "compare inventory with the ticket ledger", runAudit},
	{"redeem", "redeem a receipt and print the ticket", runRedeem},
	{"stress", "fire concurrent redemptions and report outcomes", runStress},
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(argv []string, out io.Writer) error {
	var server, lang string
	var timeout time.Duration
	var retry int

	flagSet := pflag.NewFlagSet("drawctl", pflag.ContinueOnError)
	flagSet.StringVar(&server, "server", envOr("DRAWCTL_SERVER", "http://localhost:8080"), "lucky draw server base URL")
	flagSet.StringVar(&lang, "lang", "vi", "Accept-Language for error messages")
	flagSet.DurationVar(&timeout, "timeout", 10*time.Second, "per request timeout")
	flagSet.IntVar(&retry, "retry", 0, "retries when the server answers 503 or is unreachable")
	flagSet.BoolP("help", "h", false, "show help")
	// 子命令的旗標交給子命令解析
	flagSet.SetInterspersed(false)

	if err := flagSet.Parse(argv); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help || flagSet.NArg() == 0 {
		printHelp(flagSet)
		return nil
	}

	name := flagSet.Arg(0)
	for _, cmd := range commands {
		if cmd.name != name {
			continue
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		opts := []client.Option{client.WithLanguage(lang), client.WithTimeout(timeout)}
		if retry > 0 {
			opts = append(opts, client.WithRetry(retry))
		}
		c := client.New(server, opts...)
		return cmd.run(ctx, c, flagSet.Args()[1:], out)
	}
	return fmt.Errorf("unknown command %q", name)
}

func runStatus(ctx context.Context, c *client.Client, _ []string, out io.Writer) error {
	status, err := c.Status(ctx)
	if err != nil {
		return err
	}
	return printJSON(out, status)
}

func runInventory(ctx context.Context, c *client.Client, _ []string, out io.Writer) error {
	inv, err := c.Inventory(ctx)
	if err != nil {
		return err
	}
	for _, id := range inv.IDs() {
		rec := inv[id]
		fmt.Fprintf(out, "%-10s %-24s %5d / %d\n", id, rec.Name, rec.Remaining, rec.Total)
	}
	return nil
}

func runTickets(ctx context.Context, c *client.Client, args []string, out io.Writer) error {
	var prizeID string
	fs := pflag.NewFlagSet("tickets", pflag.ContinueOnError)
	fs.StringVar(&prizeID, "prize", "", "only tickets for this prize id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	tickets, err := c.Tickets(ctx, prizeID)
	if err != nil {
		return err
	}
	for _, t := range tickets {
		fmt.Fprintf(out, "%s  %-8s %-14s %s  %s\n", t.Code, t.PrizeID, t.ReceiptID, t.HolderPhone, t.IssuedAt.Format(time.RFC3339))
	}
	return nil
}

func runAudit(ctx context.Context, c *client.Client, _ []string, out io.Writer) error {
	report, err := c.Audit(ctx)
	if err != nil {
		return err
	}
	if err := printJSON(out, report); err != nil {
		return err
	}
	if !report.Consistent {
		return fmt.Errorf("inventory and ticket ledger disagree (pending issues: %d)", report.PendingIssues)
	}
	return nil
}

func runRedeem(ctx context.Context, c *client.Client, args []string, out io.Writer) error {
	var req model.RedeemRequest
	fs := pflag.NewFlagSet("redeem", pflag.ContinueOnError)
	fs.StringVar(&req.ReceiptID, "invoice", "", "receipt id (required)")
	fs.StringVar(&req.Name, "name", "", "holder name (required)")
	fs.StringVar(&req.Phone, "phone", "", "holder phone (required)")
	fs.StringVar(&req.Store, "store", "", "store")
	fs.StringVar(&req.Product, "product", "", "product")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if req.ReceiptID == "" || req.Name == "" || req.Phone == "" {
		return errors.New("--invoice, --name and --phone are required")
	}

	ticket, err := c.Redeem(ctx, req)
	if err != nil {
		return err
	}
	return printJSON(out, ticket)
}

func printJSON(out io.Writer, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(b))
	return err
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, "drawctl: operator tool for the lucky draw server\n\nUsage:\n  drawctl [flags] <command> [command flags]\n\nCommands:\n")
	for _, cmd := range commands {
		fmt.Fprintf(os.Stderr, "  %-10s %s\n", cmd.name, cmd.summary)
	}
	fmt.Fprintf(os.Stderr, "\nFlags:\n%s", flagSet.FlagUsages())
}
