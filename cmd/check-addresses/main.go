// Command check-addresses reports the cached deliverability verdict for a
// list of addresses, optionally validating the ones never seen before.
//
//	check-addresses [-validate] [-config config.yaml] [address ...]
//
// Addresses are read from stdin, one per line, when none are given.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ignite/mailguard/internal/app"
	"github.com/ignite/mailguard/internal/config"
	"github.com/ignite/mailguard/internal/pkg/logger"
	"github.com/ignite/mailguard/internal/service/validation"
)

func main() {
	configPath := flag.String("config", os.Getenv("MAILGUARD_CONFIG"), "path to config.yaml (optional)")
	validateMissing := flag.Bool("validate", false, "validate addresses that have no stored verdict")
	timeout := flag.Duration("timeout", 10*time.Minute, "overall deadline")
	flag.Parse()

	emails, err := readAddresses(flag.Args(), os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: read addresses: %v\n", err)
		os.Exit(1)
	}
	if len(emails) == 0 {
		fmt.Fprintln(os.Stderr, "no addresses given")
		os.Exit(2)
	}

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load config: %v\n", err)
		os.Exit(1)
	}
	logger.SetLevel(logger.WARN)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	deps, err := app.Open(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
	defer deps.Close()

	svc := app.Build(cfg, deps, nil)
	res, err := svc.Validator.BulkStatus(ctx, emails, *validateMissing)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}

	printReport(os.Stdout, res)
	if res.Invalid > 0 {
		os.Exit(1)
	}
}

// readAddresses returns args, or the non-blank lines of r when args is
// empty. Lines starting with '#' are ignored.
func readAddresses(args []string, r io.Reader) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, sc.Err()
}

func printReport(w io.Writer, res *validation.BulkResult) {
	emails := make([]string, 0, len(res.Details))
	for e := range res.Details {
		emails = append(emails, e)
	}
	sort.Strings(emails)

	fmt.Fprintln(w, "=========================================================")
	fmt.Fprintln(w, " ADDRESS REPORT")
	fmt.Fprintln(w, "=========================================================")
	for _, e := range emails {
		d := res.Details[e]
		checked := "-"
		if d.LastCheckedAt != nil {
			checked = d.LastCheckedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "  %-40s %-10s %-20s %s\n", e, d.Status, checked, d.Reason)
	}
	fmt.Fprintln(w, "---------------------------------------------------------")
	fmt.Fprintf(w, "  total=%d valid=%d invalid=%d not_exists=%d\n", res.Total, res.Valid, res.Invalid, res.NotExists)
}
