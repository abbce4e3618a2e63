package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"portsweep/logging"
	"portsweep/output"
	"portsweep/scanner"
)

// IncompleteError reports a scan that was interrupted before every port was classified.
type IncompleteError struct {
	Done  int
	Total int
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("scan incomplete: %d of %d ports", e.Done, e.Total)
}

type scanOptions struct {
	target       string
	ports        string
	timeout      uint
	output       string
	concurrency  int
	rate         float64
	jsonOutput   bool
	twoStatus    bool
	lenientRange bool
	logLevel     string
	logFormat    string

	// prober overrides the TCP prober in tests.
	prober scanner.Prober
}

// Execute runs the root command. SIGINT and SIGTERM cancel a running scan.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

// NewRootCmd builds the portsweep command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&scanOptions{})
}

func newRootCmd(opts *scanOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "portsweep",
		Short: "TCP connect scanner for a single host",
		Long: `portsweep probes every TCP port of an inclusive range on one IPv4 or IPv6 host
and reports each port as OPEN, CLOSED or ERROR.

Examples:
  portsweep -s 192.168.1.1 -p 1-1000
  portsweep -s ::1 -p 20-80 -t 1 -o results.json
  portsweep serve`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScan(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.target, "scan", "s", "", "IP address to scan (example: -s 192.168.1.1)")
	flags.StringVarP(&opts.ports, "port", "p", "", `port range "start-end" (default 1-1024)`)
	flags.UintVarP(&opts.timeout, "time", "t", 2, "per-port connect timeout in seconds")
	flags.StringVarP(&opts.output, "output", "o", "", "write results as JSON to this file")
	flags.IntVarP(&opts.concurrency, "concurrency", "c", scanner.DefaultConcurrency, "maximum probes in flight")
	flags.Float64Var(&opts.rate, "rate", 0, "maximum probes started per second (0 = unlimited)")
	flags.BoolVar(&opts.jsonOutput, "json", false, "print results as JSON instead of plain lines")
	flags.BoolVar(&opts.twoStatus, "two-status", false, "report ERROR outcomes as CLOSED")
	flags.BoolVar(&opts.lenientRange, "lenient-range", false, "scan the default range when -p cannot be parsed")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	flags.StringVar(&opts.logFormat, "log-format", "text", "log format (text, json)")

	cmd.AddCommand(newServeCmd())
	return cmd
}

func runScan(cmd *cobra.Command, opts *scanOptions) error {
	out := cmd.OutOrStdout()
	logger, err := logging.New(logging.Options{
		Level:  opts.logLevel,
		Format: opts.logFormat,
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}

	var scanErr error
	if opts.target != "" {
		if scanErr = scan(cmd.Context(), out, cmd.ErrOrStderr(), logger, opts); scanErr != nil {
			var incomplete *IncompleteError
			if !errors.As(scanErr, &incomplete) {
				return scanErr
			}
		}
	}

	if cmd.Flags().Changed("port") {
		fmt.Fprintf(out, "Port range specified: %s\n", opts.ports)
	}
	fmt.Fprintf(out, "Timeout specified: %d seconds\n", opts.timeout)
	return scanErr
}

func scan(ctx context.Context, out, errOut io.Writer, logger *slog.Logger, opts *scanOptions) error {
	cfg, err := scanner.NewScanConfig(scanner.ScanParams{
		Target:       opts.target,
		Ports:        opts.ports,
		Timeout:      time.Duration(opts.timeout) * time.Second,
		Concurrency:  opts.concurrency,
		Rate:         opts.rate,
		LenientRange: opts.lenientRange,
	})
	if err != nil {
		return err
	}
	if opts.lenientRange {
		if _, fellBack := scanner.ParsePortRangeLenient(opts.ports); fellBack {
			logger.Warn("unparseable port range, scanning default", "ports", opts.ports, "default", scanner.DefaultPortRange.String())
		}
	}

	fmt.Fprintf(out, "Scanning enabled for IP: %s\n", cfg.Target)

	rs := scanner.NewScheduler(opts.prober, scanner.WithLogger(logger)).Run(ctx, cfg)
	records := output.Records(rs, output.Options{TwoStatus: opts.twoStatus, Logger: logger})

	if opts.jsonOutput {
		err = output.WriteJSON(out, records)
	} else {
		err = output.WritePlain(out, records)
	}
	if err != nil {
		return err
	}

	if opts.output != "" {
		if err := output.WriteFile(opts.output, records); err != nil {
			fmt.Fprintf(errOut, "Error writing to file: %v\n", err)
		} else {
			fmt.Fprintf(out, "Results written to file: %s\n", opts.output)
		}
	}

	if !rs.Complete() {
		return &IncompleteError{Done: rs.Len(), Total: cfg.Range.Len()}
	}
	return nil
}
