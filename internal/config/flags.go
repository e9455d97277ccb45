package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "shopflow",
		Short:         "Replay checkout transactions against the shop backends in waves",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "Path to configuration file (JSON, YAML or TOML)")

	// Scheduling
	flags.IntP("vus", "u", 10, "Total number of virtual users")
	flags.IntP("iterations", "i", 1, "Iterations per virtual user (iterations mode)")
	flags.Duration("wave-gap", 5*time.Second, "Delay between wave start offsets")
	flags.Int("wave1-vus", 0, "Size of wave 1 (0 derives 30% of vus)")
	flags.Int("wave2-vus", 0, "Size of wave 2 (0 derives 30% of vus)")
	flags.String("mode", string(TestModeIterations), "Scheduling mode: 'iterations' or 'duration'")
	flags.DurationP("duration", "d", 5*time.Minute, "Run length in duration mode")
	flags.Duration("graceful-stop", 30*time.Second, "Time in-flight iterations get to finish after duration elapses")
	flags.Duration("max-duration", 10*time.Minute, "Upper bound on each wave in iterations mode")
	flags.IntP("rate", "r", 0, "Requests per second limit across all virtual users (0 means unlimited)")

	// Targets
	flags.String("base-url", "http://localhost:8080", "Gateway every request is sent to")
	flags.String("host-product", "product-dev.example.com", "Host header of the product service")
	flags.String("host-cart", "cart-dev.example.com", "Host header of the cart service")
	flags.String("host-order", "order-dev.example.com", "Host header of the order service")
	flags.String("host-payment", "payment-dev.example.com", "Host header of the payment service")
	flags.String("host-user", "user-dev.example.com", "Host header of the user service")

	// Credentials
	flags.String("token", "", "Shared bearer token")
	flags.StringSlice("token-list", nil, "Bearer tokens assigned round-robin to virtual users (repeatable or comma-separated)")
	flags.String("token-file", "", "File of bearer tokens (text, CSV with a token column, or JSON)")

	// Flow
	flags.String("product-id", DefaultProductID, "Product to buy (empty browses the catalogue)")
	flags.String("cart-clear-mode", string(CartClearEvent), "Cart settlement: 'event' waits for the order event, 'manual' deletes items")
	flags.Duration("event-wait-timeout", 30*time.Second, "How long to wait for event-driven convergence")
	flags.Duration("event-wait-poll", 500*time.Millisecond, "Interval between convergence polls")
	flags.Duration("timeout", 30*time.Second, "Per-request timeout")
	flags.Duration("iteration-timeout", 0, "Hard deadline per iteration (0 derives one from retry and poll budgets)")

	// Output
	flags.String("out-dir", ".", "Directory for summary.json/summary.yaml and summary.txt")
	flags.String("export-format", string(ExportJSON), "Structured summary format: 'json' or 'yaml'")
	flags.Bool("json-output", false, "Print the structured summary instead of the text digest")
	flags.Bool("html-report", false, "Also write summary.html to out-dir")
	flags.Bool("progress", true, "Print a progress line every second")
	flags.String("log-level", "info", "Log level: debug, info, warn, error")
	flags.String("log-format", "console", "Log format: 'console' or 'json'")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	flags.StringSlice("threshold", nil, "Pass/fail thresholds (repeatable, e.g., 'checks:rate > 0.99')")

	// Tracing
	flags.String("tracing-endpoint", "", "OTLP collector endpoint (enables tracing)")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: 'grpc' or 'http'")
	flags.Bool("tracing-insecure", false, "Disable TLS to the OTLP collector")
	flags.Float64("tracing-sample-rate", 1.0, "Fraction of iterations sampled (0.0-1.0)")
	flags.String("tracing-service-name", "", "Service name reported to the collector")

	// Upload
	flags.String("upload-endpoint", "", "S3-compatible endpoint (host:port) receiving the summary files")
	flags.String("upload-bucket", "", "Bucket for uploaded summary files")
	flags.String("upload-prefix", "shopflow", "Object key prefix; files land under <prefix>/<run id>/")
	flags.Bool("upload-insecure", false, "Talk plain HTTP to the upload endpoint")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\n%s\n\nFlags:\n", cmd.UseLine(), cmd.Short)
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file and environment.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	ints := []struct {
		name   string
		target *int
	}{
		{"vus", &cfg.VUs},
		{"iterations", &cfg.Iterations},
		{"wave1-vus", &cfg.Wave1VUs},
		{"wave2-vus", &cfg.Wave2VUs},
		{"rate", &cfg.Rate},
	}
	for _, f := range ints {
		if !fs.Changed(f.name) {
			continue
		}
		val, err := fs.GetInt(f.name)
		if err != nil {
			return err
		}
		*f.target = val
	}

	durations := []struct {
		name   string
		target *time.Duration
	}{
		{"wave-gap", &cfg.WaveGap},
		{"duration", &cfg.Duration},
		{"graceful-stop", &cfg.GracefulStop},
		{"max-duration", &cfg.MaxDuration},
		{"event-wait-timeout", &cfg.EventWaitTimeout},
		{"event-wait-poll", &cfg.EventWaitPoll},
		{"timeout", &cfg.Timeout},
		{"iteration-timeout", &cfg.IterationTimeout},
	}
	for _, f := range durations {
		if !fs.Changed(f.name) {
			continue
		}
		val, err := fs.GetDuration(f.name)
		if err != nil {
			return err
		}
		*f.target = val
	}

	strs := []struct {
		name   string
		target *string
	}{
		{"base-url", &cfg.BaseURL},
		{"host-product", &cfg.Hosts.Product},
		{"host-cart", &cfg.Hosts.Cart},
		{"host-order", &cfg.Hosts.Order},
		{"host-payment", &cfg.Hosts.Payment},
		{"host-user", &cfg.Hosts.User},
		{"token", &cfg.Token},
		{"token-file", &cfg.TokenFile},
		{"product-id", &cfg.ProductID},
		{"out-dir", &cfg.OutDir},
		{"log-level", &cfg.LogLevel},
		{"log-format", &cfg.LogFormat},
		{"metrics-addr", &cfg.MetricsAddr},
		{"tracing-endpoint", &cfg.Tracing.Endpoint},
		{"tracing-protocol", &cfg.Tracing.Protocol},
		{"tracing-service-name", &cfg.Tracing.ServiceName},
		{"upload-endpoint", &cfg.Upload.Endpoint},
		{"upload-bucket", &cfg.Upload.Bucket},
		{"upload-prefix", &cfg.Upload.Prefix},
	}
	for _, f := range strs {
		if !fs.Changed(f.name) {
			continue
		}
		val, err := fs.GetString(f.name)
		if err != nil {
			return err
		}
		*f.target = strings.TrimSpace(val)
	}

	if fs.Changed("mode") {
		val, err := fs.GetString("mode")
		if err != nil {
			return err
		}
		cfg.Mode = TestMode(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("cart-clear-mode") {
		val, err := fs.GetString("cart-clear-mode")
		if err != nil {
			return err
		}
		cfg.CartClearMode = CartClearMode(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("export-format") {
		val, err := fs.GetString("export-format")
		if err != nil {
			return err
		}
		cfg.ExportFormat = ExportFormat(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("json-output") {
		val, err := fs.GetBool("json-output")
		if err != nil {
			return err
		}
		cfg.JSONOutput = val
	}
	if fs.Changed("html-report") {
		val, err := fs.GetBool("html-report")
		if err != nil {
			return err
		}
		cfg.HTMLReport = val
	}
	if fs.Changed("progress") {
		val, err := fs.GetBool("progress")
		if err != nil {
			return err
		}
		cfg.Progress = val
	}
	if fs.Changed("tracing-insecure") {
		val, err := fs.GetBool("tracing-insecure")
		if err != nil {
			return err
		}
		cfg.Tracing.Insecure = val
	}
	if fs.Changed("upload-insecure") {
		val, err := fs.GetBool("upload-insecure")
		if err != nil {
			return err
		}
		cfg.Upload.UseSSL = !val
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}

	if fs.Changed("token-list") {
		vals, err := fs.GetStringSlice("token-list")
		if err != nil {
			return err
		}
		cfg.TokenList = compact(vals)
	}

	if fs.Changed("threshold") {
		thresholds, err := fs.GetStringSlice("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = compact(thresholds)
	}

	return nil
}
