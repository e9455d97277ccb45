package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

type TestMode string

const (
	TestModeIterations TestMode = "iterations"
	TestModeDuration   TestMode = "duration"
)

type CartClearMode string

const (
	CartClearEvent  CartClearMode = "event"
	CartClearManual CartClearMode = "manual"
)

type ExportFormat string

const (
	ExportJSON ExportFormat = "json"
	ExportYAML ExportFormat = "yaml"
)

// DefaultProductID is the catalogue item the flow buys unless overridden.
const DefaultProductID = "a0000000-0000-0000-0000-000000001001"

// Retry budgets of the two retried steps. They are part of the flow's
// contract and not configurable; they feed DerivedIterationTimeout.
const (
	OrderCreateAttempts  = 3
	OrderCreateDelay     = 500 * time.Millisecond
	PaymentReadyAttempts = 5
	PaymentReadyDelay    = time.Second
	iterationSlack       = 30 * time.Second
)

type Config struct {
	VUs          int           `mapstructure:"vus"`
	Iterations   int           `mapstructure:"iterations"`
	WaveGap      time.Duration `mapstructure:"wave_gap"`
	Wave1VUs     int           `mapstructure:"wave1_vus"`
	Wave2VUs     int           `mapstructure:"wave2_vus"`
	Mode         TestMode      `mapstructure:"test_mode"`
	Duration     time.Duration `mapstructure:"duration"`
	GracefulStop time.Duration `mapstructure:"graceful_stop"`
	MaxDuration  time.Duration `mapstructure:"max_duration"`

	BaseURL   string   `mapstructure:"base_url"`
	Hosts     Hosts    `mapstructure:"hosts"`
	Token     string   `mapstructure:"token"`
	TokenList []string `mapstructure:"token_list"`
	TokenFile string   `mapstructure:"token_file"`
	ProductID string   `mapstructure:"product_id"`

	CartClearMode    CartClearMode `mapstructure:"cart_clear_mode"`
	EventWaitTimeout time.Duration `mapstructure:"event_wait_timeout"`
	EventWaitPoll    time.Duration `mapstructure:"event_wait_poll"`
	Timeout          time.Duration `mapstructure:"timeout"`
	IterationTimeout time.Duration `mapstructure:"iteration_timeout"`
	Rate             int           `mapstructure:"rate"`

	OutDir       string        `mapstructure:"out_dir"`
	ExportFormat ExportFormat  `mapstructure:"export_format"`
	JSONOutput   bool          `mapstructure:"json_output"`
	HTMLReport   bool          `mapstructure:"html_report"`
	Progress     bool          `mapstructure:"progress"`
	LogLevel     string        `mapstructure:"log_level"`
	LogFormat    string        `mapstructure:"log_format"`
	MetricsAddr  string        `mapstructure:"metrics_addr"`
	Tracing      TracingConfig `mapstructure:"tracing"`
	Upload       UploadConfig  `mapstructure:"upload"`
	Thresholds   []string      `mapstructure:"thresholds"`
	ConfigFile   string        `mapstructure:"-"`
}

// Hosts are the logical Host headers of the five backends. All requests go
// to BaseURL; routing happens on the Host header.
type Hosts struct {
	Product string `mapstructure:"product"`
	Cart    string `mapstructure:"cart"`
	Order   string `mapstructure:"order"`
	Payment string `mapstructure:"payment"`
	User    string `mapstructure:"user"`
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // "grpc" or "http"
	Insecure    bool    `mapstructure:"insecure"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	ServiceName string  `mapstructure:"service_name"`
	Propagate   *bool   `mapstructure:"propagate"`
}

// Enabled reports whether an OTLP endpoint is configured directly or through
// the standard OTEL_EXPORTER_OTLP_ENDPOINT variable.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != "" || os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != ""
}

// ShouldPropagate defaults to Enabled unless explicitly set.
func (t TracingConfig) ShouldPropagate() bool {
	if t.Propagate != nil {
		return *t.Propagate
	}
	return t.Enabled()
}

// UploadConfig points at an S3-compatible bucket that receives the run's
// summary files. Endpoint is host[:port] without a scheme.
type UploadConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Region    string `mapstructure:"region"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// Enabled reports whether an upload endpoint is configured.
func (u UploadConfig) Enabled() bool {
	return strings.TrimSpace(u.Endpoint) != ""
}

// Defaults returns the configuration used when nothing is overridden.
func Defaults() *Config {
	return &Config{
		VUs:          10,
		Iterations:   1,
		WaveGap:      5 * time.Second,
		Mode:         TestModeIterations,
		Duration:     5 * time.Minute,
		GracefulStop: 30 * time.Second,
		MaxDuration:  10 * time.Minute,
		BaseURL:      "http://localhost:8080",
		Hosts: Hosts{
			Product: "product-dev.example.com",
			Cart:    "cart-dev.example.com",
			Order:   "order-dev.example.com",
			Payment: "payment-dev.example.com",
			User:    "user-dev.example.com",
		},
		ProductID:        DefaultProductID,
		CartClearMode:    CartClearEvent,
		EventWaitTimeout: 30 * time.Second,
		EventWaitPoll:    500 * time.Millisecond,
		Timeout:          30 * time.Second,
		OutDir:           ".",
		ExportFormat:     ExportJSON,
		Progress:         true,
		LogLevel:         "info",
		LogFormat:        "console",
		Tracing:          TracingConfig{Protocol: "grpc", SampleRate: 1.0},
		Upload:           UploadConfig{Prefix: "shopflow", Region: "us-east-1", UseSSL: true},
	}
}

// DerivedIterationTimeout is the iteration deadline used when none is
// configured: both retry budgets, both settle polls and a fixed slack.
func (c Config) DerivedIterationTimeout() time.Duration {
	if c.IterationTimeout > 0 {
		return c.IterationTimeout
	}
	budget := time.Duration(OrderCreateAttempts-1)*OrderCreateDelay +
		time.Duration(PaymentReadyAttempts-1)*PaymentReadyDelay +
		2*c.EventWaitTimeout + iterationSlack
	// Every request may take up to Timeout on top of the sleeps.
	requests := OrderCreateAttempts + PaymentReadyAttempts + 6
	return budget + time.Duration(requests)*c.Timeout
}

// Browse reports whether the product is discovered from the catalogue
// listing instead of a fixed id.
func (c Config) Browse() bool {
	return strings.TrimSpace(c.ProductID) == ""
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	if c.VUs < 1 {
		issues = append(issues, "vus must be >= 1")
	}
	switch c.Mode {
	case TestModeIterations:
		if c.Iterations < 1 {
			issues = append(issues, "iterations must be >= 1")
		}
		issues = append(issues, validateWaves(c)...)
		if c.MaxDuration < 0 {
			issues = append(issues, "max_duration must be >= 0")
		}
	case TestModeDuration:
		if c.Duration <= 0 {
			issues = append(issues, "duration must be > 0 in duration mode")
		}
		if c.GracefulStop < 0 {
			issues = append(issues, "graceful_stop must be >= 0")
		}
	default:
		issues = append(issues, fmt.Sprintf("test_mode must be 'iterations' or 'duration', got %q", c.Mode))
	}

	if strings.TrimSpace(c.BaseURL) == "" {
		issues = append(issues, "base_url is required")
	}
	issues = append(issues, validateHosts(c.Hosts)...)

	if strings.TrimSpace(c.Token) == "" && len(c.TokenList) == 0 && strings.TrimSpace(c.TokenFile) == "" {
		issues = append(issues, "one of token, token_list or token_file is required")
	}

	switch c.CartClearMode {
	case CartClearEvent, CartClearManual:
	default:
		issues = append(issues, fmt.Sprintf("cart_clear_mode must be 'event' or 'manual', got %q", c.CartClearMode))
	}
	if c.CartClearMode == CartClearEvent {
		if c.EventWaitTimeout <= 0 {
			issues = append(issues, "event_wait_timeout must be > 0")
		}
		if c.EventWaitPoll <= 0 {
			issues = append(issues, "event_wait_poll must be > 0")
		}
	}

	if c.Timeout < 0 {
		issues = append(issues, "timeout must be >= 0")
	}
	if c.IterationTimeout < 0 {
		issues = append(issues, "iteration_timeout must be >= 0")
	}
	if c.Rate < 0 {
		issues = append(issues, "rate must be >= 0")
	}

	switch c.ExportFormat {
	case ExportJSON, ExportYAML:
	default:
		issues = append(issues, fmt.Sprintf("export_format must be 'json' or 'yaml', got %q", c.ExportFormat))
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "console", "json":
	default:
		issues = append(issues, fmt.Sprintf("log_format must be 'console' or 'json', got %q", c.LogFormat))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		issues = append(issues, fmt.Sprintf("tracing: sample_rate must be between 0.0 and 1.0, got %g", c.Tracing.SampleRate))
	}

	issues = append(issues, validateUpload(c.Upload)...)

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func validateUpload(u UploadConfig) []string {
	if !u.Enabled() {
		return nil
	}
	var issues []string
	if strings.Contains(u.Endpoint, "://") {
		issues = append(issues, fmt.Sprintf("upload: endpoint must not include scheme: %q", u.Endpoint))
	}
	if strings.TrimSpace(u.Bucket) == "" {
		issues = append(issues, "upload: bucket is required")
	}
	if strings.TrimSpace(u.AccessKey) == "" || strings.TrimSpace(u.SecretKey) == "" {
		issues = append(issues, "upload: access_key and secret_key are required")
	}
	return issues
}

func validateWaves(c Config) []string {
	var issues []string
	if c.Wave1VUs < 0 {
		issues = append(issues, "wave1_vus must be >= 0")
	}
	if c.Wave2VUs < 0 {
		issues = append(issues, "wave2_vus must be >= 0")
	}
	if c.WaveGap < 0 {
		issues = append(issues, "wave_gap must be >= 0")
	}
	if w1, w2 := c.WaveSizes(); c.VUs >= 1 && w1+w2 > c.VUs {
		issues = append(issues, fmt.Sprintf("wave1 (%d) + wave2 (%d) exceeds vus (%d)", w1, w2, c.VUs))
	}
	return issues
}

// WaveSizes resolves the sizes of the first two waves. A wave without an
// override gets 30% of vus (at least one user), and a derived wave2 never
// takes more than wave1 leaves.
func (c Config) WaveSizes() (int, int) {
	n := max(c.VUs, 0)
	share := max(1, n*3/10)
	w1 := c.Wave1VUs
	if w1 <= 0 {
		w1 = min(share, n)
	}
	w2 := c.Wave2VUs
	if w2 <= 0 {
		w2 = min(share, max(0, n-w1))
	}
	return w1, w2
}

func validateHosts(h Hosts) []string {
	var issues []string
	for _, pair := range [][2]string{
		{"product", h.Product},
		{"cart", h.Cart},
		{"order", h.Order},
		{"payment", h.Payment},
		{"user", h.User},
	} {
		if strings.TrimSpace(pair[1]) == "" {
			issues = append(issues, fmt.Sprintf("hosts.%s is required", pair[0]))
		}
	}
	return issues
}

// Warnings lists non-fatal configuration oddities.
func (c Config) Warnings() []string {
	var warnings []string
	if !c.Browse() {
		if _, err := uuid.Parse(strings.TrimSpace(c.ProductID)); err != nil {
			warnings = append(warnings, fmt.Sprintf("product_id %q is not a UUID", c.ProductID))
		}
	}
	if c.Mode == TestModeDuration && (c.Wave1VUs > 0 || c.Wave2VUs > 0) {
		warnings = append(warnings, "wave1_vus/wave2_vus are ignored in duration mode")
	}
	return warnings
}
