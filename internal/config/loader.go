package config

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader handles loading configuration from files, the environment and
// command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// EnvPrefix namespaces environment overrides, e.g. SHOPFLOW_VUS.
const EnvPrefix = "SHOPFLOW"

// legacyEnv maps config keys to the bare variable names older driver
// scripts exported. The prefixed name always takes precedence.
var legacyEnv = map[string][]string{
	"vus":                    {"VUS"},
	"iterations":             {"ITERATIONS"},
	"wave_gap_sec":           {"WAVE_GAP_SEC"},
	"wave1_vus":              {"WAVE1_VUS"},
	"wave2_vus":              {"WAVE2_VUS"},
	"test_mode":              {"TEST_MODE"},
	"duration":               {"DURATION"},
	"max_duration":           {"MAX_DURATION"},
	"base_url":               {"BASE_URL"},
	"token":                  {"TOKEN"},
	"token_list":             {"TOKEN_LIST"},
	"hosts.product":          {"HOST_PRODUCT"},
	"hosts.cart":             {"HOST_CART"},
	"hosts.order":            {"HOST_ORDER"},
	"hosts.payment":          {"HOST_PAYMENT"},
	"hosts.user":             {"HOST_USER"},
	"cart_clear_mode":        {"CART_CLEAR_MODE"},
	"event_wait_timeout_sec": {"EVENT_WAIT_TIMEOUT_SEC"},
	"event_wait_poll_ms":     {"EVENT_WAIT_POLL_MS"},
	"product_id":             {"PRODUCT_ID", "FIXED_PRODUCT_ID"},
}

// envKeys are the config keys that may be overridden by SHOPFLOW_* variables.
var envKeys = []string{
	"vus", "iterations", "wave_gap", "wave1_vus", "wave2_vus", "test_mode",
	"duration", "graceful_stop", "max_duration", "base_url",
	"hosts.product", "hosts.cart", "hosts.order", "hosts.payment", "hosts.user",
	"token", "token_list", "token_file", "product_id", "cart_clear_mode",
	"event_wait_timeout", "event_wait_poll", "timeout", "iteration_timeout",
	"rate", "out_dir", "export_format", "json_output", "html_report", "progress",
	"log_level", "log_format", "metrics_addr", "thresholds",
	"tracing.endpoint", "tracing.protocol", "tracing.insecure",
	"tracing.sample_rate", "tracing.service_name", "tracing.propagate",
	"upload.endpoint", "upload.bucket", "upload.prefix", "upload.access_key",
	"upload.secret_key", "upload.region", "upload.use_ssl",
}

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses command-line arguments, the optional config file and the
// environment to produce a Config. It does not validate.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	cfg := Defaults()

	configPath := strings.TrimSpace(flagSet.Lookup("config").Value.String())
	if configPath != "" {
		fileViper := viper.New()
		fileViper.SetConfigFile(configPath)
		if err := fileViper.ReadInConfig(); err != nil {
			return nil, err
		}
		if err := applyConfigSettings(cfg, fileViper.AllSettings()); err != nil {
			return nil, fmt.Errorf("%s: %w", configPath, err)
		}
		cfg.ConfigFile = configPath
	}

	fromEnv, err := envSettings()
	if err != nil {
		return nil, err
	}
	if err := applyConfigSettings(cfg, fromEnv); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}

	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}

	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	cfg.ProductID = strings.TrimSpace(cfg.ProductID)
	cfg.Mode = TestMode(strings.ToLower(string(cfg.Mode)))
	cfg.CartClearMode = CartClearMode(strings.ToLower(string(cfg.CartClearMode)))
	cfg.ExportFormat = ExportFormat(strings.ToLower(string(cfg.ExportFormat)))

	return cfg, nil
}

// envSettings collects environment overrides into the same shape a config
// file produces, so both go through applyConfigSettings.
func envSettings() (map[string]interface{}, error) {
	env := viper.New()
	for _, key := range envKeys {
		names := append([]string{key, prefixed(key)}, legacyEnv[key]...)
		if err := env.BindEnv(names...); err != nil {
			return nil, err
		}
	}
	for key, names := range legacyEnv {
		if slices.Contains(envKeys, key) {
			continue
		}
		if err := env.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, err
		}
	}
	return env.AllSettings(), nil
}

func prefixed(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// applyConfigSettings applies settings from a config file or the environment
// to the Config struct. Keys absent from settings leave cfg untouched.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "vus"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("vus: %w", err)
		}
		cfg.VUs = val
	}

	if raw, ok := lookupSetting(settings, "iterations"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("iterations: %w", err)
		}
		cfg.Iterations = val
	}

	if raw, ok := lookupSetting(settings, "wave_gap", "wavegap", "wave-gap"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("wave_gap: %w", err)
		}
		cfg.WaveGap = dur
	} else if raw, ok := lookupSetting(settings, "wave_gap_sec"); ok {
		dur, err := asScaledDuration(raw, time.Second)
		if err != nil {
			return fmt.Errorf("wave_gap_sec: %w", err)
		}
		cfg.WaveGap = dur
	}

	if raw, ok := lookupSetting(settings, "wave1_vus", "wave1vus", "wave1-vus"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("wave1_vus: %w", err)
		}
		cfg.Wave1VUs = val
	}

	if raw, ok := lookupSetting(settings, "wave2_vus", "wave2vus", "wave2-vus"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("wave2_vus: %w", err)
		}
		cfg.Wave2VUs = val
	}

	if raw, ok := lookupSetting(settings, "test_mode", "testmode", "mode"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("test_mode: %w", err)
		}
		if val = strings.TrimSpace(val); val != "" {
			cfg.Mode = TestMode(strings.ToLower(val))
		}
	}

	durations := []struct {
		keys   []string
		target *time.Duration
	}{
		{[]string{"duration"}, &cfg.Duration},
		{[]string{"graceful_stop", "gracefulstop", "graceful-stop"}, &cfg.GracefulStop},
		{[]string{"max_duration", "maxduration", "max-duration"}, &cfg.MaxDuration},
		{[]string{"timeout"}, &cfg.Timeout},
		{[]string{"iteration_timeout", "iterationtimeout", "iteration-timeout"}, &cfg.IterationTimeout},
	}
	for _, d := range durations {
		if raw, ok := lookupSetting(settings, d.keys...); ok {
			dur, err := asDuration(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", d.keys[0], err)
			}
			*d.target = dur
		}
	}

	if raw, ok := lookupSetting(settings, "event_wait_timeout", "eventwaittimeout", "event-wait-timeout"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("event_wait_timeout: %w", err)
		}
		cfg.EventWaitTimeout = dur
	} else if raw, ok := lookupSetting(settings, "event_wait_timeout_sec"); ok {
		dur, err := asScaledDuration(raw, time.Second)
		if err != nil {
			return fmt.Errorf("event_wait_timeout_sec: %w", err)
		}
		cfg.EventWaitTimeout = dur
	}

	if raw, ok := lookupSetting(settings, "event_wait_poll", "eventwaitpoll", "event-wait-poll"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("event_wait_poll: %w", err)
		}
		cfg.EventWaitPoll = dur
	} else if raw, ok := lookupSetting(settings, "event_wait_poll_ms"); ok {
		dur, err := asScaledDuration(raw, time.Millisecond)
		if err != nil {
			return fmt.Errorf("event_wait_poll_ms: %w", err)
		}
		cfg.EventWaitPoll = dur
	}

	strs := []struct {
		keys   []string
		target *string
	}{
		{[]string{"base_url", "baseurl", "base-url"}, &cfg.BaseURL},
		{[]string{"token"}, &cfg.Token},
		{[]string{"token_file", "tokenfile", "token-file"}, &cfg.TokenFile},
		{[]string{"out_dir", "outdir", "out-dir"}, &cfg.OutDir},
		{[]string{"log_level", "loglevel", "log-level"}, &cfg.LogLevel},
		{[]string{"log_format", "logformat", "log-format"}, &cfg.LogFormat},
		{[]string{"metrics_addr", "metricsaddr", "metrics-addr"}, &cfg.MetricsAddr},
	}
	for _, s := range strs {
		if raw, ok := lookupSetting(settings, s.keys...); ok {
			val, err := asString(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", s.keys[0], err)
			}
			*s.target = strings.TrimSpace(val)
		}
	}

	// An explicitly empty product_id selects the browse variant.
	if raw, ok := lookupSetting(settings, "product_id", "productid", "product-id"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("product_id: %w", err)
		}
		cfg.ProductID = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "token_list", "tokenlist", "token-list", "tokens"); ok {
		val, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("token_list: %w", err)
		}
		cfg.TokenList = val
	}

	if raw, ok := lookupSetting(settings, "hosts"); ok {
		if err := applyHosts(&cfg.Hosts, raw); err != nil {
			return fmt.Errorf("hosts: %w", err)
		}
	}

	if raw, ok := lookupSetting(settings, "cart_clear_mode", "cartclearmode", "cart-clear-mode"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("cart_clear_mode: %w", err)
		}
		if val = strings.TrimSpace(val); val != "" {
			cfg.CartClearMode = CartClearMode(strings.ToLower(val))
		}
	}

	if raw, ok := lookupSetting(settings, "rate"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("rate: %w", err)
		}
		cfg.Rate = val
	}

	if raw, ok := lookupSetting(settings, "export_format", "exportformat", "export-format"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("export_format: %w", err)
		}
		if val = strings.TrimSpace(val); val != "" {
			cfg.ExportFormat = ExportFormat(strings.ToLower(val))
		}
	}

	if raw, ok := lookupSetting(settings, "json_output", "jsonoutput", "json-output"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("json_output: %w", err)
		}
		cfg.JSONOutput = val
	}

	if raw, ok := lookupSetting(settings, "html_report", "htmlreport", "html-report"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("html_report: %w", err)
		}
		cfg.HTMLReport = val
	}

	if raw, ok := lookupSetting(settings, "progress"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("progress: %w", err)
		}
		cfg.Progress = val
	}

	if raw, ok := lookupSetting(settings, "upload"); ok {
		if err := applyUpload(&cfg.Upload, raw); err != nil {
			return fmt.Errorf("upload: %w", err)
		}
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		if err := applyTracing(&cfg.Tracing, raw); err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
	}

	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		thresholds, err := asThresholds(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = thresholds
	}

	return nil
}

func applyHosts(hosts *Hosts, value interface{}) error {
	if value == nil {
		return nil
	}
	entry, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	for _, h := range []struct {
		key    string
		target *string
	}{
		{"product", &hosts.Product},
		{"cart", &hosts.Cart},
		{"order", &hosts.Order},
		{"payment", &hosts.Payment},
		{"user", &hosts.User},
	} {
		if raw, ok := lookupSetting(entry, h.key); ok {
			val, err := asString(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", h.key, err)
			}
			if val = strings.TrimSpace(val); val != "" {
				*h.target = val
			}
		}
	}
	return nil
}

func applyTracing(tc *TracingConfig, value interface{}) error {
	if value == nil {
		return nil
	}
	entry, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	if raw, ok := lookupSetting(entry, "endpoint"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("endpoint: %w", err)
		}
		tc.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(entry, "protocol"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("protocol: %w", err)
		}
		tc.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if raw, ok := lookupSetting(entry, "service_name", "servicename", "service-name"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("service_name: %w", err)
		}
		tc.ServiceName = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(entry, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("insecure: %w", err)
		}
		tc.Insecure = val
	}
	if raw, ok := lookupSetting(entry, "sample_rate", "samplerate", "sample-rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("sample_rate: %w", err)
		}
		tc.SampleRate = val
	}
	if raw, ok := lookupSetting(entry, "propagate"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("propagate: %w", err)
		}
		tc.Propagate = &val
	}
	return nil
}

func applyUpload(uc *UploadConfig, value interface{}) error {
	if value == nil {
		return nil
	}
	entry, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	strs := []struct {
		keys   []string
		target *string
	}{
		{[]string{"endpoint"}, &uc.Endpoint},
		{[]string{"bucket"}, &uc.Bucket},
		{[]string{"prefix"}, &uc.Prefix},
		{[]string{"access_key", "accesskey", "access-key"}, &uc.AccessKey},
		{[]string{"secret_key", "secretkey", "secret-key"}, &uc.SecretKey},
		{[]string{"region"}, &uc.Region},
	}
	for _, f := range strs {
		raw, ok := lookupSetting(entry, f.keys...)
		if !ok {
			continue
		}
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", f.keys[0], err)
		}
		*f.target = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(entry, "use_ssl", "usessl", "use-ssl"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("use_ssl: %w", err)
		}
		uc.UseSSL = val
	}
	return nil
}

// asThresholds accepts a list, or a single string with one expression per
// line or separated by semicolons.
func asThresholds(value interface{}) ([]string, error) {
	if s, ok := value.(string); ok {
		return compact(strings.FieldsFunc(s, func(r rune) bool { return r == ';' || r == '\n' })), nil
	}
	return asStringSlice(value)
}
