package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestAsInt(t *testing.T) {
	tests := []struct {
		input interface{}
		want  int
	}{
		{123, 123},
		{"456", 456},
		{" 7 ", 7},
		{int64(789), 789},
		{float64(10.0), 10},
		{nil, 0},
	}

	for _, tt := range tests {
		got, err := asInt(tt.input)
		if err != nil {
			t.Errorf("asInt(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asInt(%v) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestAsBool(t *testing.T) {
	tests := []struct {
		input interface{}
		want  bool
	}{
		{true, true},
		{"true", true},
		{"1", true},
		{false, false},
		{"0", false},
		{nil, false},
	}

	for _, tt := range tests {
		got, err := asBool(tt.input)
		if err != nil {
			t.Errorf("asBool(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asBool(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestAsScaledDuration(t *testing.T) {
	tests := []struct {
		input interface{}
		unit  time.Duration
		want  time.Duration
	}{
		{time.Second, time.Second, time.Second},
		{"1m", time.Second, time.Minute},
		{10, time.Second, 10 * time.Second},
		{"5", time.Second, 5 * time.Second},
		{"500", time.Millisecond, 500 * time.Millisecond},
		{"1.5", time.Second, 1500 * time.Millisecond},
		{"250ms", time.Second, 250 * time.Millisecond},
		{nil, time.Second, 0},
	}

	for _, tt := range tests {
		got, err := asScaledDuration(tt.input, tt.unit)
		if err != nil {
			t.Errorf("asScaledDuration(%v, %s) error = %v", tt.input, tt.unit, err)
		}
		if got != tt.want {
			t.Errorf("asScaledDuration(%v, %s) = %v, want %v", tt.input, tt.unit, got, tt.want)
		}
	}

	if _, err := asDuration("soon"); err == nil {
		t.Error("asDuration(soon) error = nil, want error")
	}
}

func TestAsStringSlice(t *testing.T) {
	tests := []struct {
		input interface{}
		want  []string
	}{
		{"a,b , ,c", []string{"a", "b", "c"}},
		{[]interface{}{"x", " y "}, []string{"x", "y"}},
		{[]string{"", ""}, nil},
		{nil, nil},
	}

	for _, tt := range tests {
		got, err := asStringSlice(tt.input)
		if err != nil {
			t.Fatalf("asStringSlice(%v) error = %v", tt.input, err)
		}
		if len(got) != len(tt.want) {
			t.Fatalf("asStringSlice(%v) = %v, want %v", tt.input, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("asStringSlice(%v)[%d] = %q, want %q", tt.input, i, got[i], tt.want[i])
			}
		}
	}
}

func TestApplyConfigSettingsLegacyUnits(t *testing.T) {
	cfg := Defaults()
	settings := map[string]interface{}{
		"wave_gap_sec":           "7",
		"event_wait_timeout_sec": 45,
		"event_wait_poll_ms":     "100",
		"hosts": map[string]interface{}{
			"Order": "order-qa.example.com",
		},
	}

	if err := applyConfigSettings(cfg, settings); err != nil {
		t.Fatalf("applyConfigSettings() error = %v", err)
	}

	if cfg.WaveGap != 7*time.Second {
		t.Errorf("WaveGap = %v, want 7s", cfg.WaveGap)
	}
	if cfg.EventWaitTimeout != 45*time.Second {
		t.Errorf("EventWaitTimeout = %v, want 45s", cfg.EventWaitTimeout)
	}
	if cfg.EventWaitPoll != 100*time.Millisecond {
		t.Errorf("EventWaitPoll = %v, want 100ms", cfg.EventWaitPoll)
	}
	if cfg.Hosts.Order != "order-qa.example.com" {
		t.Errorf("Hosts.Order = %q", cfg.Hosts.Order)
	}
}

func TestApplyConfigSettingsCanonicalWinsOverLegacy(t *testing.T) {
	cfg := Defaults()
	settings := map[string]interface{}{
		"wave_gap":     "1s",
		"wave_gap_sec": "9",
	}
	if err := applyConfigSettings(cfg, settings); err != nil {
		t.Fatalf("applyConfigSettings() error = %v", err)
	}
	if cfg.WaveGap != time.Second {
		t.Errorf("WaveGap = %v, want 1s", cfg.WaveGap)
	}
}

func TestApplyConfigSettingsRejectsBadValues(t *testing.T) {
	cases := map[string]interface{}{
		"vus":      "many",
		"duration": "forever",
		"progress": "perhaps",
		"hosts":    "not-a-map",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			if err := applyConfigSettings(Defaults(), map[string]interface{}{key: val}); err == nil {
				t.Fatalf("applyConfigSettings(%s=%v) error = nil, want error", key, val)
			}
		})
	}
}

func TestApplyFlagOverrides(t *testing.T) {
	cfg := Defaults()

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	configureFlags(fs)

	args := []string{
		"--vus=5",
		"--mode=DURATION",
		"--token-list=a,b",
		"--token-list=c",
		"--host-user=user-qa.example.com",
		"--product-id=",
		"--threshold=checks:rate > 0.95",
		"--tracing-sample-rate=0.25",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if err := applyFlagOverrides(cfg, fs); err != nil {
		t.Fatalf("applyFlagOverrides() error = %v", err)
	}

	if cfg.VUs != 5 {
		t.Errorf("VUs = %d, want 5", cfg.VUs)
	}
	if cfg.Mode != TestModeDuration {
		t.Errorf("Mode = %q, want duration", cfg.Mode)
	}
	if len(cfg.TokenList) != 3 {
		t.Errorf("TokenList = %v, want 3 tokens", cfg.TokenList)
	}
	if cfg.Hosts.User != "user-qa.example.com" {
		t.Errorf("Hosts.User = %q", cfg.Hosts.User)
	}
	if !cfg.Browse() {
		t.Errorf("Browse() = false, want true after --product-id=")
	}
	if len(cfg.Thresholds) != 1 {
		t.Errorf("Thresholds = %v, want 1", cfg.Thresholds)
	}
	if cfg.Tracing.SampleRate != 0.25 {
		t.Errorf("Tracing.SampleRate = %v, want 0.25", cfg.Tracing.SampleRate)
	}
	if cfg.Iterations != 1 {
		t.Errorf("Iterations = %d, want untouched default 1", cfg.Iterations)
	}
}

func TestPrefixedEnvName(t *testing.T) {
	if got := prefixed("hosts.product"); got != "SHOPFLOW_HOSTS_PRODUCT" {
		t.Errorf("prefixed() = %q", got)
	}
}
