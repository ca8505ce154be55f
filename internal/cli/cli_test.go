package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/rules"
	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/store"
)

func useTempConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	configPathOverride = path
	t.Cleanup(func() { configPathOverride = "" })
	t.Setenv(envBaseURL, "")
	t.Setenv(envAPIKey, "")
	return path
}

func TestConfig_InitAndLoad(t *testing.T) {
	path := useTempConfig(t)

	if err := InitConfig(); err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config not written: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Expected mode 0600, got %v", info.Mode().Perm())
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.DefaultEnv != "dev" {
		t.Errorf("Expected default env dev, got %s", cfg.DefaultEnv)
	}
	if cfg.Environments["dev"].BaseURL != "http://localhost:8080" {
		t.Errorf("Unexpected dev config: %+v", cfg.Environments["dev"])
	}
}

func TestConfig_MissingFile(t *testing.T) {
	useTempConfig(t)
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if len(cfg.Environments) != 0 {
		t.Errorf("Expected empty environments, got %v", cfg.Environments)
	}
}

func TestGetEnvConfig_Priority(t *testing.T) {
	useTempConfig(t)
	if err := SaveConfig(&Config{
		DefaultEnv: "dev",
		Environments: map[string]EnvConfig{
			"dev":     {BaseURL: "http://dev:8080", APIKey: "dev-key"},
			"staging": {BaseURL: "http://staging:8080", APIKey: "staging-key"},
		},
	}); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	cfg, name, err := GetEnvConfig("", "", "")
	if err != nil || name != "dev" || cfg.APIKey != "dev-key" {
		t.Fatalf("default env: %+v %s %v", cfg, name, err)
	}

	cfg, name, err = GetEnvConfig("staging", "", "override")
	if err != nil || name != "staging" || cfg.APIKey != "override" || cfg.BaseURL != "http://staging:8080" {
		t.Fatalf("flag override: %+v %s %v", cfg, name, err)
	}

	cfg, _, err = GetEnvConfig("", "http://flag", "flag-key")
	if err != nil || cfg.BaseURL != "http://flag" {
		t.Fatalf("flags only: %+v %v", cfg, err)
	}

	t.Setenv(envBaseURL, "http://env")
	t.Setenv(envAPIKey, "env-key")
	cfg, _, err = GetEnvConfig("", "", "")
	if err != nil || cfg.BaseURL != "http://env" || cfg.APIKey != "env-key" {
		t.Fatalf("env vars: %+v %v", cfg, err)
	}
}

func TestGetEnvConfig_UnknownEnv(t *testing.T) {
	useTempConfig(t)
	if _, _, err := GetEnvConfig("nowhere", "", ""); err == nil {
		t.Fatal("Expected error for unknown environment")
	}
}

func TestGetEnvConfig_LayersPerField(t *testing.T) {
	useTempConfig(t)
	if err := SaveConfig(&Config{
		DefaultEnv: "prod",
		Environments: map[string]EnvConfig{
			"prod": {BaseURL: "https://segments.prod", APIKey: "prod-key", Format: "json", Timeout: 5 * time.Second},
		},
	}); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	// Base URL from the environment, key and defaults from the profile.
	t.Setenv(envBaseURL, "http://tunnel:9000")
	cfg, name, err := GetEnvConfig("", "", "")
	if err != nil {
		t.Fatalf("GetEnvConfig failed: %v", err)
	}
	if name != "prod" || cfg.BaseURL != "http://tunnel:9000" || cfg.APIKey != "prod-key" {
		t.Errorf("Unexpected resolution: %s %+v", name, cfg)
	}
	if cfg.Format != "json" || cfg.Timeout != 5*time.Second {
		t.Errorf("Expected profile defaults to carry over, got %+v", cfg)
	}

	// Flags and variables cover everything: no profile is involved.
	t.Setenv(envAPIKey, "env-key")
	cfg, name, err = GetEnvConfig("", "", "")
	if err != nil || name != customEnv || cfg.Format != "" {
		t.Errorf("Expected custom target without profile defaults, got %s %+v %v", name, cfg, err)
	}

	// An explicit unknown profile is an error even when flags are complete.
	if _, _, err := GetEnvConfig("staging", "http://x", "k"); err == nil {
		t.Error("Expected error for unknown explicit environment")
	}
}

func TestEnvConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     EnvConfig
		wantErr bool
	}{
		{name: "valid", cfg: EnvConfig{BaseURL: "https://segments.internal", Format: "yaml", Timeout: time.Second}},
		{name: "missing url", cfg: EnvConfig{}, wantErr: true},
		{name: "no scheme", cfg: EnvConfig{BaseURL: "segments.internal"}, wantErr: true},
		{name: "wrong scheme", cfg: EnvConfig{BaseURL: "ftp://segments.internal"}, wantErr: true},
		{name: "bad format", cfg: EnvConfig{BaseURL: "http://x", Format: "csv"}, wantErr: true},
		{name: "negative timeout", cfg: EnvConfig{BaseURL: "http://x", Timeout: -time.Second}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ProfileYAML(t *testing.T) {
	path := useTempConfig(t)
	raw := "default_env: dev\nenvironments:\n  dev:\n    base_url: http://localhost:8080\n    api_key: k\n    timeout: 45s\n"
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if got := cfg.Environments["dev"].Timeout; got != 45*time.Second {
		t.Errorf("Expected 45s timeout, got %v", got)
	}
}

func TestParseCondition(t *testing.T) {
	tests := []struct {
		expr    string
		want    rules.Value
		wantErr bool
	}{
		{expr: "lastSession:lessThan:60", want: rules.NumberValue(60)},
		{expr: "state:equals:CA", want: rules.StringValue("CA")},
		{expr: "telehealth:equals:true", want: rules.BoolValue(true)},
		{expr: "lifetimeValue:between:[100,500]", want: rules.RangeValue{Min: 100, Max: 500}},
		{expr: "email:endsWith:@example.com:8080", want: rules.StringValue("@example.com:8080")},
		{expr: "status:equals", wantErr: true},
		{expr: ":equals:x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			c, err := ParseCondition(tt.expr, 0)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCondition failed: %v", err)
			}
			if c.ID != "c1" {
				t.Errorf("Expected id c1, got %s", c.ID)
			}
			if c.Value != tt.want {
				t.Errorf("Expected value %#v, got %#v", tt.want, c.Value)
			}
		})
	}
}

func TestBuildFilter(t *testing.T) {
	set, err := BuildFilter("any", []string{"state:equals:CA", "state:equals:NY"})
	if err != nil {
		t.Fatalf("BuildFilter failed: %v", err)
	}
	if set.MatchType != rules.MatchAny || len(set.Conditions) != 2 || set.Conditions[1].ID != "c2" {
		t.Errorf("Unexpected set: %+v", set)
	}
	if err := rules.ClientFields().Validate(set); err != nil {
		t.Errorf("Expected a valid filter: %v", err)
	}
}

func TestReadFilterFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filter.yaml")
	content := `matchType: all
conditions:
  - id: recent
    field: lastSession
    operator: lessThan
    value: 60
  - id: dx
    field: diagnoses
    operator: contains
    value: [anxiety, depression]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	set, err := ReadFilterFile(path)
	if err != nil {
		t.Fatalf("ReadFilterFile failed: %v", err)
	}
	if len(set.Conditions) != 2 {
		t.Fatalf("Expected 2 conditions, got %d", len(set.Conditions))
	}
	if set.Conditions[0].Value != rules.NumberValue(60) {
		t.Errorf("Unexpected first value %#v", set.Conditions[0].Value)
	}
	if _, ok := set.Conditions[1].Value.(rules.StringSetValue); !ok {
		t.Errorf("Expected string set, got %#v", set.Conditions[1].Value)
	}
}

func sampleSegments() []store.Segment {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return []store.Segment{
		{
			ID: "system-active-clients", Name: "Active Clients", IsSystem: true, IsActive: true, ClientCount: 10,
			Filter:    rules.ConditionSet{MatchType: rules.MatchAll, Conditions: []rules.Condition{{ID: "s", Field: "status", Operator: rules.OpEquals, Value: rules.StringValue("active")}}},
			CreatedAt: at, UpdatedAt: at,
		},
		{
			ID: "seg-1", Name: "High value", Tags: []string{"billing"}, IsActive: true, ClientCount: 3, CountApproximate: true,
			Filter:    rules.ConditionSet{MatchType: rules.MatchAll, Conditions: []rules.Condition{{ID: "v", Field: "lifetimeValue", Operator: rules.OpBetween, Value: rules.RangeValue{Min: 1000, Max: 5000}}}},
			CreatedAt: at, UpdatedAt: at,
		},
	}
}

func TestPrintSegments(t *testing.T) {
	segs := sampleSegments()

	var buf bytes.Buffer
	if err := PrintSegments(&buf, segs, FormatTable); err != nil {
		t.Fatalf("table: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Active Clients", "High value", "~3", "billing"} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	if err := PrintSegments(&buf, segs, FormatJSON); err != nil {
		t.Fatalf("json: %v", err)
	}
	var decoded struct {
		Segments []store.Segment `json:"segments"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("json output not decodable: %v", err)
	}
	if len(decoded.Segments) != 2 {
		t.Errorf("Expected 2 segments, got %d", len(decoded.Segments))
	}

	buf.Reset()
	if err := PrintSegments(&buf, segs, FormatYAML); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if !strings.Contains(buf.String(), "clientCount: 3") {
		t.Errorf("yaml should use API field names:\n%s", buf.String())
	}

	if err := PrintSegments(&buf, segs, "xml"); err == nil {
		t.Error("Expected unsupported format error")
	}
}

func TestPrintSegment_ShowsConditions(t *testing.T) {
	seg := sampleSegments()[1]
	var buf bytes.Buffer
	if err := PrintSegment(&buf, &seg, FormatTable); err != nil {
		t.Fatalf("PrintSegment failed: %v", err)
	}
	if !strings.Contains(buf.String(), "[1000,5000]") {
		t.Errorf("Expected range value in output:\n%s", buf.String())
	}
}

func TestPrintValue(t *testing.T) {
	var buf bytes.Buffer
	if err := PrintValue(&buf, map[string]int{"count": 2}, FormatYAML); err != nil {
		t.Fatalf("PrintValue failed: %v", err)
	}
	if strings.TrimSpace(buf.String()) != "count: 2" {
		t.Errorf("Unexpected YAML: %q", buf.String())
	}
	if err := PrintValue(&buf, 1, FormatTable); err == nil {
		t.Error("Expected error for table format")
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("JSON"); err != nil || f != FormatJSON {
		t.Errorf("ParseFormat(JSON) = %v, %v", f, err)
	}
	if _, err := ParseFormat("csv"); err == nil {
		t.Error("Expected error for csv")
	}
}

func TestSegmentFile_RoundTrip(t *testing.T) {
	file := ToSegmentFile(sampleSegments())
	if len(file.Segments) != 1 {
		t.Fatalf("Expected system segments to be skipped, got %d", len(file.Segments))
	}

	for _, name := range []string{"segments.yaml", "segments.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			if err := WriteSegmentFile(path, file); err != nil {
				t.Fatalf("WriteSegmentFile failed: %v", err)
			}
			got, err := ReadSegmentFile(path)
			if err != nil {
				t.Fatalf("ReadSegmentFile failed: %v", err)
			}
			if len(got.Segments) != 1 || got.Segments[0].Name != "High value" {
				t.Fatalf("Unexpected segments: %+v", got.Segments)
			}
			if got.Segments[0].Filter.Conditions[0].Value != (rules.RangeValue{Min: 1000, Max: 5000}) {
				t.Errorf("Range value lost: %#v", got.Segments[0].Filter.Conditions[0].Value)
			}
		})
	}
}
