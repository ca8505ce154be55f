package commands

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/cli"
	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/rules"
	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/webhook"
)

func TestParseConfigKey(t *testing.T) {
	tests := []struct {
		in      string
		env     string
		key     string
		wantErr bool
	}{
		{in: "dev.base_url", env: "dev", key: "base_url"},
		{in: "prod.api_key", env: "prod", key: "api_key"},
		{in: "prod", wantErr: true},
		{in: ".api_key", wantErr: true},
		{in: "prod.timeout", env: "prod", key: "timeout"},
		{in: "prod.token", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			env, key, err := parseConfigKey(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Expected error for %q", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if env != tt.env || key != tt.key {
				t.Errorf("Got (%s, %s), want (%s, %s)", env, key, tt.env, tt.key)
			}
		})
	}
}

func TestSetProfileValue(t *testing.T) {
	var p cli.EnvConfig
	if err := setProfileValue(&p, "format", "JSON"); err != nil || p.Format != "json" {
		t.Errorf("format: %+v %v", p, err)
	}
	if err := setProfileValue(&p, "timeout", "45s"); err != nil || p.Timeout != 45*time.Second {
		t.Errorf("timeout: %+v %v", p, err)
	}
	if err := setProfileValue(&p, "format", "csv"); err == nil {
		t.Error("Expected error for unsupported format")
	}
	if err := setProfileValue(&p, "timeout", "soon"); err == nil {
		t.Error("Expected error for bad duration")
	}
}

func TestMaskKey(t *testing.T) {
	if got := maskKey("admin-123"); got != "admi***" {
		t.Errorf("maskKey = %q", got)
	}
	if got := maskKey("abc"); got != "***" {
		t.Errorf("maskKey = %q", got)
	}
}

func TestFilterFromFlags(t *testing.T) {
	if _, err := filterFromFlags("all", nil, ""); err == nil {
		t.Error("Expected error without conditions")
	}
	if _, err := filterFromFlags("all", []string{"age:greaterThan:18"}, "f.yaml"); err == nil {
		t.Error("Expected error when combining --condition and --filter-file")
	}

	set, err := filterFromFlags("any", []string{"state:equals:CA", "age:greaterThan:18"}, "")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if set.MatchType != rules.MatchAny || len(set.Conditions) != 2 {
		t.Errorf("Unexpected filter: %+v", set)
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"list", "get", "create", "update", "delete", "duplicate", "activate",
		"deactivate", "recount", "members", "fields", "export", "import", "config", "webhook"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("Command %q not registered", name)
		}
	}
}

func TestWebhookVerify(t *testing.T) {
	payload := []byte(`{"type":"segment.created"}`)
	valid := webhook.Sign(payload, "s3cret", time.Now())

	tests := []struct {
		name      string
		body      string
		signature string
		wantErr   bool
	}{
		{name: "valid", body: string(payload), signature: valid},
		{name: "tampered body", body: `{"type":"segment.deleted"}`, signature: valid, wantErr: true},
		{name: "stale", body: string(payload), signature: webhook.Sign(payload, "s3cret", time.Now().Add(-time.Hour)), wantErr: true},
		{name: "garbage header", body: string(payload), signature: "nonsense", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			rootCmd.SetIn(strings.NewReader(tt.body))
			rootCmd.SetOut(&out)
			rootCmd.SetErr(&out)
			rootCmd.SetArgs([]string{"webhook", "verify", "--secret", "s3cret", "--signature", tt.signature})
			t.Cleanup(func() { rootCmd.SetIn(nil); rootCmd.SetOut(nil); rootCmd.SetErr(nil); rootCmd.SetArgs(nil) })

			err := rootCmd.Execute()
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected signature to be rejected")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if !strings.Contains(out.String(), "Signature valid") {
				t.Errorf("Unexpected output %q", out.String())
			}
		})
	}
}
