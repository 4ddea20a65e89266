package envy

import (
	"flag"
	"strings"
	"testing"
	"time"
)

func TestEnvVar(t *testing.T) {
	tests := []struct {
		prefix, name, want string
	}{
		{"APP", "addr", "APP_ADDR"},
		{"APP", "allowHosts", "APP_ALLOWHOSTS"},
		{"APP", "cache-dir", "APP_CACHE_DIR"},
	}
	for _, tt := range tests {
		if got := EnvVar(tt.prefix, tt.name); got != tt.want {
			t.Errorf("EnvVar(%q, %q) = %q, want %q", tt.prefix, tt.name, got, tt.want)
		}
	}
}

func TestParseFlagSet(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	addr := fs.String("addr", "localhost:8080", "listen address")
	timeout := fs.Duration("timeout", 0, "timeout")
	verbose := fs.Bool("verbose", false, "verbose")
	agent := fs.String("user-agent", "default", "user agent")

	t.Setenv("TEST_ADDR", ":9090")
	t.Setenv("TEST_TIMEOUT", "5s")
	t.Setenv("TEST_VERBOSE", "")
	t.Setenv("TEST_USER_AGENT", "from-env")

	// explicitly set flags win over the environment
	if err := fs.Parse([]string{"-user-agent=from-flag"}); err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if err := ParseFlagSet("TEST", fs); err != nil {
		t.Fatalf("ParseFlagSet returned error: %v", err)
	}

	if *addr != ":9090" {
		t.Errorf("addr = %q, want %q", *addr, ":9090")
	}
	if *timeout != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", *timeout)
	}
	if *verbose {
		t.Errorf("verbose set from empty environment variable")
	}
	if *agent != "from-flag" {
		t.Errorf("user-agent = %q, want %q", *agent, "from-flag")
	}
	if u := fs.Lookup("addr").Usage; !strings.HasSuffix(u, "[TEST_ADDR]") {
		t.Errorf("addr usage = %q, want environment variable suffix", u)
	}
}

func TestParseFlagSet_Invalid(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Duration("timeout", 0, "timeout")
	t.Setenv("TEST_TIMEOUT", "soon")

	if err := ParseFlagSet("TEST", fs); err == nil {
		t.Errorf("ParseFlagSet with invalid value did not return expected error")
	}
}
