package cmd

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/heutelbeck/sapl-go/internal/config"
)

// captureStdout runs fn with os.Stdout redirected to a pipe and returns
// everything written to it.
func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	orig := os.Stdout
	os.Stdout = w
	fnErr := fn()
	os.Stdout = orig
	w.Close()
	out, _ := io.ReadAll(r)
	return string(out), fnErr
}

func TestValidateCmd_PrintFlagDefaultsFalse(t *testing.T) {
	flag := validateCmd.Flags().Lookup("print")
	if flag == nil {
		t.Fatal("expected a --print flag on validate")
	}
	if flag.DefValue != "false" {
		t.Errorf("--print default = %q, want %q", flag.DefValue, "false")
	}
}

func TestRunValidate_ReportsCompiledDocumentCount(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "sapl-go.yaml")
	yaml := `
pdp_id: test-pdp
configuration_id: test-cfg
algorithm: deny-overrides
policies:
  - source: 'policy "allow" permit where true;'
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	config.InitViper(cfgPath)

	printResolved = false
	out, err := captureStdout(t, func() error { return runValidate(validateCmd, nil) })
	if err != nil {
		t.Fatalf("runValidate: %v", err)
	}
	if !bytes.Contains([]byte(out), []byte(`1 document(s) compiled`)) {
		t.Fatalf("expected output to report 1 compiled document, got %q", out)
	}
}

func TestRunValidate_PrintDumpsResolvedConfigAsYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "sapl-go.yaml")
	yaml := `
pdp_id: test-pdp
configuration_id: test-cfg
algorithm: permit-overrides
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	config.InitViper(cfgPath)

	printResolved = true
	defer func() { printResolved = false }()
	out, err := captureStdout(t, func() error { return runValidate(validateCmd, nil) })
	if err != nil {
		t.Fatalf("runValidate: %v", err)
	}
	if !bytes.Contains([]byte(out), []byte("pdp_id: test-pdp")) {
		t.Fatalf("expected YAML dump to contain pdp_id, got %q", out)
	}
}
