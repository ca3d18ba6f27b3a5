package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitWritesAuditFile(t *testing.T) {
	dir := t.TempDir()
	auditPath := filepath.Join(dir, "audit", "actions.log")
	mainPath := filepath.Join(dir, "sim.log")

	if err := Init(Config{
		Level:       "debug",
		Format:      "json",
		OutputPaths: []string{mainPath},
		Audit:       AuditConfig{Enabled: true, Path: auditPath},
	}); err != nil {
		t.Fatalf("init logger: %v", err)
	}
	defer func() {
		_ = Sync()
		_ = Init(Config{OutputPaths: []string{"discard"}})
	}()

	Named("scheduler").Info("step finished", "episode", 3)
	Audit().Info("action recorded", "agent", "alice")
	if err := Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}

	mainContent, err := os.ReadFile(mainPath)
	if err != nil {
		t.Fatalf("read main log: %v", err)
	}
	if !strings.Contains(string(mainContent), `"component":"scheduler"`) {
		t.Fatalf("component attribute missing: %s", mainContent)
	}

	auditContent, err := os.ReadFile(auditPath)
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	if !strings.Contains(string(auditContent), `"agent":"alice"`) {
		t.Fatalf("audit entry missing: %s", auditContent)
	}
}

func TestAuditRequiresPath(t *testing.T) {
	if err := Init(Config{Audit: AuditConfig{Enabled: true}}); err == nil {
		t.Fatalf("expected error for empty audit path")
	}
}
