package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSettings(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadSettingsAppliesDefaults(t *testing.T) {
	path := writeSettings(t, `{
		"processing_settings": {
			"method": "copy",
			"batch_size": 100,
			"columns": ["name", "salary"],
			"src_table": "workers",
			"transfer_table": "_transfer_workers"
		}
	}`)

	s, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if s.ProcessingSettings.ProcessedColumn != defaultProcessedColumn {
		t.Errorf("processed_column = %q, want default %q", s.ProcessingSettings.ProcessedColumn, defaultProcessedColumn)
	}
	if s.ProcessingSettings.IDColumn != defaultIDColumn {
		t.Errorf("id_column = %q, want default %q", s.ProcessingSettings.IDColumn, defaultIDColumn)
	}
}

func TestLoadSettingsRejectsUnknownMethod(t *testing.T) {
	path := writeSettings(t, `{
		"processing_settings": {
			"method": "teleport",
			"batch_size": 1,
			"src_table": "workers",
			"transfer_table": "_transfer_workers"
		}
	}`)

	if _, err := LoadSettings(path); err == nil {
		t.Fatal("expected error for unknown method")
	}
}

func TestLoadSettingsRequiresColumnsForCopy(t *testing.T) {
	path := writeSettings(t, `{
		"processing_settings": {
			"method": "copy",
			"batch_size": 1,
			"src_table": "workers",
			"transfer_table": "_transfer_workers"
		}
	}`)

	if _, err := LoadSettings(path); err == nil {
		t.Fatal("expected error for missing columns")
	}
}

func TestLoadConnectionsRequiresSrc(t *testing.T) {
	t.Setenv("SRC_CONN_STRING", "")
	t.Setenv("DST_CONN_STRINGS", "")
	if _, err := LoadConnections("", false); err == nil {
		t.Fatal("expected error for missing SRC_CONN_STRING")
	}
}

func TestLoadConnectionsParsesDestinations(t *testing.T) {
	t.Setenv("SRC_CONN_STRING", "postgres://localhost/src")
	t.Setenv("DST_CONN_STRINGS", `["postgres://a/db", "postgres://b/db"]`)

	c, err := LoadConnections("", true)
	if err != nil {
		t.Fatalf("LoadConnections: %v", err)
	}
	if len(c.Dst) != 2 {
		t.Fatalf("got %d destinations, want 2", len(c.Dst))
	}
}

func TestLoadConnectionsRequiresDstInReplicatedMode(t *testing.T) {
	t.Setenv("SRC_CONN_STRING", "postgres://localhost/src")
	t.Setenv("DST_CONN_STRINGS", "")
	if _, err := LoadConnections("", true); err == nil {
		t.Fatal("expected error for missing DST_CONN_STRINGS in replicated mode")
	}
}
