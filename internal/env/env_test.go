package env

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestTypedGetters(t *testing.T) {
	t.Setenv("DEVICESCAN_TEST_STR", "  value ")
	t.Setenv("DEVICESCAN_TEST_DUR", "1500ms")
	t.Setenv("DEVICESCAN_TEST_INT", "42")
	t.Setenv("DEVICESCAN_TEST_BOOL", "yes")
	t.Setenv("DEVICESCAN_TEST_BAD", "nope")
	t.Setenv("DEVICESCAN_TEST_LIST", "standard, ,adb")

	if got := String("DEVICESCAN_TEST_STR", "x"); got != "value" {
		t.Fatalf("String=%q", got)
	}
	if got := String("DEVICESCAN_TEST_UNSET", "x"); got != "x" {
		t.Fatalf("String fallback=%q", got)
	}
	if got := Duration("DEVICESCAN_TEST_DUR", 0); got != 1500*time.Millisecond {
		t.Fatalf("Duration=%s", got)
	}
	if got := Duration("DEVICESCAN_TEST_BAD", time.Second); got != time.Second {
		t.Fatalf("Duration fallback=%s", got)
	}
	if got := Int("DEVICESCAN_TEST_INT", 0); got != 42 {
		t.Fatalf("Int=%d", got)
	}
	if got := Int("DEVICESCAN_TEST_BAD", 7); got != 7 {
		t.Fatalf("Int fallback=%d", got)
	}
	if !Bool("DEVICESCAN_TEST_BOOL", false) {
		t.Fatal("Bool should be true")
	}
	if !Bool("DEVICESCAN_TEST_BAD", true) {
		t.Fatal("Bool fallback should be kept for unknown values")
	}
	if got := List("DEVICESCAN_TEST_LIST"); len(got) != 2 || got[0] != "standard" || got[1] != "adb" {
		t.Fatalf("List=%v", got)
	}
}

func writeDotEnv(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("DEVICESCAN_ADAPTERS=standard\n"), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
}

func TestResolveDotEnv(t *testing.T) {
	root := t.TempDir()
	home := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	got, err := resolveDotEnv("", nested, home)
	if err != nil || got != "" {
		t.Fatalf("empty tree: got %q, %v", got, err)
	}

	homeEnv := filepath.Join(home, ".devicescan", ".env")
	writeDotEnv(t, homeEnv)
	if got, _ := resolveDotEnv("", nested, home); got != homeEnv {
		t.Fatalf("home fallback=%q, want %q", got, homeEnv)
	}

	rootEnv := filepath.Join(root, ".env")
	writeDotEnv(t, rootEnv)
	if got, _ := resolveDotEnv("", nested, home); got != rootEnv {
		t.Fatalf("ancestor search=%q, want %q", got, rootEnv)
	}

	if got, _ := resolveDotEnv(" "+homeEnv+" ", nested, home); got != homeEnv {
		t.Fatalf("explicit=%q, want %q", got, homeEnv)
	}
	if _, err := resolveDotEnv(filepath.Join(root, "missing.env"), nested, home); err == nil {
		t.Fatal("expected error for missing explicit file")
	}
}

func TestEnsureIsHermeticUnderGoTest(t *testing.T) {
	if !runningUnderGoTest() {
		t.Fatal("expected go test detection")
	}
	if err := Ensure(); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if LoadedPath() != "" {
		t.Fatalf("unexpected .env load: %s", LoadedPath())
	}
}
