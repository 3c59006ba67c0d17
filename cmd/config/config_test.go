package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"

	"github.com/alibertay/san-network/internal/testutil"
)

func TestLoadConfigDefault(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	defer os.Chdir(wd)
	viper.Reset()

	if err := os.Chdir("../.."); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}
	LoadConfig("")
	if AppConfig.VM.StepCap != 0 {
		t.Fatalf("unexpected default step cap: %d", AppConfig.VM.StepCap)
	}
	if AppConfig.Logging.Level != "info" {
		t.Fatalf("unexpected default logging level: %s", AppConfig.Logging.Level)
	}
}

func TestLoadConfigOverride(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	defer os.Chdir(wd)
	viper.Reset()

	if err := os.Chdir("../.."); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}
	LoadConfig("bootstrap")
	if AppConfig.VM.StepCap != 100000 {
		t.Fatalf("expected step cap 100000, got %d", AppConfig.VM.StepCap)
	}
	if AppConfig.Logging.Level != "debug" {
		t.Fatalf("expected logging level override")
	}
}

func TestLoadConfigSandbox(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox failed: %v", err)
	}
	defer sb.Cleanup()

	if err := os.Mkdir(sb.Path("config"), 0700); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}

	data := []byte("vm:\n  step_cap: 42\n  output: discard\n")
	if err := sb.WriteFile("config/default.yaml", data, 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	defer os.Chdir(wd)
	viper.Reset()

	if err := os.Chdir(sb.Root); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}
	LoadConfig("")

	if AppConfig.VM.StepCap != 42 {
		t.Fatalf("expected step cap 42, got %d", AppConfig.VM.StepCap)
	}
	if AppConfig.VM.Output != "discard" {
		t.Fatalf("expected output discard, got %s", AppConfig.VM.Output)
	}
}
