package config_test

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/ajitpratap0/slotpool/pkg/config"
)

// ExampleNewDefault demonstrates the default configuration.
func ExampleNewDefault() {
	cfg := config.NewDefault()

	fmt.Printf("Page Length: %d\n", cfg.Pool.PageLen)
	fmt.Printf("Mode: %s\n", cfg.Bench.Mode)
	fmt.Printf("Log Level: %s\n", cfg.Logging.Level)

	// Output:
	// Page Length: 64
	// Mode: ref
	// Log Level: info
}

// ExampleConfig_Validate shows how to validate a configuration before
// using it.
func ExampleConfig_Validate() {
	cfg := config.NewDefault()
	cfg.Bench.Mode = config.ModeGuard
	cfg.Bench.Hold = 32

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	fmt.Println("Configuration is valid!")

	cfg.Pool.PageLen = 0
	fmt.Println(cfg.Validate())

	// Output:
	// Configuration is valid!
	// config: pool.page_len must be positive
}

// ExampleLoadFile demonstrates loading configuration from a YAML file
// with environment variable substitution.
func ExampleLoadFile() {
	dir, err := os.MkdirTemp("", "slotpool-config-*")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	os.Setenv("EXAMPLE_PAGE_LEN", "4")
	defer os.Unsetenv("EXAMPLE_PAGE_LEN")

	path := filepath.Join(dir, "bench.yaml")
	yaml := "pool:\n  page_len: ${EXAMPLE_PAGE_LEN}\nbench:\n  mode: ${EXAMPLE_MODE:-scope}\n"
	if err := os.WriteFile(path, []byte(yaml), 0600); err != nil {
		log.Fatal(err)
	}

	cfg, err := config.LoadFile(path)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Page Length: %d\n", cfg.Pool.PageLen)
	fmt.Printf("Mode: %s\n", cfg.Bench.Mode)
	fmt.Printf("Pool Name: %s\n", cfg.Pool.Name)

	// Output:
	// Page Length: 4
	// Mode: scope
	// Pool Name: bench
}
