// Package config provides configuration loading for the slotpool tool.
//
// A single Config structure groups the settings of a run:
//
//   - Pool: name and page length of the pool under test
//   - Logging: level and encoding of the global zap logger
//   - Metrics: Prometheus exposition output
//   - Tracing: OpenTelemetry span export
//   - Bench: workers, cycles, mode and report output
//
// # Usage
//
//	cfg, err := config.LoadFile("bench.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
// LoadFile starts from NewDefault, overlays the YAML file and validates the
// result. Load and Save work on any yaml-tagged value.
//
// # Environment Variable Substitution
//
// ${VAR_NAME} is replaced with the variable's value before parsing, and
// ${VAR_NAME:-default} falls back to default when the variable is unset:
//
//	# bench.yaml
//	pool:
//	  page_len: ${PAGE_LEN:-256}
//	bench:
//	  workers: ${WORKERS}
//	  report: ${REPORT_DIR}/bench.json.zst
//
// Validation failures are *errors.Error values of type
// errors.ErrorTypeConfig with the offending field in Details["field"].
package config
