package config

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"pdfsift/fuzzy"
	"pdfsift/hasher"
	"pdfsift/settings"
	"pdfsift/version"
)

type Config struct {
	StartPaths           []string          `json:"start_paths" yaml:"start_paths"`
	CaseName             string            `json:"case_name" yaml:"case_name"`
	CaseDir              string            `json:"case_dir" yaml:"case_dir"`
	TempDir              string            `json:"temp_dir" yaml:"temp_dir"`
	VerifierPath         string            `json:"verifier_path" yaml:"verifier_path"`
	ExiftoolPath         string            `json:"exiftool_path" yaml:"exiftool_path"`
	SuppressDuplicates   bool              `json:"suppress_duplicates" yaml:"suppress_duplicates"`
	CreateCSV            bool              `json:"create_csv" yaml:"create_csv"`
	SettingsDB           string            `json:"settings_db" yaml:"settings_db"`
	SaveSettings         bool              `json:"save_settings" yaml:"save_settings"`
	ArtifactDB           string            `json:"artifact_db" yaml:"artifact_db"`
	ConcurrencyLevel     int               `json:"concurrency_level" yaml:"concurrency_level"`
	NiceLevel            string            `json:"nice_level" yaml:"nice_level"`
	LogLevel             string            `json:"log_level" yaml:"log_level"`
	MaxDispatchPerSecond int               `json:"max_dispatch_per_second" yaml:"max_dispatch_per_second"`
	AutoTune             bool              `json:"auto_tune" yaml:"auto_tune"`
	AutoTuneInterval     time.Duration     `json:"auto_tune_interval" yaml:"auto_tune_interval"`
	AutoTuneTargetCPU    float64           `json:"auto_tune_target_cpu" yaml:"auto_tune_target_cpu"`
	IncludePatterns      []string          `json:"include_patterns" yaml:"include_patterns"`
	ExcludePatterns      []string          `json:"exclude_patterns" yaml:"exclude_patterns"`
	VerboseExec          bool              `json:"verbose_exec" yaml:"verbose_exec"`
	LogFileNames         bool              `json:"log_file_names" yaml:"log_file_names"`
	DedupContent         bool              `json:"dedup_content" yaml:"dedup_content"`
	HashAlgorithms       []string          `json:"hash_algorithms" yaml:"hash_algorithms"`
	FuzzyHash            string            `json:"fuzzy_hash" yaml:"fuzzy_hash"`
	DocInfo              bool              `json:"doc_info" yaml:"doc_info"`
	MetadataMaxBytes     int64             `json:"metadata_max_bytes" yaml:"metadata_max_bytes"`
	SkipCount            bool              `json:"skip_count" yaml:"skip_count"`
	ConfigFile           string            `json:"config_file" yaml:"config_file"`
	DiagSlowThreshold    time.Duration     `json:"diag_slow_threshold" yaml:"diag_slow_threshold"`
	DiagDir              string            `json:"diag_dir" yaml:"diag_dir"`
	DiagGoroutineLeak    bool              `json:"diag_goroutine_leak" yaml:"diag_goroutine_leak"`
	OtelEndpoint         string            `json:"otel_endpoint" yaml:"otel_endpoint"`
	OtelFromEnv          bool              `json:"otel_from_env" yaml:"otel_from_env"`
	OtelHeaders          map[string]string `json:"otel_headers" yaml:"otel_headers"`
	OtelServiceName      string            `json:"otel_service_name" yaml:"otel_service_name"`
	OtelTimeout          time.Duration     `json:"otel_timeout" yaml:"otel_timeout"`
	OtelExportPaths      bool              `json:"otel_export_paths" yaml:"otel_export_paths"`
	TraceFlight          bool              `json:"trace_flight" yaml:"trace_flight"`
	TraceFlightFile      string            `json:"trace_flight_file" yaml:"trace_flight_file"`
	TraceFlightMaxBytes  uint64            `json:"trace_flight_max_bytes" yaml:"trace_flight_max_bytes"`
	TraceFlightMinAge    time.Duration     `json:"trace_flight_min_age" yaml:"trace_flight_min_age"`
	ConcurrencySet       bool              `json:"-" yaml:"-"`
	MaxDispatchSet       bool              `json:"-" yaml:"-"`
	pinned               map[string]bool
}

// Keys of the four fields that the settings database may supply. A key is
// pinned once a config file or an explicit flag sets it.
const (
	keyVerifier   = "verifier_path"
	keyExiftool   = "exiftool_path"
	keySuppress   = "suppress_duplicates"
	keyCreateCSV  = "create_csv"
	defaultCase   = "pdfsift"
	defaultFlight = "trace-flight.out"
)

func defaults() *Config {
	return &Config{
		StartPaths:           []string{"."},
		CaseName:             defaultCase,
		CaseDir:              ".",
		VerifierPath:         "verifier",
		ExiftoolPath:         "exiftool",
		SuppressDuplicates:   true,
		CreateCSV:            true,
		SettingsDB:           settings.DefaultFileName,
		ConcurrencyLevel:     runtime.NumCPU(),
		NiceLevel:            "medium",
		LogLevel:             "info",
		MaxDispatchPerSecond: 0,
		AutoTune:             false,
		AutoTuneInterval:     5 * time.Second,
		AutoTuneTargetCPU:    60,
		HashAlgorithms:       []string{},
		MetadataMaxBytes:     16 * 1024 * 1024,
		SkipCount:            true,
		DiagDir:              ".",
		OtelHeaders:          map[string]string{},
		OtelServiceName:      "pdfsift",
		OtelTimeout:          5 * time.Second,
		TraceFlightFile:      defaultFlight,
		pinned:               map[string]bool{},
	}
}

func LoadConfig() (*Config, error) {
	cfg := defaults()

	startPath := flag.String("path", strings.Join(cfg.StartPaths, ","), fmt.Sprintf("Comma-separated list of start paths to analyze (default: %s).", strings.Join(cfg.StartPaths, ",")))
	caseName := flag.String("case-name", cfg.CaseName, fmt.Sprintf("Case name used for the working directory and report names (default: %s).", cfg.CaseName))
	caseDir := flag.String("case-dir", cfg.CaseDir, "Case directory; working copies go to <case-dir>/SignedPDFs/<case-name> (default: current directory).")
	tempDir := flag.String("temp-dir", cfg.TempDir, "Directory for verbose tool logs and name logs (default: <case-dir>/Temp).")
	verifierPath := flag.String("verifier", cfg.VerifierPath, fmt.Sprintf("Path to the PDF signature verifier executable (default: %s).", cfg.VerifierPath))
	exiftoolPath := flag.String("exiftool", cfg.ExiftoolPath, fmt.Sprintf("Path to the exiftool executable (default: %s).", cfg.ExiftoolPath))
	suppress := flag.Bool("suppress-duplicates", cfg.SuppressDuplicates, fmt.Sprintf("Do not publish an artifact for files that already have one (default: %t).", cfg.SuppressDuplicates))
	createCSV := flag.Bool("create-csv", cfg.CreateCSV, fmt.Sprintf("Export the signature and permission tables at the end of the run (default: %t).", cfg.CreateCSV))
	settingsDB := flag.String("settings-db", cfg.SettingsDB, fmt.Sprintf("Settings database; empty disables it (default: %s).", cfg.SettingsDB))
	saveSettings := flag.Bool("save-settings", cfg.SaveSettings, "Persist the effective tool paths and switches to the settings database.")
	artifactDB := flag.String("artifact-db", cfg.ArtifactDB, "SQLite artifact database (default: <case-dir>/SignedPDFs/artifacts.db3).")
	concurrency := flag.Int("concurrency", cfg.ConcurrencyLevel, fmt.Sprintf("Concurrency level (default: %d).", cfg.ConcurrencyLevel))
	nice := flag.String("nice", cfg.NiceLevel, fmt.Sprintf("Nice level: high, medium, or low (default: %s).", cfg.NiceLevel))
	logLevel := flag.String("log-level", cfg.LogLevel, fmt.Sprintf("Log level: debug, info, warn, error, fatal, or panic (default: %s).", cfg.LogLevel))
	maxDispatch := flag.Int("max-dispatch-per-second", cfg.MaxDispatchPerSecond, "Maximum files handed to workers per second (default: 0, unlimited).")
	autoTune := flag.Bool("auto-tune", cfg.AutoTune, fmt.Sprintf("Auto-tune dispatch rate from CPU usage (default: %t).", cfg.AutoTune))
	autoTuneInterval := flag.Duration("auto-tune-interval", cfg.AutoTuneInterval, "Auto-tune interval (default: 5s).")
	autoTuneTargetCPU := flag.Float64("auto-tune-target-cpu", cfg.AutoTuneTargetCPU, "Auto-tune target CPU percent (default: 60).")
	includes := flag.String("include", "", "Comma-separated list of include patterns (default: none).")
	excludes := flag.String("exclude", "", "Comma-separated list of exclude patterns (default: none).")
	verboseExec := flag.Bool("verbose-exec", cfg.VerboseExec, "Keep the verifier's stdout and stderr for every file in the temp dir.")
	logFileNames := flag.Bool("log-file-names", cfg.LogFileNames, "Write the name logs to the temp dir.")
	dedupContent := flag.Bool("dedup-content", cfg.DedupContent, "Run the tools once per distinct file content.")
	hashes := flag.String("hashes", "", fmt.Sprintf("Comma-separated digests attached to artifacts: %s (default: none).", strings.Join(hasher.Supported, ", ")))
	fuzzyHash := flag.String("fuzzy-hash", cfg.FuzzyHash, "Fuzzy digest attached to artifacts, e.g. tlsh (default: none).")
	docInfo := flag.Bool("doc-info", cfg.DocInfo, "Attach PDF document info (title, author, producer, pages) to artifacts.")
	metadataMaxBytes := flag.Int64(
		"metadata-max-bytes",
		cfg.MetadataMaxBytes,
		fmt.Sprintf(
			"Maximum bytes metadata parsers may read per file (default: %d, 0 means unlimited).",
			cfg.MetadataMaxBytes,
		),
	)
	skipCount := flag.Bool("skip-count", cfg.SkipCount, "Skip initial file counting to start analyzing immediately")
	configFile := flag.String("config", "", "Path to a JSON or YAML configuration file (default: none).")
	diagSlowThreshold := flag.Duration(
		"diag-slow-threshold",
		cfg.DiagSlowThreshold,
		"If positive, write a stall event when no file completes for this duration (default: 0/off).",
	)
	diagDir := flag.String("diag-dir", cfg.DiagDir, "Diagnostics output directory (default: current directory).")
	diagGoroutineLeak := flag.Bool(
		"diag-goroutine-leak",
		cfg.DiagGoroutineLeak,
		"Write goroutine leak profile on shutdown (default: false).",
	)
	otelEndpoint := flag.String("otel-endpoint", cfg.OtelEndpoint, "OTLP/HTTP logs endpoint (default: none).")
	otelFromEnv := flag.Bool("otel-from-env", cfg.OtelFromEnv, "Allow OTEL endpoint fallback from OTEL environment variables (default: false).")
	otelHeaders := flag.String("otel-headers", "", "Comma-separated OTEL headers (key=value) for export (default: none).")
	otelServiceName := flag.String("otel-service-name", cfg.OtelServiceName, "OTEL service name for export (default: pdfsift).")
	otelTimeout := flag.Duration("otel-timeout", cfg.OtelTimeout, "OTEL export timeout (default: 5s).")
	otelExportPaths := flag.Bool("otel-export-paths", cfg.OtelExportPaths, "Include file and working-copy paths in OTEL payloads (default: false).")
	traceFlight := flag.Bool("trace-flight", cfg.TraceFlight, fmt.Sprintf("Enable flight recorder tracing (default: %t).", cfg.TraceFlight))
	traceFlightFile := flag.String("trace-flight-file", cfg.TraceFlightFile, fmt.Sprintf("Flight recorder output file (default: %s).", cfg.TraceFlightFile))
	traceFlightMaxBytes := flag.Uint64("trace-flight-max-bytes", cfg.TraceFlightMaxBytes, "Max bytes for flight recorder buffer (default: 0 for runtime default).")
	traceFlightMinAge := flag.Duration("trace-flight-min-age", cfg.TraceFlightMinAge, "Minimum age of trace events to retain (default: 0).")
	showVersion := flag.Bool("version", false, "Print version and exit")

	flag.Usage = displayHelp
	flag.Parse()

	if *showVersion {
		fmt.Printf("pdfsift version %s\n", version.Version)
		os.Exit(0)
	}

	if *configFile != "" {
		cfg.ConfigFile = *configFile
		if err := cfg.loadFromFile(cfg.ConfigFile); err != nil {
			return nil, err
		}
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "path":
			cfg.StartPaths = parseCommaSeparated(*startPath)
		case "case-name":
			cfg.CaseName = strings.TrimSpace(*caseName)
		case "case-dir":
			cfg.CaseDir = strings.TrimSpace(*caseDir)
		case "temp-dir":
			cfg.TempDir = strings.TrimSpace(*tempDir)
		case "verifier":
			cfg.VerifierPath = strings.TrimSpace(*verifierPath)
			cfg.pin(keyVerifier)
		case "exiftool":
			cfg.ExiftoolPath = strings.TrimSpace(*exiftoolPath)
			cfg.pin(keyExiftool)
		case "suppress-duplicates":
			cfg.SuppressDuplicates = *suppress
			cfg.pin(keySuppress)
		case "create-csv":
			cfg.CreateCSV = *createCSV
			cfg.pin(keyCreateCSV)
		case "settings-db":
			cfg.SettingsDB = strings.TrimSpace(*settingsDB)
		case "save-settings":
			cfg.SaveSettings = *saveSettings
		case "artifact-db":
			cfg.ArtifactDB = strings.TrimSpace(*artifactDB)
		case "concurrency":
			cfg.ConcurrencyLevel = *concurrency
			cfg.ConcurrencySet = true
		case "nice":
			cfg.NiceLevel = *nice
		case "log-level":
			cfg.LogLevel = *logLevel
		case "max-dispatch-per-second":
			cfg.MaxDispatchPerSecond = *maxDispatch
			cfg.MaxDispatchSet = true
		case "auto-tune":
			cfg.AutoTune = *autoTune
		case "auto-tune-interval":
			cfg.AutoTuneInterval = *autoTuneInterval
		case "auto-tune-target-cpu":
			cfg.AutoTuneTargetCPU = *autoTuneTargetCPU
		case "include":
			cfg.IncludePatterns = parseCommaSeparated(*includes)
		case "exclude":
			cfg.ExcludePatterns = parseCommaSeparated(*excludes)
		case "verbose-exec":
			cfg.VerboseExec = *verboseExec
		case "log-file-names":
			cfg.LogFileNames = *logFileNames
		case "dedup-content":
			cfg.DedupContent = *dedupContent
		case "hashes":
			cfg.HashAlgorithms = parseCommaSeparated(*hashes)
		case "fuzzy-hash":
			cfg.FuzzyHash = *fuzzyHash
		case "doc-info":
			cfg.DocInfo = *docInfo
		case "metadata-max-bytes":
			cfg.MetadataMaxBytes = *metadataMaxBytes
		case "skip-count":
			cfg.SkipCount = *skipCount
		case "diag-slow-threshold":
			cfg.DiagSlowThreshold = *diagSlowThreshold
		case "diag-dir":
			cfg.DiagDir = strings.TrimSpace(*diagDir)
		case "diag-goroutine-leak":
			cfg.DiagGoroutineLeak = *diagGoroutineLeak
		case "otel-endpoint":
			cfg.OtelEndpoint = strings.TrimSpace(*otelEndpoint)
		case "otel-from-env":
			cfg.OtelFromEnv = *otelFromEnv
		case "otel-headers":
			cfg.OtelHeaders = parseHeaders(*otelHeaders)
		case "otel-service-name":
			cfg.OtelServiceName = strings.TrimSpace(*otelServiceName)
		case "otel-timeout":
			cfg.OtelTimeout = *otelTimeout
		case "otel-export-paths":
			cfg.OtelExportPaths = *otelExportPaths
		case "trace-flight":
			cfg.TraceFlight = *traceFlight
		case "trace-flight-file":
			cfg.TraceFlightFile = *traceFlightFile
		case "trace-flight-max-bytes":
			cfg.TraceFlightMaxBytes = *traceFlightMaxBytes
		case "trace-flight-min-age":
			cfg.TraceFlightMinAge = *traceFlightMinAge
		}
	})

	if err := cfg.overlaySettings(context.Background()); err != nil {
		return nil, err
	}
	cfg.normalize()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func displayHelp() {
	fmt.Println("pdfsift - digitally signed and permission-restricted PDF finder")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  pdfsift [options]")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  pdfsift --path /mnt/evidence --case-name \"Case 42\" --verifier /opt/verifier/verifier")
	fmt.Println("  pdfsift --path /mnt/evidence --exiftool /usr/bin/exiftool --save-settings")
	fmt.Println("  pdfsift --config pdfsift.yaml --hashes sha256,blake3 --doc-info")
}

func (cfg *Config) pin(key string) {
	if cfg.pinned == nil {
		cfg.pinned = map[string]bool{}
	}
	cfg.pinned[key] = true
}

func (cfg *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("could not read config file: %v", err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		return cfg.loadYAML(data)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid config file format: %v", err)
	}
	cfg.markFileKeys(func(key string) bool {
		_, ok := raw[key]
		return ok
	})
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("invalid config file format: %v", err)
	}
	return nil
}

func (cfg *Config) loadYAML(data []byte) error {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid config file format: %v", err)
	}
	cfg.markFileKeys(func(key string) bool {
		_, ok := raw[key]
		return ok
	})
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("invalid config file format: %v", err)
	}
	return nil
}

func (cfg *Config) markFileKeys(has func(string) bool) {
	if has("concurrency_level") {
		cfg.ConcurrencySet = true
	}
	if has("max_dispatch_per_second") {
		cfg.MaxDispatchSet = true
	}
	for _, key := range []string{keyVerifier, keyExiftool, keySuppress, keyCreateCSV} {
		if has(key) {
			cfg.pin(key)
		}
	}
}

// overlaySettings fills the tool paths and switches from an existing
// settings database unless a config file or a flag already set them.
func (cfg *Config) overlaySettings(ctx context.Context) error {
	if cfg.SettingsDB == "" {
		return nil
	}
	if _, err := os.Stat(cfg.SettingsDB); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	store, err := settings.OpenSQLite(ctx, cfg.SettingsDB)
	if err != nil {
		return fmt.Errorf("could not open settings database: %v", err)
	}
	defer store.Close()
	values, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("could not read settings database: %v", err)
	}
	cfg.ApplySettings(values)
	return nil
}

// ApplySettings copies every stored value whose field is not pinned.
func (cfg *Config) ApplySettings(v settings.Values) {
	if v.Has(settings.KeySignerExec) && v.SignerPath != "" && !cfg.pinned[keyVerifier] {
		cfg.VerifierPath = v.SignerPath
	}
	if v.Has(settings.KeyExiftoolExec) && v.ExiftoolPath != "" && !cfg.pinned[keyExiftool] {
		cfg.ExiftoolPath = v.ExiftoolPath
	}
	if v.Has(settings.KeyDontInsertDuplicates) && !cfg.pinned[keySuppress] {
		cfg.SuppressDuplicates = v.SuppressDuplicates
	}
	if v.Has(settings.KeyCreateCSV) && !cfg.pinned[keyCreateCSV] {
		cfg.CreateCSV = v.CreateCSV
	}
}

// SettingsValues is the subset of the configuration kept in the settings
// database.
func (cfg *Config) SettingsValues() settings.Values {
	return settings.Values{
		SignerPath:         cfg.VerifierPath,
		ExiftoolPath:       cfg.ExiftoolPath,
		SuppressDuplicates: cfg.SuppressDuplicates,
		CreateCSV:          cfg.CreateCSV,
	}
}

func (cfg *Config) normalize() {
	cfg.NiceLevel = strings.ToLower(strings.TrimSpace(cfg.NiceLevel))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.FuzzyHash = strings.ToLower(strings.TrimSpace(cfg.FuzzyHash))
	cfg.HashAlgorithms = normalizeAlgorithms(cfg.HashAlgorithms)
	if strings.TrimSpace(cfg.CaseName) == "" {
		cfg.CaseName = defaultCase
	}
	if strings.TrimSpace(cfg.CaseDir) == "" {
		cfg.CaseDir = "."
	}
	if cfg.TempDir == "" {
		cfg.TempDir = filepath.Join(cfg.CaseDir, "Temp")
	}
	if cfg.ArtifactDB == "" {
		cfg.ArtifactDB = filepath.Join(cfg.CaseDir, "SignedPDFs", "artifacts.db3")
	}
	cfg.VerifierPath = resolveExecutable(cfg.VerifierPath)
	cfg.ExiftoolPath = resolveExecutable(cfg.ExiftoolPath)
	if strings.TrimSpace(cfg.DiagDir) == "" {
		cfg.DiagDir = "."
	}
	if cfg.TraceFlight && cfg.TraceFlightFile == "" {
		cfg.TraceFlightFile = defaultFlight
	}
	if len(cfg.StartPaths) == 0 {
		cfg.StartPaths = []string{"."}
	}
}

// resolveExecutable looks bare command names up in PATH. Anything else, or
// a name that cannot be found, is returned unchanged so startup can report
// it.
func resolveExecutable(name string) string {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsRune(name, os.PathSeparator) || strings.ContainsRune(name, '/') {
		return name
	}
	if p, err := exec.LookPath(name); err == nil {
		return p
	}
	return name
}

func (cfg *Config) validate() error {
	if strings.TrimSpace(cfg.DiagDir) == "" {
		cfg.DiagDir = "."
	}
	if len(cfg.StartPaths) == 0 {
		return fmt.Errorf("at least one start path must be specified")
	}
	if strings.TrimSpace(cfg.CaseName) == "" {
		return fmt.Errorf("case name must not be empty")
	}
	for _, algo := range cfg.HashAlgorithms {
		if !hasher.IsSupported(algo) {
			return fmt.Errorf("unsupported hash algorithm: %s", algo)
		}
	}
	if cfg.FuzzyHash != "" {
		if _, ok := fuzzy.Lookup(cfg.FuzzyHash); !ok {
			return fmt.Errorf("unsupported fuzzy hash: %s (available: %s)", cfg.FuzzyHash, strings.Join(fuzzy.Available(), ", "))
		}
	}
	if cfg.AutoTune {
		if cfg.AutoTuneInterval <= 0 {
			return fmt.Errorf("auto-tune-interval must be positive")
		}
		if cfg.AutoTuneTargetCPU <= 0 || cfg.AutoTuneTargetCPU > 100 {
			return fmt.Errorf("auto-tune-target-cpu must be between 1 and 100")
		}
	}
	if cfg.DiagSlowThreshold < 0 {
		return fmt.Errorf("diag-slow-threshold must be zero or positive")
	}
	if cfg.TraceFlightMinAge < 0 {
		return fmt.Errorf("trace-flight-min-age must be zero or positive")
	}
	if cfg.OtelTimeout < 0 {
		return fmt.Errorf("otel-timeout must be zero or positive")
	}
	if cfg.OtelEndpoint != "" {
		if !strings.HasPrefix(cfg.OtelEndpoint, "http://") && !strings.HasPrefix(cfg.OtelEndpoint, "https://") {
			return fmt.Errorf("otel-endpoint must include scheme (http or https)")
		}
	}
	if cfg.MaxDispatchPerSecond < 0 {
		return fmt.Errorf("max-dispatch-per-second must be zero or positive")
	}
	if cfg.MetadataMaxBytes < 0 {
		return fmt.Errorf("metadata-max-bytes must be zero or positive")
	}
	if cfg.ConcurrencyLevel <= 0 {
		return fmt.Errorf("concurrency level must be positive")
	}
	if cfg.NiceLevel != "high" && cfg.NiceLevel != "medium" && cfg.NiceLevel != "low" {
		return fmt.Errorf("invalid nice level: %s", cfg.NiceLevel)
	}
	if cfg.LogLevel != "debug" && cfg.LogLevel != "info" && cfg.LogLevel != "warn" &&
		cfg.LogLevel != "error" && cfg.LogLevel != "fatal" && cfg.LogLevel != "panic" {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	if cfg.SaveSettings && cfg.SettingsDB == "" {
		return fmt.Errorf("--save-settings needs a settings database")
	}
	return nil
}

func parseCommaSeparated(input string) []string {
	if input == "" {
		return []string{}
	}
	items := strings.Split(input, ",")
	for i, item := range items {
		items[i] = strings.TrimSpace(item)
	}
	return items
}

func parseHeaders(input string) map[string]string {
	headers := make(map[string]string)
	if input == "" {
		return headers
	}
	items := strings.Split(input, ",")
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		parts := strings.SplitN(item, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		headers[key] = value
	}
	return headers
}

func normalizeAlgorithms(items []string) []string {
	normalized := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.ToLower(strings.TrimSpace(item))
		if item == "" {
			continue
		}
		normalized = append(normalized, item)
	}
	return normalized
}
