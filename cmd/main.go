package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"pdfsift/artifact"
	"pdfsift/config"
	"pdfsift/diag"
	"pdfsift/engine"
	"pdfsift/logger"
	"pdfsift/output"
	"pdfsift/scanner"
	"pdfsift/settings"
	"pdfsift/systeminfo"
	"pdfsift/toolrun"
	"pdfsift/tracing"
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	if err := tracing.Start(""); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start trace: %v\n", err)
	} else {
		defer tracing.Stop()
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		return 1
	}
	logger.Init(cfg.LogLevel)

	if cfg.TraceFlight {
		if err := tracing.StartFlightRecorder(cfg.TraceFlightMaxBytes, cfg.TraceFlightMinAge); err != nil {
			logger.Warnf("Failed to start flight recorder: %v", err)
		} else {
			defer func() {
				if err := tracing.WriteFlightRecorder(cfg.TraceFlightFile); err != nil {
					logger.Warnf("Failed to write flight recorder: %v", err)
				}
				tracing.StopFlightRecorder()
			}()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel, cfg.TraceFlight, cfg.TraceFlightFile)

	return run(ctx, cfg, toolrun.ExecRunner{})
}

// run processes every start path and prints the end-of-run summary. It
// returns the process exit code.
func run(ctx context.Context, cfg *config.Config, runner toolrun.Runner) int {
	host := systeminfo.Collect(ctx)
	logger.WithFields(host.Fields()).Info("Examiner host")

	if cfg.SaveSettings {
		if err := saveSettings(ctx, cfg); err != nil {
			logger.Errorf("Failed to save settings: %v", err)
		}
	}

	// Setup finishes even when an interrupt is already pending, so the
	// summary and exports still happen.
	store, err := artifact.OpenSQLite(context.WithoutCancel(ctx), cfg.ArtifactDB)
	if err != nil {
		logger.Errorf("Failed to open artifact database: %v", err)
		return 1
	}
	defer store.Close()
	store.Listen(func(category string) {
		logger.Debugf("Published %s artifact", category)
	})

	var sink output.Sink = output.Nop{}
	otel, err := output.NewOTel(output.OTelOptions{
		Endpoint:    cfg.OtelEndpoint,
		FromEnv:     cfg.OtelFromEnv,
		Headers:     cfg.OtelHeaders,
		ServiceName: cfg.OtelServiceName,
		Timeout:     cfg.OtelTimeout,
		ExportPaths: cfg.OtelExportPaths,
	})
	switch {
	case err != nil:
		logger.Warnf("OpenTelemetry export disabled: %v", err)
	case otel != nil:
		logger.Infof("Exporting findings to %s", otel.Endpoint())
		sink = otel
	}
	sink.Emit(output.TypeHost, host.Fields())

	eng := engine.New(engineOptions(cfg, store, sink, runner))
	if err := eng.Startup(ctx); err != nil {
		printLines(eng.Shutdown(ctx).Lines)
		return 1
	}

	if cfg.DiagSlowThreshold > 0 {
		dog := diag.New(diag.Options{
			StallThreshold:     cfg.DiagSlowThreshold,
			Dir:                cfg.DiagDir,
			GoroutineLeak:      cfg.DiagGoroutineLeak,
			CompletedFn:        eng.Completed,
			InFlightFn:         eng.InFlight,
			DumpFlightRecorder: dumpFlightRecorder(cfg),
		})
		dog.Start(ctx)
		defer dog.Close()
	}

	scan, scanErr := scanner.Scan(ctx, cfg, eng)
	fields := map[string]interface{}{
		"dispatched": scan.Dispatched,
		"ok":         scan.OK,
		"skipped":    scan.Skipped,
		"errors":     scan.Errors,
		"cancelled":  scan.Cancelled,
	}
	addPublication(context.WithoutCancel(ctx), store, fields)
	logger.WithFields(fields).Info("Scan finished")

	// Shutdown still runs after an interrupt so partial results are exported.
	sum := eng.Shutdown(context.Background())
	printLines(sum.Lines)

	switch {
	case errors.Is(scanErr, context.Canceled):
		logger.Warn("Scan interrupted; summary covers the files analyzed so far.")
		return 130
	case scanErr != nil:
		logger.Errorf("Scanning failed: %v", scanErr)
		return 1
	case len(sum.Failed()) > 0:
		return 1
	}
	return 0
}

// addPublication adds the artifacts announced during this run and the
// module's indexed artifacts across all runs.
func addPublication(ctx context.Context, store *artifact.SQLiteStore, fields map[string]interface{}) {
	fields["published"] = store.Notifications(artifact.CategoryInterestingFile)
	ids, err := store.Search(ctx, "module="+engine.ModuleName)
	if err != nil {
		logger.Warnf("Can't search indexed artifacts: %v", err)
		return
	}
	fields["indexed"] = len(ids)
}

func engineOptions(cfg *config.Config, store artifact.Store, sink output.Sink, runner toolrun.Runner) engine.Options {
	return engine.Options{
		CaseName:           cfg.CaseName,
		CaseDir:            cfg.CaseDir,
		TempDir:            cfg.TempDir,
		VerifierPath:       cfg.VerifierPath,
		ExiftoolPath:       cfg.ExiftoolPath,
		Runner:             runner,
		Artifacts:          store,
		SuppressDuplicates: cfg.SuppressDuplicates,
		CreateCSV:          cfg.CreateCSV,
		VerboseExec:        cfg.VerboseExec,
		LogFileNames:       cfg.LogFileNames,
		DedupContent:       cfg.DedupContent,
		HashAlgorithms:     cfg.HashAlgorithms,
		FuzzyHash:          cfg.FuzzyHash,
		DocInfo:            cfg.DocInfo,
		MetadataMaxBytes:   cfg.MetadataMaxBytes,
		Sink:               sink,
	}
}

func saveSettings(ctx context.Context, cfg *config.Config) error {
	store, err := settings.OpenSQLite(ctx, cfg.SettingsDB)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Save(ctx, cfg.SettingsValues()); err != nil {
		return err
	}
	logger.Infof("Settings saved to %s", cfg.SettingsDB)
	return nil
}

func dumpFlightRecorder(cfg *config.Config) func(string) error {
	if !cfg.TraceFlight {
		return nil
	}
	return tracing.WriteFlightRecorder
}

func printLines(lines []string) {
	for _, line := range lines {
		fmt.Println(line)
	}
}

func handleSignals(cancelFunc context.CancelFunc, traceFlight bool, traceFlightFile string) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	handleSignalEvent(cancelFunc, traceFlight, traceFlightFile, sigChan)
}

func handleSignalEvent(cancelFunc context.CancelFunc, traceFlight bool, traceFlightFile string, sigChan <-chan os.Signal) {
	<-sigChan
	logger.Info("Interrupt signal received. Finishing in-flight files...")

	if traceFlight {
		if err := tracing.WriteFlightRecorder(traceFlightFile); err != nil {
			logger.Warnf("Failed to write flight recorder: %v", err)
		}
	}

	cancelFunc()
}
