// Package output forwards findings and run summaries to an OTLP/HTTP log
// endpoint.
package output

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	otelLog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"

	"pdfsift/logger"
)

// SchemaVersion is attached to every emitted record.
const SchemaVersion = "1"

// Record types.
const (
	TypeSignature  = "signature"
	TypePermission = "permission"
	TypeSummary    = "summary"
	TypeHost       = "host"
)

// Sink receives one record per published finding plus the run summary.
type Sink interface {
	Emit(recordType string, fields map[string]interface{})
	Shutdown()
}

// Nop discards everything.
type Nop struct{}

func (Nop) Emit(string, map[string]interface{}) {}
func (Nop) Shutdown()                           {}

// Recorder keeps emitted records in memory.
type Recorder struct {
	mu      sync.Mutex
	Records []Emitted
}

type Emitted struct {
	Type   string
	Fields map[string]interface{}
}

func (r *Recorder) Emit(recordType string, fields map[string]interface{}) {
	r.mu.Lock()
	r.Records = append(r.Records, Emitted{Type: recordType, Fields: cloneMap(fields)})
	r.mu.Unlock()
}

func (r *Recorder) Shutdown() {}

// OfType returns the recorded records of one type.
func (r *Recorder) OfType(recordType string) []Emitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Emitted
	for _, e := range r.Records {
		if e.Type == recordType {
			out = append(out, e)
		}
	}
	return out
}

// OTelOptions configures the OTLP exporter.
type OTelOptions struct {
	Endpoint    string
	FromEnv     bool
	Headers     map[string]string
	ServiceName string
	Timeout     time.Duration
	ExportPaths bool
}

// OTelSink emits records through an OTLP log exporter.
type OTelSink struct {
	provider    *sdklog.LoggerProvider
	logger      otelLog.Logger
	timeout     time.Duration
	endpoint    string
	exportPaths bool
}

// NewOTel returns nil and no error when no endpoint is configured.
func NewOTel(opts OTelOptions) (*OTelSink, error) {
	endpoint := resolveEndpoint(opts)
	if endpoint == "" {
		return nil, nil
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		return nil, fmt.Errorf("otel endpoint must include scheme (http or https)")
	}

	expOpts := []otlploghttp.Option{otlploghttp.WithEndpointURL(endpoint)}
	if len(opts.Headers) > 0 {
		expOpts = append(expOpts, otlploghttp.WithHeaders(opts.Headers))
	}
	if opts.Timeout > 0 {
		expOpts = append(expOpts, otlploghttp.WithTimeout(opts.Timeout))
	}
	exp, err := otlploghttp.New(context.Background(), expOpts...)
	if err != nil {
		return nil, err
	}

	service := opts.ServiceName
	if service == "" {
		service = "pdfsift"
	}
	res := resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceNameKey.String(service))
	provider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exp)),
		sdklog.WithResource(res),
	)
	return &OTelSink{
		provider:    provider,
		logger:      provider.Logger("pdfsift"),
		timeout:     opts.Timeout,
		endpoint:    endpoint,
		exportPaths: opts.ExportPaths,
	}, nil
}

func resolveEndpoint(opts OTelOptions) string {
	if endpoint := strings.TrimSpace(opts.Endpoint); endpoint != "" {
		return endpoint
	}
	if !opts.FromEnv {
		return ""
	}
	if endpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_LOGS_ENDPOINT")); endpoint != "" {
		return endpoint
	}
	return strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
}

func (o *OTelSink) Endpoint() string {
	if o == nil {
		return ""
	}
	return o.endpoint
}

func (o *OTelSink) Emit(recordType string, fields map[string]interface{}) {
	if o == nil || o.logger == nil {
		return
	}
	safe := sanitize(fields, o.exportPaths)
	now := time.Now()

	var record otelLog.Record
	record.SetTimestamp(now)
	record.SetObservedTimestamp(now)
	record.SetEventName("pdfsift." + recordType)
	record.AddAttributes(
		otelLog.String("record_type", recordType),
		otelLog.String("schema_version", SchemaVersion),
	)
	if attrs := semanticAttributes(recordType, safe, o.exportPaths); len(attrs) > 0 {
		record.AddAttributes(attrs...)
	}
	record.SetBody(toLogValue(safe))
	o.logger.Emit(context.Background(), record)
}

func (o *OTelSink) Shutdown() {
	if o == nil || o.provider == nil {
		return
	}
	timeout := o.timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := o.provider.Shutdown(ctx); err != nil {
		logger.Debugf("OTEL shutdown failed: %v", err)
	}
}

var pathFields = []string{"path", "working_path", "parent_path", "work_dir", "exports"}

// sanitize drops path-bearing fields unless paths are exported.
func sanitize(fields map[string]interface{}, exportPaths bool) map[string]interface{} {
	out := cloneMap(fields)
	if exportPaths {
		return out
	}
	for _, k := range pathFields {
		delete(out, k)
	}
	return out
}

func semanticAttributes(recordType string, data map[string]interface{}, exportPaths bool) []otelLog.KeyValue {
	var kvs []otelLog.KeyValue
	switch recordType {
	case TypeSignature, TypePermission:
		path, _ := data["path"].(string)
		name, _ := data["name"].(string)
		if name == "" && path != "" {
			name = filepath.Base(path)
		}
		if exportPaths && path != "" {
			kvs = append(kvs,
				otelLog.String(string(semconv.FilePathKey), path),
				otelLog.String(string(semconv.FileDirectoryKey), filepath.Dir(path)),
			)
		}
		kvs = appendString(kvs, string(semconv.FileNameKey), name)
		if size, ok := data["size"].(int64); ok {
			kvs = append(kvs, otelLog.Int64(string(semconv.FileSizeKey), size))
		}
		kvs = appendString(kvs, "pdfsift.label", stringField(data, "label"))
		if code, ok := data["code"].(int); ok {
			kvs = append(kvs, otelLog.Int("pdfsift.verdict.code", code))
		}
		kvs = appendString(kvs, "pdfsift.permission.access", stringField(data, "access"))
	case TypeSummary:
		for _, k := range sortedKeys(data) {
			switch v := data[k].(type) {
			case int64:
				kvs = append(kvs, otelLog.Int64("pdfsift.summary."+k, v))
			case float64:
				kvs = append(kvs, otelLog.Float64("pdfsift.summary."+k, v))
			}
		}
	}
	return kvs
}

func stringField(data map[string]interface{}, key string) string {
	if s, ok := data[key].(string); ok {
		return s
	}
	return ""
}

func appendString(kvs []otelLog.KeyValue, key, value string) []otelLog.KeyValue {
	if value == "" {
		return kvs
	}
	return append(kvs, otelLog.String(key, value))
}

func toLogValue(value interface{}) otelLog.Value {
	switch v := value.(type) {
	case nil:
		return otelLog.Value{}
	case string:
		return otelLog.StringValue(v)
	case bool:
		return otelLog.BoolValue(v)
	case int:
		return otelLog.IntValue(v)
	case int64:
		return otelLog.Int64Value(v)
	case float64:
		return otelLog.Float64Value(v)
	case []string:
		values := make([]otelLog.Value, 0, len(v))
		for _, item := range v {
			values = append(values, otelLog.StringValue(item))
		}
		return otelLog.SliceValue(values...)
	case map[string]string:
		kvs := make([]otelLog.KeyValue, 0, len(v))
		for _, k := range sortedStringKeys(v) {
			kvs = append(kvs, otelLog.String(k, v[k]))
		}
		return otelLog.MapValue(kvs...)
	case map[string]int64:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		kvs := make([]otelLog.KeyValue, 0, len(v))
		for _, k := range keys {
			kvs = append(kvs, otelLog.Int64(k, v[k]))
		}
		return otelLog.MapValue(kvs...)
	case map[string]interface{}:
		kvs := make([]otelLog.KeyValue, 0, len(v))
		for _, k := range sortedKeys(v) {
			kvs = append(kvs, otelLog.KeyValue{Key: k, Value: toLogValue(v[k])})
		}
		return otelLog.MapValue(kvs...)
	default:
		return otelLog.StringValue(fmt.Sprint(v))
	}
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedStringKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func cloneMap(src map[string]interface{}) map[string]interface{} {
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
