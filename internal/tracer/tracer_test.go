package tracer

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/srg/blemotor/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestSetupDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.Tracing{Enabled: false}, nil)
	require.NoError(t, err)
	defer shutdown(context.Background())

	_, ok := otel.GetTracerProvider().(noop.TracerProvider)
	assert.True(t, ok, "expected noop provider, got %T", otel.GetTracerProvider())
}

func TestSetupEmptyExporter(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.Tracing{Enabled: true}, nil)
	require.NoError(t, err)
	defer shutdown(context.Background())

	_, ok := otel.GetTracerProvider().(noop.TracerProvider)
	assert.True(t, ok, "expected noop provider for empty exporter")
}

func TestSetupStdout(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := Setup(context.Background(), config.Tracing{Enabled: true, Exporter: "stdout"}, &buf)
	require.NoError(t, err)

	_, span := StartSpan(context.Background(), "controller.send_pulse")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "controller.send_pulse")
}

func TestSetupFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traces.jsonl")
	shutdown, err := Setup(context.Background(), config.Tracing{Enabled: true, Exporter: "file", Path: path}, nil)
	require.NoError(t, err)

	_, span := StartSpan(context.Background(), "controller.connect")
	span.End()
	require.NoError(t, shutdown(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "controller.connect")
}

func TestSetupUnsupportedExporter(t *testing.T) {
	_, err := Setup(context.Background(), config.Tracing{Enabled: true, Exporter: "jaeger"}, nil)
	require.ErrorContains(t, err, "unsupported exporter")
}

func TestEnd(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tr := tp.Tracer("test")

	_, failed := tr.Start(context.Background(), "failed")
	End(failed, errors.New("write rejected"))
	_, ok := tr.Start(context.Background(), "ok")
	ok.SetAttributes(StringAttr("k", "v"), IntAttr("n", 1))
	End(ok, nil)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "write rejected", spans[0].Status().Description)
	assert.Equal(t, codes.Ok, spans[1].Status().Code)
	assert.Len(t, spans[1].Attributes(), 2)
}
