package tracing_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/slok/autotask/internal/tracing"
)

func TestSetup(t *testing.T) {
	tests := map[string]struct {
		cfg    tracing.Config
		expErr bool
	}{
		"Without endpoint tracing should be disabled.": {
			cfg: tracing.Config{},
		},

		"An endpoint should create the exporter lazily.": {
			cfg: tracing.Config{Endpoint: "127.0.0.1:4318", Insecure: true, ServiceVersion: "test"},
		},

		"A wrong sample ratio should fail.": {
			cfg:    tracing.Config{SampleRatio: 2},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			prev := otel.GetTracerProvider()
			t.Cleanup(func() { otel.SetTracerProvider(prev) })

			shutdown, err := tracing.Setup(context.TODO(), test.cfg)
			if test.expErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			_, span := otel.Tracer("test").Start(context.TODO(), "op")
			span.End()

			ctx, cancel := context.WithCancel(context.TODO())
			cancel()
			_ = shutdown(ctx)
		})
	}
}
