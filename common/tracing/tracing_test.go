package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitGlobalTracerRoundTripsSpanContext(t *testing.T) {
	closer, err := InitGlobalTracer("enclaved-compute-test", "127.0.0.1:0")
	require.NoError(t, err)
	defer closer.Close()

	span, ctx := StartSpanFromContext(context.Background(), "test-span")
	defer span.Finish()

	data, err := SpanContextToBinary(span.Context())
	require.NoError(t, err)
	require.NotEmpty(t, data)

	sc, err := SpanContextFromBinary(data)
	require.NoError(t, err)
	require.NotNil(t, sc)

	_ = ctx
}
