// Package tracing provides the thin opentracing-go span helper that
// storage/netstore.go calls "spancontext" (spancontext.StartSpan,
// imported from "github.com/holisticode/swarm/spancontext") - referenced
// throughout the teacher's remote-fetch path but not itself present in
// this retrieval pack. Its shape is reconstructed here directly against
// opentracing-go, with github.com/uber/jaeger-client-go wired in as the
// concrete tracer an operator can enable.
package tracing

import (
	"context"
	"io"

	"github.com/opentracing/opentracing-go"
	jaeger "github.com/uber/jaeger-client-go"
	jaegercfg "github.com/uber/jaeger-client-go/config"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Setup installs a Jaeger-backed global tracer for the given service name
// (e.g. "chunkfabric-rank-0", "chunkfabric-rank-3") and returns a
// closer to flush spans on shutdown. If sampling is disabled the returned
// tracer is a no-op, so StartSpan stays cheap to call unconditionally on
// every hot path.
func Setup(serviceName string, enabled bool) (io.Closer, error) {
	if !enabled {
		opentracing.SetGlobalTracer(opentracing.NoopTracer{})
		return nopCloser{}, nil
	}
	cfg := jaegercfg.Configuration{
		ServiceName: serviceName,
		Sampler: &jaegercfg.SamplerConfig{
			Type:  jaeger.SamplerTypeConst,
			Param: 1,
		},
		Reporter: &jaegercfg.ReporterConfig{
			LogSpans: false,
		},
	}
	tracer, closer, err := cfg.NewTracer()
	if err != nil {
		return nil, err
	}
	opentracing.SetGlobalTracer(tracer)
	return closer, nil
}

// StartSpan starts a child span named `operation` from any parent span
// found on ctx, returning the new context and the span (the caller calls
// its Finish method). Modeled
// directly on storage/netstore.go's
// `ctx, osp := spancontext.StartSpan(ctx, "remote.fetch")` call sites.
func StartSpan(ctx context.Context, operation string) (context.Context, opentracing.Span) {
	span, ctx := opentracing.StartSpanFromContext(ctx, operation)
	return ctx, span
}
