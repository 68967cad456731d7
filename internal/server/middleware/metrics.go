// Package middleware holds huma middleware shared by every operation.
package middleware

import (
	"net/http"
	"regexp"
	"strconv"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/felixge/httpsnoop"

	"github.com/faciam-dev/gpdb/pkg/metrics"
)

// MetricsMW counts requests per operation route and caller kind and
// observes their latency.
func MetricsMW(ctx huma.Context, next func(huma.Context)) {
	metrics.APIInFlight.Inc()
	defer metrics.APIInFlight.Dec()

	r, w := humachi.Unwrap(ctx)
	m := httpsnoop.CaptureMetricsFn(w, func(w http.ResponseWriter) {
		next(humachi.NewContext(ctx.Operation(), r, w))
	})
	path := Route(ctx.Operation(), r.URL.Path)
	metrics.APIRequests.WithLabelValues(r.Method, path, strconv.Itoa(m.Code), Caller(r)).Inc()
	metrics.APILatency.WithLabelValues(r.Method, path).Observe(m.Duration.Seconds())
}

// Caller labels a request "bearer" when it carries an Authorization header
// and "anonymous" otherwise.
func Caller(r *http.Request) string {
	if r.Header.Get("Authorization") != "" {
		return "bearer"
	}
	return "anonymous"
}

var (
	numericSeg = regexp.MustCompile(`/\d+(/|$)`)
	privateSeg = regexp.MustCompile(`/private/[^/]+`)
)

// Route returns the templated operation path, or a normalized raw path when
// the operation has none, keeping label cardinality bounded.
func Route(op *huma.Operation, raw string) string {
	if op != nil && op.Path != "" {
		return op.Path
	}
	p := privateSeg.ReplaceAllString(raw, "/private/{private_id}")
	return numericSeg.ReplaceAllString(p, "/{id}$1")
}
