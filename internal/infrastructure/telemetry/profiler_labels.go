package telemetry

import (
	"context"
	"maps"
	"runtime/pprof"
	"sort"
	"strings"

	"github.com/grafana/pyroscope-go"
)

// Profiling label keys. Values under these keys slice flame graphs in the
// Pyroscope UI.
const (
	ProfilingLabelController = "controller"
	ProfilingLabelRoute      = "route"
	ProfilingLabelMethod     = "method"
	// ProfilingLabelOwnerKind carries the cart owner kind (user, session,
	// anonymous).
	ProfilingLabelOwnerKind = "owner_kind"
	ProfilingLabelOperation = "operation"
	// ProfilingLabelRegion marks code regions such as "db_query".
	ProfilingLabelRegion = "region"
)

// MaxLabelValueLength bounds label values; longer values are truncated.
const MaxLabelValueLength = 128

// HighCardinalityLabels lists label keys sanitizeLabels drops outright.
// Per-cart and per-request identifiers would blow up Pyroscope's series
// count; owner_kind stays allowed because it takes only a handful of
// values. Do not modify this map at runtime.
var HighCardinalityLabels = map[string]bool{
	"user_id":    true,
	"request_id": true,
	"cart_id":    true,
	"trace_id":   true,
	"span_id":    true,
	"session_id": true,
}

// labelPairs copies, sanitizes and flattens a label map into the
// alternating key/value slice both profiling APIs take. Returns nil when
// nothing survives sanitization.
func labelPairs(labels map[string]string) []string {
	if len(labels) == 0 {
		return nil
	}
	copied := make(map[string]string, len(labels))
	maps.Copy(copied, labels)
	return sanitizeLabels(copied)
}

// WithProfilingLabels runs fn with the given labels attached to its CPU
// samples, via pyroscope.TagWrapper. The map is copied up front, so the
// caller may reuse it afterwards.
//
//	telemetry.WithProfilingLabels(ctx, map[string]string{
//	    "controller": "CartHandler",
//	    "operation":  "AddItem",
//	}, func(c context.Context) {
//	    addCartItem(c)
//	})
func WithProfilingLabels(ctx context.Context, labels map[string]string, fn func(context.Context)) {
	pairs := labelPairs(labels)
	if len(pairs) == 0 {
		fn(ctx)
		return
	}
	pyroscope.TagWrapper(ctx, pyroscope.Labels(pairs...), fn)
}

// WithPprofLabels is the same as WithProfilingLabels but goes through Go's
// native pprof label API, for code paths that must stay compatible with
// standard profiling tools when the Pyroscope agent is not running.
func WithPprofLabels(ctx context.Context, labels map[string]string, fn func(context.Context)) {
	pairs := labelPairs(labels)
	if len(pairs) == 0 {
		fn(ctx)
		return
	}
	pprof.Do(ctx, pprof.Labels(pairs...), fn)
}

// ProfilingScope accumulates labels fluently before running a function
// under them.
type ProfilingScope struct {
	labels map[string]string
}

// NewProfilingScope creates a scope seeded with the given labels.
func NewProfilingScope(labels map[string]string) *ProfilingScope {
	scope := &ProfilingScope{
		labels: make(map[string]string),
	}
	maps.Copy(scope.labels, labels)
	return scope
}

// WithLabel adds a single label to the scope.
func (s *ProfilingScope) WithLabel(key, value string) *ProfilingScope {
	s.labels[key] = value
	return s
}

func (s *ProfilingScope) WithController(controller string) *ProfilingScope {
	return s.WithLabel(ProfilingLabelController, controller)
}

func (s *ProfilingScope) WithRoute(route string) *ProfilingScope {
	return s.WithLabel(ProfilingLabelRoute, route)
}

func (s *ProfilingScope) WithMethod(method string) *ProfilingScope {
	return s.WithLabel(ProfilingLabelMethod, method)
}

func (s *ProfilingScope) WithOwnerKind(ownerKind string) *ProfilingScope {
	return s.WithLabel(ProfilingLabelOwnerKind, ownerKind)
}

func (s *ProfilingScope) WithOperation(operation string) *ProfilingScope {
	return s.WithLabel(ProfilingLabelOperation, operation)
}

func (s *ProfilingScope) WithRegion(region string) *ProfilingScope {
	return s.WithLabel(ProfilingLabelRegion, region)
}

// Labels returns a copy of the accumulated labels.
func (s *ProfilingScope) Labels() map[string]string {
	result := make(map[string]string, len(s.labels))
	maps.Copy(result, s.labels)
	return result
}

// Run executes fn under the accumulated labels.
func (s *ProfilingScope) Run(ctx context.Context, fn func(context.Context)) {
	WithProfilingLabels(ctx, s.labels, fn)
}

// sanitizeLabels turns a label map into a deterministic key/value slice:
// keys are sorted and normalized to snake_case, high-cardinality and empty
// entries are dropped, and overlong values are truncated. Dropped labels
// are not logged; this runs on hot paths.
func sanitizeLabels(labels map[string]string) []string {
	if len(labels) == 0 {
		return nil
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(labels)*2)
	for _, key := range keys {
		value := labels[key]
		if key == "" || value == "" || HighCardinalityLabels[key] {
			continue
		}
		if len(value) > MaxLabelValueLength {
			value = value[:MaxLabelValueLength]
		}
		if cleanKey := sanitizeLabelKey(key); cleanKey != "" {
			pairs = append(pairs, cleanKey, value)
		}
	}
	return pairs
}

// sanitizeLabelKey lowercases the key, maps separators to underscores and
// strips everything that is not [a-z0-9_].
func sanitizeLabelKey(key string) string {
	key = strings.ToLower(key)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			return r
		case r == ' ', r == '-':
			return '_'
		}
		return -1
	}, key)
}

// HTTPRequestLabels builds the standard label set for profiling an HTTP
// handler. Empty values are omitted.
func HTTPRequestLabels(controller, route, method, ownerKind string) map[string]string {
	labels := make(map[string]string, 4)
	for key, value := range map[string]string{
		ProfilingLabelController: controller,
		ProfilingLabelRoute:      route,
		ProfilingLabelMethod:     method,
		ProfilingLabelOwnerKind:  ownerKind,
	} {
		if value != "" {
			labels[key] = value
		}
	}
	return labels
}

// OperationLabels builds labels for a named operation.
func OperationLabels(operation string, extraLabels map[string]string) map[string]string {
	labels := make(map[string]string, len(extraLabels)+1)
	labels[ProfilingLabelOperation] = operation
	maps.Copy(labels, extraLabels)
	return labels
}

// RegionLabels builds labels for a code region such as a database call.
func RegionLabels(region string, extraLabels map[string]string) map[string]string {
	labels := make(map[string]string, len(extraLabels)+1)
	labels[ProfilingLabelRegion] = region
	maps.Copy(labels, extraLabels)
	return labels
}
