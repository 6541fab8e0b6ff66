package optimizer

// OptimizationType tags which rewrite rule produced a combined expression.
// It is observability metadata only: correctness never branches on it.
type OptimizationType string

const (
	// OptNone means the naive conjunction was returned.
	OptNone OptimizationType = "none"

	// OptViewReuse means a spatial check was re-targeted at a prior
	// result-view (server backend).
	OptViewReuse OptimizationType = "view_reuse"

	// OptIDList means a literal identifier-list test was placed before a
	// costlier spatial clause.
	OptIDList OptimizationType = "id_list"

	// OptRange means a gap-free identifier list was converted to a range
	// comparison.
	OptRange OptimizationType = "range"

	// OptSubqueryMerge and OptExpressionSimplify are reserved for rules
	// the current rule set does not emit; they appear in persisted
	// histories written by older versions.
	OptSubqueryMerge      OptimizationType = "subquery_merge"
	OptExpressionSimplify OptimizationType = "expression_simplify"

	// OptCacheHit means the result was served from the rewrite cache.
	OptCacheHit OptimizationType = "cache_hit"
)

// Facts carries backend-specific details of a detected pattern, for
// diagnostics and tests.
type Facts interface {
	factsMarker()
}

// ViewFacts describes a detected server-side result-view reference.
type ViewFacts struct {
	// View is the detected result-view name.
	View string

	// BaseRows is the base table size estimate from collection metadata.
	// Zero means unknown.
	BaseRows int64

	// ViewRows is the row count of the prior filter step. Zero means
	// unknown.
	ViewRows uint64
}

// IDListFacts describes a detected literal identifier-list membership test.
type IDListFacts struct {
	Column     string
	Min        uint64
	Max        uint64
	Count      int
	Contiguous bool
}

func (*ViewFacts) factsMarker()   {}
func (*IDListFacts) factsMarker() {}

// Result is the outcome of combining two filter expressions.
type Result struct {
	// Success reports whether a rewritten expression was produced.
	// A failed combine returns an error instead, so Success is true on
	// every non-error path, including the naive fallback.
	Success bool

	// Rewritten is the combined backend-native text, logically equivalent
	// to (old) <op> (new).
	Rewritten string

	// Type tags the rule that produced the rewrite.
	Type OptimizationType

	// EstimatedSpeedup is a non-authoritative diagnostic factor (>= 1).
	EstimatedSpeedup float64

	// Facts carries backend-specific detection details, nil when no
	// pattern was detected.
	Facts Facts
}
