// Package search turns a user query plus filters into a ranked candidate
// list: classification, strategy selection, candidate-set BM25, and the
// per-strategy rerankers.
package search

import "strings"

// QueryClass is the pattern-derived intent of a query.
type QueryClass string

const (
	ClassLookup     QueryClass = "lookup"
	ClassCompare    QueryClass = "compare"
	ClassSynthesize QueryClass = "synthesize"
	ClassExplore    QueryClass = "explore"
	ClassTimeline   QueryClass = "timeline"
	ClassCausal     QueryClass = "causal"
	ClassDefinition QueryClass = "definition"
	ClassHowto      QueryClass = "howto"
)

// classPriority breaks score ties; earlier wins.
var classPriority = []QueryClass{
	ClassLookup, ClassCompare, ClassSynthesize, ClassExplore,
	ClassTimeline, ClassCausal, ClassDefinition, ClassHowto,
}

var classKeywords = map[QueryClass][]string{
	ClassLookup:     {"what is", "who is", "when did", "where is", "find", "search"},
	ClassCompare:    {"compare", "vs", "versus", "difference", "similar", "contrast"},
	ClassSynthesize: {"summarize", "synthesis", "overview", "analysis", "insights"},
	ClassExplore:    {"explore", "discover", "related", "connected", "associated"},
	ClassTimeline:   {"timeline", "chronology", "history", "evolution", "progression"},
	ClassCausal:     {"why", "cause", "effect", "because", "leads to", "results in"},
	ClassDefinition: {"define", "definition", "meaning", "explain"},
	ClassHowto:      {"how to", "steps", "process", "procedure", "guide"},
}

// Classify maps a query to its class by case-insensitive keyword presence.
// The class with the most keyword hits wins; ties fall to the earlier class
// in the fixed priority order. A query with no hits is a lookup.
func Classify(query string) QueryClass {
	lower := strings.ToLower(query)

	best := ClassLookup
	bestScore := 0
	for _, class := range classPriority {
		score := 0
		for _, kw := range classKeywords[class] {
			if strings.Contains(lower, kw) {
				score++
			}
		}
		if score > bestScore {
			best = class
			bestScore = score
		}
	}
	return best
}

// Strategy is the retrieval mode a query class maps to.
type Strategy string

const (
	StrategyVector       Strategy = "vector"
	StrategyGraph        Strategy = "graph"
	StrategyHybrid       Strategy = "hybrid"
	StrategyTemporal     Strategy = "temporal"
	StrategyHierarchical Strategy = "hierarchical"
)

var classStrategy = map[QueryClass]Strategy{
	ClassLookup:     StrategyHybrid,
	ClassCompare:    StrategyGraph,
	ClassSynthesize: StrategyHybrid,
	ClassExplore:    StrategyGraph,
	ClassTimeline:   StrategyTemporal,
	ClassCausal:     StrategyGraph,
	ClassDefinition: StrategyVector,
	ClassHowto:      StrategyHierarchical,
}

// StrategyFor selects the retrieval strategy for a class. Preference flags
// upgrade a single-mode strategy to hybrid; they never downgrade.
func StrategyFor(class QueryClass, preferSemantic, preferGraph bool) Strategy {
	s, ok := classStrategy[class]
	if !ok {
		s = StrategyHybrid
	}
	if preferSemantic && s == StrategyGraph {
		s = StrategyHybrid
	}
	if preferGraph && s == StrategyVector {
		s = StrategyHybrid
	}
	return s
}
