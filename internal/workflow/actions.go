package workflow

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/notegraph/notegraph/internal/bus"
	ngerrors "github.com/notegraph/notegraph/internal/errors"
	"github.com/notegraph/notegraph/internal/store"
)

// Bus topics the agent-backed built-in actions call.
const (
	TopicIngestDocument  = "ingestion.process_document"
	TopicExtractEntities = "entities.extract"
	TopicCreateLinks     = "linking.create_links"
	TopicGenerateSummary = "synthesis.generate_summary"
	TopicAnswerQuestion  = "synthesis.answer_question"
	TopicSearchKnowledge = "orchestrator.search"
)

func (e *Engine) registerBuiltins() {
	e.actions["ingest_document"] = e.agentAction(TopicIngestDocument, func(p map[string]any) map[string]any {
		return map[string]any{
			"document_path": paramString(p, "document_path"),
			"force_update":  paramBool(p, "force_update"),
		}
	})
	e.actions["extract_entities"] = e.agentAction(TopicExtractEntities, func(p map[string]any) map[string]any {
		return map[string]any{
			"document_path": paramString(p, "document_path"),
			"content":       paramString(p, "content"),
		}
	})
	e.actions["create_links"] = e.agentAction(TopicCreateLinks, func(p map[string]any) map[string]any {
		return map[string]any{"document_id": paramString(p, "document_id")}
	})
	e.actions["generate_summary"] = e.agentAction(TopicGenerateSummary, func(p map[string]any) map[string]any {
		return map[string]any{
			"document_id": paramString(p, "document_id"),
			"max_length":  paramFloat(p, "max_length", 200),
		}
	})
	e.actions["answer_question"] = e.agentAction(TopicAnswerQuestion, func(p map[string]any) map[string]any {
		return map[string]any{
			"question":      paramString(p, "question"),
			"context_limit": paramFloat(p, "context_limit", 5),
		}
	})
	e.actions["search_knowledge"] = e.agentAction(TopicSearchKnowledge, func(p map[string]any) map[string]any {
		return map[string]any{
			"query": paramString(p, "query"),
			"limit": paramFloat(p, "limit", 10),
		}
	})
	e.actions["wait"] = waitAction
	e.actions["condition"] = conditionAction
}

// agentAction builds an action that forwards its parameters as a bus request
// and relays the response payload.
func (e *Engine) agentAction(topic string, payload func(map[string]any) map[string]any) Action {
	return func(ctx context.Context, _ *store.WorkflowRecord, step *store.StepRecord) (map[string]any, error) {
		if e.bus == nil {
			return nil, ngerrors.Dependency("message bus not configured", nil)
		}

		timeout := time.Duration(step.TimeoutSecs * float64(time.Second))
		resp, err := e.bus.Request(ctx, topic, payload(step.Params), timeout,
			bus.WithSource("workflow_engine"))
		if err != nil {
			return nil, err
		}
		if resp == nil {
			return nil, ngerrors.Timeout("no response on topic " + topic)
		}

		success, _ := resp.Payload["success"].(bool)
		result := map[string]any{"success": success}
		if sub, ok := resp.Payload["context"].(map[string]any); ok {
			result["context"] = sub
		} else {
			result["context"] = resp.Payload
		}
		if !success {
			if msg, ok := resp.Payload["error"].(string); ok && msg != "" {
				return nil, ngerrors.Dependency(msg, nil)
			}
		}
		return result, nil
	}
}

// waitAction sleeps for the configured duration in seconds.
func waitAction(ctx context.Context, _ *store.WorkflowRecord, step *store.StepRecord) (map[string]any, error) {
	duration := paramFloat(step.Params, "duration", 1)
	select {
	case <-time.After(time.Duration(duration * float64(time.Second))):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return map[string]any{
		"success": true,
		"context": map[string]any{"waited_seconds": duration},
	}, nil
}

// conditionAction substitutes ${var} references from the workflow context,
// evaluates the expression, and records the outcome plus the selected branch
// action.
func conditionAction(_ context.Context, wf *store.WorkflowRecord, step *store.StepRecord) (map[string]any, error) {
	condition := paramString(step.Params, "condition")
	if condition == "" {
		return nil, ngerrors.InvalidInput("condition parameter is required")
	}

	result := evalCondition(substitute(condition, wf.Context))

	ctxOut := map[string]any{"condition_result": result}
	if result {
		if next := paramString(step.Params, "true_action"); next != "" {
			ctxOut["next_action"] = next
		}
	} else {
		if next := paramString(step.Params, "false_action"); next != "" {
			ctxOut["next_action"] = next
		}
	}
	return map[string]any{"success": true, "context": ctxOut}, nil
}

// substitute replaces ${key} references with stringified context values.
func substitute(expr string, context map[string]any) string {
	for key, value := range context {
		expr = strings.ReplaceAll(expr, "${"+key+"}", stringify(value))
	}
	return expr
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	default:
		return ""
	}
}

// comparison operators, longest first so ">=" wins over ">".
var comparators = []string{"==", "!=", ">=", "<=", ">", "<"}

// evalCondition evaluates a single comparison or a bare truthiness test.
// Operands compare numerically when both parse as numbers, lexically
// otherwise. Malformed expressions are false.
func evalCondition(expr string) bool {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return false
	}

	for _, op := range comparators {
		idx := strings.Index(expr, op)
		if idx < 0 {
			continue
		}
		left := strings.TrimSpace(expr[:idx])
		right := strings.TrimSpace(expr[idx+len(op):])

		lf, lerr := strconv.ParseFloat(left, 64)
		rf, rerr := strconv.ParseFloat(right, 64)
		if lerr == nil && rerr == nil {
			switch op {
			case "==":
				return lf == rf
			case "!=":
				return lf != rf
			case ">=":
				return lf >= rf
			case "<=":
				return lf <= rf
			case ">":
				return lf > rf
			case "<":
				return lf < rf
			}
		}
		switch op {
		case "==":
			return left == right
		case "!=":
			return left != right
		case ">=":
			return left >= right
		case "<=":
			return left <= right
		case ">":
			return left > right
		case "<":
			return left < right
		}
	}

	// Bare expression: boolean literal or non-empty truthiness.
	if b, err := strconv.ParseBool(expr); err == nil {
		return b
	}
	return expr != "" && expr != "0"
}

func paramString(p map[string]any, key string) string {
	if p == nil {
		return ""
	}
	s, _ := p[key].(string)
	return s
}

func paramBool(p map[string]any, key string) bool {
	if p == nil {
		return false
	}
	b, _ := p[key].(bool)
	return b
}

func paramFloat(p map[string]any, key string, fallback float64) float64 {
	if p == nil {
		return fallback
	}
	switch v := p[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return fallback
	}
}
