// Package framework contains the per-framework adapters. Each adapter turns
// a declarative agent configuration plus its framework sub-record into a live
// instance bound to an LLM handle, and answers single queries against it.
// Retry, timeout and pooling policy live in the lifecycle manager, not here.
package framework

import "agentdash.server/internal/core/domain"

func stringField(m map[string]any, key string) (string, bool) {
	if m == nil {
		return "", false
	}
	v, ok := m[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func boolField(m map[string]any, key string) (bool, bool) {
	if m == nil {
		return false, false
	}
	v, ok := m[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

func mapField(m map[string]any, key string) (domain.JSONMap, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m[key]
	if !ok {
		return nil, false
	}
	switch t := v.(type) {
	case domain.JSONMap:
		return t, true
	case map[string]any:
		return domain.JSONMap(t), true
	}
	return nil, false
}
