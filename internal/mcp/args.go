package mcp

import (
	"strings"

	"taskqueue/internal/apperr"
	"taskqueue/internal/engine"
)

// args is the flat argument object of a tool call.
type args map[string]any

func (a args) str(key string) (string, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return "", apperr.New(apperr.MissingParameter, "%s is required", key).With("field", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", apperr.New(apperr.InvalidArgument, "%s must be a string", key).With("field", key)
	}
	if strings.TrimSpace(s) == "" {
		return "", apperr.New(apperr.MissingParameter, "%s is required", key).With("field", key)
	}
	return s, nil
}

// optStr returns nil when key is absent.
func (a args) optStr(key string) (*string, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, apperr.New(apperr.InvalidArgument, "%s must be a string", key).With("field", key)
	}
	return &s, nil
}

func (a args) strOr(key, def string) (string, error) {
	s, err := a.optStr(key)
	if err != nil || s == nil {
		return def, err
	}
	return *s, nil
}

func (a args) boolean(key string) (bool, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, apperr.New(apperr.InvalidArgument, "%s must be a boolean", key).With("field", key)
	}
	return b, nil
}

func (a args) list(key string) ([]string, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, apperr.New(apperr.InvalidArgument, "%s must be an array of strings", key).With("field", key)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, apperr.New(apperr.InvalidArgument, "%s must be an array of strings", key).With("field", key)
		}
		out = append(out, s)
	}
	return out, nil
}

// tasks reads an array of task objects; at least one is required.
func (a args) tasks(key string) ([]engine.TaskSpec, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return nil, apperr.New(apperr.MissingParameter, "%s is required", key).With("field", key)
	}
	items, ok := v.([]any)
	if !ok {
		return nil, apperr.New(apperr.InvalidArgument, "%s must be an array of tasks", key).With("field", key)
	}
	if len(items) == 0 {
		return nil, apperr.New(apperr.MissingParameter, "%s must contain at least one task", key).With("field", key)
	}
	specs := make([]engine.TaskSpec, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, apperr.New(apperr.InvalidArgument, "%s[%d] must be an object", key, i).With("index", i)
		}
		spec, err := taskSpec(args(m))
		if err != nil {
			return nil, apperr.As(err).With("index", i)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func taskSpec(a args) (engine.TaskSpec, error) {
	title, err := a.str("title")
	if err != nil {
		return engine.TaskSpec{}, err
	}
	desc, err := a.str("description")
	if err != nil {
		return engine.TaskSpec{}, err
	}
	tools, err := a.strOr("toolRecommendations", "")
	if err != nil {
		return engine.TaskSpec{}, err
	}
	rules, err := a.strOr("ruleRecommendations", "")
	if err != nil {
		return engine.TaskSpec{}, err
	}
	return engine.TaskSpec{Title: title, Description: desc, ToolRecommendations: tools, RuleRecommendations: rules}, nil
}
