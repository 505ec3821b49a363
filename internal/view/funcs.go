package view

import (
	"bytes"
	"context"
	"fmt"
	"text/template"
	"time"

	"github.com/conneroisu/volt/internal/compiler"
	"github.com/conneroisu/volt/internal/errors"
	"github.com/conneroisu/volt/internal/filters"
)

// LoopItem is one iteration of a for loop.
type LoopItem struct {
	Key   any
	Value any
	// Loop is bound as the "loop" variable: index, index0, revindex,
	// revindex0, first, last and length.
	Loop map[string]any
}

// CacheHit wraps a cached fragment so an empty payload still counts as a hit.
type CacheHit struct {
	Payload string
}

// renderState carries what the generated helpers need during one render.
type renderState struct {
	ctx    context.Context
	engine *Engine
	tpl    *template.Template
}

func (rs *renderState) funcMap() template.FuncMap {
	return template.FuncMap{
		compiler.FuncEscape:   rs.escape,
		compiler.FuncEcho:     rs.echo,
		compiler.FuncEval:     rs.eval,
		compiler.FuncTest:     rs.test,
		compiler.FuncBind:     bind,
		compiler.FuncLookup:   lookup,
		compiler.FuncIter:     iter,
		compiler.FuncLoop:     loop,
		compiler.FuncArgs:     args,
		compiler.FuncRender:   rs.renderNamed,
		compiler.FuncCacheGet: rs.cacheGet,
		compiler.FuncCacheSet: rs.cacheSet,
	}
}

func (rs *renderState) eval(src string, scope map[string]any) (any, error) {
	return rs.engine.evaluate(src, scope)
}

func (rs *renderState) escape(src string, scope map[string]any) (string, error) {
	v, err := rs.engine.evaluate(src, scope)
	if err != nil {
		return "", err
	}
	return filters.Escape(v).(string), nil
}

func (rs *renderState) echo(src string, scope map[string]any) (string, error) {
	v, err := rs.engine.evaluate(src, scope)
	if err != nil {
		return "", err
	}
	return filters.ToString(v), nil
}

func (rs *renderState) test(src string, scope map[string]any) (bool, error) {
	v, err := rs.engine.evaluate(src, scope)
	if err != nil {
		return false, err
	}
	return filters.Truthy(v), nil
}

func bind(scope map[string]any, name string, value any) string {
	scope[name] = value
	return ""
}

func lookup(scope map[string]any, name string) any {
	return scope[name]
}

func iter(v any) ([]LoopItem, error) {
	pairs, err := filters.Iterate(v)
	if err != nil {
		return nil, errors.NewFilterError(errors.ErrCodeInvalidArgument, err.Error())
	}
	n := len(pairs)
	items := make([]LoopItem, n)
	for i, p := range pairs {
		items[i] = LoopItem{
			Key:   p.Key,
			Value: p.Value,
			Loop: map[string]any{
				"index":     i + 1,
				"index0":    i,
				"revindex":  n - i,
				"revindex0": n - i - 1,
				"first":     i == 0,
				"last":      i == n-1,
				"length":    n,
			},
		}
	}
	return items, nil
}

func loop(scope map[string]any, key, value string, item LoopItem) string {
	if key != "" {
		scope[key] = item.Key
	}
	scope[value] = item.Value
	scope[compiler.LoopVar] = item.Loop
	return ""
}

// args builds the scope of a macro call from name/value pairs.
func args(pairs ...any) (map[string]any, error) {
	if len(pairs)%2 != 0 {
		return nil, errors.NewInternalError(errors.ErrCodeInternalError, "macro arguments must be name/value pairs", nil)
	}
	scope := make(map[string]any, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		name, ok := pairs[i].(string)
		if !ok {
			return nil, errors.NewInternalError(errors.ErrCodeInternalError,
				fmt.Sprintf("macro parameter name must be a string, got %T", pairs[i]), nil)
		}
		scope[name] = pairs[i+1]
	}
	return scope, nil
}

func (rs *renderState) renderNamed(name string, scope map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := rs.tpl.ExecuteTemplate(&buf, name, scope); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (rs *renderState) cacheGet(key any) (*CacheHit, error) {
	k := filters.ToString(key)
	data, ok, err := rs.engine.backend.Get(rs.ctx, k)
	if err != nil {
		rs.engine.logger.Warn(rs.ctx, err, "cache lookup failed", "key", k)
		ok = false
	}
	rs.engine.metrics.ObserveCacheBlock(ok)
	if !ok {
		return nil, nil
	}
	return &CacheHit{Payload: string(data)}, nil
}

func (rs *renderState) cacheSet(key any, ttl int, payload string) string {
	k := filters.ToString(key)
	if err := rs.engine.backend.Set(rs.ctx, k, []byte(payload), time.Duration(ttl)*time.Second); err != nil {
		rs.engine.logger.Warn(rs.ctx, err, "cache store failed", "key", k)
	}
	return payload
}
