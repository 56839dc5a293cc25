// Package jsengine evaluates JavaScript predicates over element snapshots.
package jsengine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/dop251/goja"

	"github.com/devicelab-dev/bryndza/pkg/core"
	"github.com/devicelab-dev/bryndza/pkg/logger"
)

// Engine wraps a goja runtime with the globals scripts can see:
// element, platform, console, json() and any variables set by the caller.
type Engine struct {
	runtime   *goja.Runtime
	variables map[string]interface{}
	platform  string
	mu        sync.Mutex
}

// New creates a new JS engine instance
func New() *Engine {
	e := &Engine{
		runtime:   goja.New(),
		variables: make(map[string]interface{}),
	}
	e.runtime.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	e.setupBuiltins()
	return e
}

func (e *Engine) setupBuiltins() {
	e.setupConsole()
	e.runtime.Set("json", e.jsonFunc())
	e.runtime.Set("element", goja.Null())

	e.runtime.GlobalObject().DefineAccessorProperty("platform", e.runtime.ToValue(func() string {
		return e.platform
	}), nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
}

// setupConsole routes console.log and friends to the run log.
func (e *Engine) setupConsole() {
	makeConsoleFunc := func(log func(string, ...interface{})) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, arg := range call.Arguments {
				parts[i] = fmt.Sprint(arg.Export())
			}
			log("js: %s", strings.Join(parts, " "))
			return goja.Undefined()
		}
	}

	console := e.runtime.NewObject()
	console.Set("log", makeConsoleFunc(logger.Info))
	console.Set("error", makeConsoleFunc(logger.Error))
	console.Set("warn", makeConsoleFunc(logger.Warn))
	console.Set("debug", makeConsoleFunc(logger.Debug))
	e.runtime.Set("console", console)
}

// jsonFunc returns the json() helper that parses a JSON string.
func (e *Engine) jsonFunc() func(call goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			panic(e.runtime.NewTypeError("json requires 1 argument"))
		}
		result, err := e.runtime.RunString(fmt.Sprintf("JSON.parse(%q)", call.Arguments[0].String()))
		if err != nil {
			panic(e.runtime.NewTypeError(fmt.Sprintf("invalid JSON: %v", err)))
		}
		return result
	}
}

// elementView is the shape of the `element` global.
type elementView struct {
	ID         string            `json:"id"`
	Text       string            `json:"text"`
	ClassName  string            `json:"className"`
	ResourceID string            `json:"resourceId"`
	Attributes map[string]string `json:"attributes"`
	Bounds     core.Bounds       `json:"bounds"`
	Visible    bool              `json:"visible"`
	Enabled    bool              `json:"enabled"`
	Clickable  bool              `json:"clickable"`
}

func viewOf(el *core.Element) *elementView {
	text, _ := el.Text()
	class, _ := el.ClassName()
	rid, _ := el.ResourceID()
	return &elementView{
		ID:         el.ID(),
		Text:       text,
		ClassName:  class,
		ResourceID: rid,
		Attributes: el.Attributes(),
		Bounds:     el.Bounds(),
		Visible:    el.IsVisible(),
		Enabled:    el.IsEnabled(),
		Clickable:  el.IsClickable(),
	}
}

// SetElement exposes el as the `element` global. Nil clears it.
func (e *Engine) SetElement(el *core.Element) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if el == nil {
		e.runtime.Set("element", goja.Null())
		return
	}
	e.runtime.Set("element", viewOf(el))
}

// SetVariable sets a variable accessible in JS as a global
func (e *Engine) SetVariable(name string, value interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.variables[name] = value
	e.runtime.Set(name, value)
}

// SetVariables sets multiple variables
func (e *Engine) SetVariables(vars map[string]interface{}) {
	for k, v := range vars {
		e.SetVariable(k, v)
	}
}

// SetPlatform sets the value of the `platform` global.
func (e *Engine) SetPlatform(platform string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.platform = platform
}

// run executes script, interrupting it when ctx is done. Callers hold e.mu.
func (e *Engine) run(ctx context.Context, script string) (goja.Value, error) {
	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		e.runtime.Interrupt(ctx.Err())
		close(fired)
	})
	defer func() {
		if !stop() {
			<-fired
		}
		e.runtime.ClearInterrupt()
	}()

	result, err := e.runtime.RunString(script)
	if err != nil {
		return nil, fmt.Errorf("JS eval error: %w", err)
	}
	return result, nil
}

// Eval evaluates a JavaScript expression and returns the exported result.
// Evaluation is interrupted when ctx is done.
func (e *Engine) Eval(ctx context.Context, script string) (interface{}, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	result, err := e.run(ctx, script)
	if err != nil {
		return nil, err
	}
	return result.Export(), nil
}

// EvalBool evaluates script and reports its JavaScript truthiness.
func (e *Engine) EvalBool(ctx context.Context, script string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	result, err := e.run(ctx, script)
	if err != nil {
		return false, err
	}
	return result.ToBoolean(), nil
}

// EvalString evaluates a JavaScript expression and returns string result
func (e *Engine) EvalString(ctx context.Context, script string) (string, error) {
	result, err := e.Eval(ctx, script)
	if err != nil {
		return "", err
	}
	if result == nil {
		return "", nil
	}
	return fmt.Sprintf("%v", result), nil
}

// ExpandVariables expands ${...} expressions in a string using JS evaluation.
// Expressions that fail to evaluate are left as-is.
func (e *Engine) ExpandVariables(ctx context.Context, text string) string {
	result := text
	start := 0

	for {
		idx := strings.Index(result[start:], "${")
		if idx == -1 {
			break
		}
		idx += start

		depth := 1
		end := idx + 2
		for end < len(result) && depth > 0 {
			if result[end] == '{' {
				depth++
			} else if result[end] == '}' {
				depth--
			}
			end++
		}
		if depth != 0 {
			start = idx + 2
			continue
		}

		value, err := e.EvalString(ctx, result[idx+2:end-1])
		if err != nil {
			start = end
			continue
		}
		result = result[:idx] + value + result[end:]
		start = idx + len(value)
	}

	return result
}
