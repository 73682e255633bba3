package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/flowstate-dev/flowstate/pkg/api"
)

// MaxWait bounds the duration accepted by the wait verb.
const MaxWait = time.Hour

func (r *Registry) log(ctx context.Context, args string, vars map[string]any) (api.ActionResult, error) {
	level := slog.LevelInfo
	if word, rest := split(args); rest != "" {
		switch strings.ToLower(word) {
		case "info":
			args = rest
		case "warn", "warning":
			level, args = slog.LevelWarn, rest
		case "error":
			level, args = slog.LevelError, rest
		}
	}
	msg := unquote(args)
	r.logger.Log(ctx, level, "action_log", slog.String("message", msg))
	return api.ActionResult{Success: true, Output: msg}, nil
}

// set stores a JSON value under key, or the raw text when the value is not
// valid JSON.
func set(ctx context.Context, args string, vars map[string]any) (api.ActionResult, error) {
	key, raw, ok := strings.Cut(args, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return api.ActionResult{}, fmt.Errorf("set: expected <key>=<value>, got %q", args)
	}
	raw = strings.TrimSpace(raw)
	vars[key] = ParseValue(raw)
	return api.ActionResult{Success: true, Output: raw}, nil
}

// ParseValue decodes raw as a JSON value, keeping numbers as json.Number.
// Anything that is not a single JSON value is returned unchanged.
func ParseValue(raw string) any {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return raw
	}
	return v
}

func (r *Registry) wait(ctx context.Context, args string, vars map[string]any) (api.ActionResult, error) {
	d, err := time.ParseDuration(strings.TrimSpace(args))
	if err != nil {
		return api.ActionResult{}, fmt.Errorf("wait: %w", err)
	}
	if d < 0 || d > MaxWait {
		return api.ActionResult{}, fmt.Errorf("wait: duration %s out of range [0, %s]", d, MaxWait)
	}
	if err := r.sleep(ctx, d); err != nil {
		return api.ActionResult{}, fmt.Errorf("wait: %w", err)
	}
	return api.ActionResult{Success: true}, nil
}

func fail(ctx context.Context, args string, vars map[string]any) (api.ActionResult, error) {
	return api.ActionResult{Success: false, Output: unquote(args)}, nil
}

func succeed(ctx context.Context, args string, vars map[string]any) (api.ActionResult, error) {
	return api.ActionResult{Success: true, Output: unquote(args)}, nil
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' && s[len(s)-1] == '"' || s[0] == '\'' && s[len(s)-1] == '\'') {
		return s[1 : len(s)-1]
	}
	return s
}
