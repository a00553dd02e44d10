// Package dummy provides scripted, in-memory stand-ins for the chat,
// document and completion boundaries.
package dummy

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type action struct {
	kind string
	arg  string
}

// parseScript reads a comma-separated action list: ok, empty, err[:class],
// sleep:<ms>, msg:<text>, msgb64:<base64 text>.
func parseScript(script string) ([]action, error) {
	if strings.TrimSpace(script) == "" {
		return []action{{kind: "ok"}}, nil
	}
	parts := strings.Split(script, ",")
	actions := make([]action, 0, len(parts))
	for _, p := range parts {
		token := strings.TrimSpace(p)
		if token == "" {
			continue
		}
		switch {
		case token == "ok", token == "empty", token == "err":
			actions = append(actions, action{kind: token})
		case strings.HasPrefix(token, "err:"):
			actions = append(actions, action{kind: "err", arg: strings.TrimPrefix(token, "err:")})
		case strings.HasPrefix(token, "sleep:"):
			ms := strings.TrimPrefix(token, "sleep:")
			if _, err := strconv.Atoi(ms); err != nil {
				return nil, fmt.Errorf("invalid dummy sleep: %s", token)
			}
			actions = append(actions, action{kind: "sleep", arg: ms})
		case strings.HasPrefix(token, "msg:"):
			actions = append(actions, action{kind: "msg", arg: strings.TrimPrefix(token, "msg:")})
		case strings.HasPrefix(token, "msgb64:"):
			raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(token, "msgb64:"))
			if err != nil {
				return nil, fmt.Errorf("dummy msgb64 decode failed: %w", err)
			}
			actions = append(actions, action{kind: "msg", arg: string(raw)})
		default:
			return nil, fmt.Errorf("invalid dummy action: %s", token)
		}
	}
	if len(actions) == 0 {
		actions = append(actions, action{kind: "ok"})
	}
	return actions, nil
}

// scriptRunner replays actions in order and repeats the last one forever.
type scriptRunner struct {
	actions []action
	index   int
}

func newRunner(script string) (*scriptRunner, error) {
	actions, err := parseScript(script)
	if err != nil {
		return nil, err
	}
	return &scriptRunner{actions: actions}, nil
}

func (r *scriptRunner) next() action {
	if len(r.actions) == 0 {
		return action{kind: "ok"}
	}
	if r.index >= len(r.actions) {
		return r.actions[len(r.actions)-1]
	}
	a := r.actions[r.index]
	r.index++
	return a
}

func sleepCtx(ctx context.Context, ms string) error {
	n, _ := strconv.Atoi(ms)
	if n <= 0 {
		return nil
	}
	t := time.NewTimer(time.Duration(n) * time.Millisecond)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func emptyAs(v string, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
