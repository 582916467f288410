package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Variable introspection is not a privileged side channel: it injects a small
// code unit through the same execute path as analysis code, so everything
// that touches the runtime crosses one gate. The snippet prints its result as
// JSON between sentinel markers to survive whatever else the harness emits.
const introspectSentinel = "__CAUSALAB_INTROSPECT__"

const listVariablesSnippet = `import json
names = sorted(k for k in globals() if not k.startswith("_") and not callable(globals()[k]) and not type(globals()[k]).__name__ == "module")
print("` + introspectSentinel + `" + json.dumps(names) + "` + introspectSentinel + `")
`

const getVariableSnippetFmt = `import json
_name = %s
if _name in globals():
    _v = globals()[_name]
    try:
        _s = json.dumps(_v)
    except (TypeError, ValueError):
        _s = json.dumps(repr(_v))
else:
    _s = json.dumps(None)
print("` + introspectSentinel + `" + json.dumps({"name": _name, "value": _s}) + "` + introspectSentinel + `")
`

// ListVariables returns the names currently defined in a persistent
// session's interpreter namespace.
func ListVariables(ctx context.Context, eng *Engine, sess *Session) ([]string, error) {
	if sess.Mode() != ModePersistent {
		return nil, &TransferError{Op: "list variables", Err: errNotPersistent}
	}

	res, err := eng.Run(ctx, sess, listVariablesSnippet, 0)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, fmt.Errorf("introspection code failed: %s", strings.TrimSpace(res.Output))
	}

	payload, err := sentinelPayload(res.Output)
	if err != nil {
		return nil, err
	}
	var names []string
	if err := json.Unmarshal([]byte(payload), &names); err != nil {
		return nil, fmt.Errorf("decode variable names: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// GetVariable returns the JSON-serialized value of one variable in a
// persistent session's namespace. Values JSON cannot represent are returned
// as their repr string. A missing variable yields "null".
func GetVariable(ctx context.Context, eng *Engine, sess *Session, name string) (string, error) {
	if sess.Mode() != ModePersistent {
		return "", &TransferError{Op: "get variable", Path: name, Err: errNotPersistent}
	}

	quoted, err := json.Marshal(name)
	if err != nil {
		return "", fmt.Errorf("encode variable name: %w", err)
	}
	snippet := fmt.Sprintf(getVariableSnippetFmt, string(quoted))

	res, err := eng.Run(ctx, sess, snippet, 0)
	if err != nil {
		return "", err
	}
	if !res.Success {
		return "", fmt.Errorf("introspection code failed: %s", strings.TrimSpace(res.Output))
	}

	payload, err := sentinelPayload(res.Output)
	if err != nil {
		return "", err
	}
	var decoded struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	}
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		return "", fmt.Errorf("decode variable payload: %w", err)
	}
	return decoded.Value, nil
}

func sentinelPayload(output string) (string, error) {
	start := strings.Index(output, introspectSentinel)
	if start == -1 {
		return "", fmt.Errorf("introspection sentinel not found in output")
	}
	start += len(introspectSentinel)
	end := strings.Index(output[start:], introspectSentinel)
	if end == -1 {
		return "", fmt.Errorf("introspection sentinel not closed in output")
	}
	return output[start : start+end], nil
}
