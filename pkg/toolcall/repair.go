package toolcall

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	trailingCommaRE = regexp.MustCompile(`,\s*([}\]])`)
	missingValueRE  = regexp.MustCompile(`:\s*([,}])`)
	bareKeyRE       = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)\s*:`)
)

// RepairState returns st with its arguments passed through Repair. Open calls
// and arguments that Repair leaves unchanged are returned as they are.
func RepairState(st State) State {
	if !st.Complete {
		return st
	}
	if fixed, ok := Repair(st.Arguments); ok && fixed != st.Arguments {
		st.Arguments = fixed
		st.Repaired = true
	}
	return st
}

// Repair tries to turn truncated or sloppy tool arguments into valid JSON.
// Valid input is returned untouched. Otherwise trailing commas are removed,
// keys without a value get null, bare keys are quoted, an open string is
// closed and unbalanced braces and brackets are closed in order. ok reports
// whether the result is valid JSON.
func Repair(s string) (string, bool) {
	if json.Valid([]byte(s)) {
		return s, true
	}

	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return s, false
	}

	v := trailingCommaRE.ReplaceAllString(trimmed, "$1")
	v = missingValueRE.ReplaceAllString(v, ":null$1")
	if json.Valid([]byte(v)) {
		return v, true
	}
	if closed := closeOpen(v); json.Valid([]byte(closed)) {
		return closed, true
	}

	// Bare keys last: the pattern can also match inside string values.
	v = bareKeyRE.ReplaceAllString(v, `$1"$2":`)
	if json.Valid([]byte(v)) {
		return v, true
	}
	v = closeOpen(v)
	return v, json.Valid([]byte(v))
}

// closeOpen completes a truncated document by closing an open string,
// dropping a dangling comma, filling a dangling key with null and closing
// every open object and array.
func closeOpen(s string) string {
	var (
		stack     []byte
		inString  bool
		escaped   bool
		lastStart = -1 // opening quote of the last string
	)

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
			lastStart = i
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	var sb strings.Builder
	sb.WriteString(s)
	if inString {
		if escaped {
			// Drop a dangling escape.
			str := sb.String()
			sb.Reset()
			sb.WriteString(str[:len(str)-1])
		}
		sb.WriteByte('"')
	}

	out := strings.TrimRight(sb.String(), " \t\r\n")
	out = strings.TrimSuffix(out, ",")

	if len(stack) > 0 && stack[len(stack)-1] == '{' {
		switch {
		case strings.HasSuffix(out, ":"):
			out += "null"
		case strings.HasSuffix(out, `"`) && lastStart >= 0 && isKeyPosition(out, lastStart):
			out += ":null"
		}
	}

	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			out += "}"
		} else {
			out += "]"
		}
	}
	return out
}

// isKeyPosition reports whether the string starting at start follows an
// object opening or a comma, i.e. it is a key rather than a value.
func isKeyPosition(s string, start int) bool {
	prev := strings.TrimRight(s[:start], " \t\r\n")
	return strings.HasSuffix(prev, "{") || strings.HasSuffix(prev, ",")
}
