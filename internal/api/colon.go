package api

import "strings"

// splitRightmostColon implements the URL grammar spec.md §6 requires
// for colon-suffixed actions: the rightmost `:` splits `{name}:{action}`,
// and both sides must be non-empty. Returns ok=false if raw doesn't
// contain a qualifying colon.
func splitRightmostColon(raw string) (name, action string, ok bool) {
	i := strings.LastIndex(raw, ":")
	if i <= 0 || i == len(raw)-1 {
		return "", "", false
	}
	return raw[:i], raw[i+1:], true
}
