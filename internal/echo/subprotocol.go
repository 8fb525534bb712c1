package echo

// negotiateSubprotocol returns the first of supported that the client
// requested, or "" if none match.
func negotiateSubprotocol(supported, requested []string) string {
	for _, s := range supported {
		for _, r := range requested {
			if r == s {
				return s
			}
		}
	}
	return ""
}
