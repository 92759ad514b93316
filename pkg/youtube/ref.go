package youtube

import (
	"strings"
)

// normalizeRef strips URL prefixes so the remaining token is a channel
// ID, @handle, or plain name.
func normalizeRef(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}

	for _, prefix := range []string{"https://", "http://"} {
		ref = strings.TrimPrefix(ref, prefix)
	}
	ref = strings.TrimPrefix(ref, "www.")

	if strings.HasPrefix(ref, "youtube.com/") {
		ref = strings.TrimPrefix(ref, "youtube.com/")
		ref = strings.TrimPrefix(ref, "channel/")
		ref = strings.TrimPrefix(ref, "c/")
		ref = strings.TrimPrefix(ref, "user/")
	}

	if idx := strings.IndexAny(ref, "/?"); idx >= 0 {
		ref = ref[:idx]
	}
	return strings.TrimSpace(ref)
}

// asHandle returns the bare handle when the reference looks like one,
// or empty when it does not. Plain names are treated as handles first
// since that is the cheaper lookup.
func asHandle(ref string) string {
	if strings.HasPrefix(ref, "UC") && len(ref) == 24 {
		return ""
	}
	return strings.TrimPrefix(ref, "@")
}
