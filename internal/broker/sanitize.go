package broker

import "github.com/microcosm-cc/bluemonday"

// nameSanitizer strips markup from client-controlled display strings
// (register-name, and therefore publisher_name) before they are echoed
// back to other connections. The broker never renders HTML itself, but
// the reference client's browser harness does, so the envelope's
// publisher_name must not carry attacker-controlled markup.
var nameSanitizer = bluemonday.StrictPolicy()

// sanitizeName strips all markup from a client-declared name and caps its
// length. It is applied once, when register-name is processed, not on
// every publish.
func sanitizeName(raw string) string {
	clean := nameSanitizer.Sanitize(raw)
	const maxLen = 128
	if len(clean) > maxLen {
		clean = clean[:maxLen]
	}
	return clean
}
