package chat

import "encoding/base64"

// Obfuscate reversibly encodes a secret before it is written to the config
// table. This is obfuscation, not encryption: it keeps the raw key out of
// casual inspection of the database file but offers no protection against a
// local attacker. A deliberate low-security tradeoff for a client-only tool.
func Obfuscate(value string) string {
	if value == "" {
		return ""
	}
	return base64.StdEncoding.EncodeToString([]byte(value))
}

// Deobfuscate reverses Obfuscate. Malformed input yields "".
func Deobfuscate(encoded string) string {
	if encoded == "" {
		return ""
	}
	b, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return ""
	}
	return string(b)
}
