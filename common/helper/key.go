package helper

// MaskAPIKey returns a masked version of an API key for safe logging: the
// first 6 and last 4 characters with "..." in between. Short keys come back
// as "***".
func MaskAPIKey(key string) string {
	if len(key) < 12 {
		return "***"
	}
	return key[:6] + "..." + key[len(key)-4:]
}
