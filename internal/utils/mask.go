package utils

// MaskSecret keeps the first four characters of a credential for display.
// Empty values stay empty so unset fields remain recognisable.
func MaskSecret(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 4:
		return "*****"
	default:
		return s[:4] + "*****"
	}
}
