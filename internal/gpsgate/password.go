package gpsgate

// EncryptPassword applies the GpsGate login obfuscation: digits mirror around
// 9, letters mirror within the alphabet and swap case, then the whole string
// is reversed. Other characters pass through.
func EncryptPassword(p string) string {
	out := []rune(p)
	for i, r := range out {
		switch {
		case r >= '0' && r <= '9':
			out[i] = '9' - (r - '0')
		case r >= 'a' && r <= 'z':
			out[i] = 'Z' - (r - 'a')
		case r >= 'A' && r <= 'Z':
			out[i] = 'z' - (r - 'A')
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}
