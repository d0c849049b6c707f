package common

// WipeByteArray overwrites b with zeros. Used for secrets read from the
// terminal once they have been handed to the platform.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
