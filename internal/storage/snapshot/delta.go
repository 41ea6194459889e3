package snapshot

// Diff encodes target against base as a bytewise additive delta:
// target[i] = base[i] + delta[i] (mod 256), with base treated as zero past
// its end. The delta always has len(target) bytes.
func Diff(base, target []byte) []byte {
	delta := make([]byte, len(target))
	for i, b := range target {
		if i < len(base) {
			delta[i] = b - base[i]
		} else {
			delta[i] = b
		}
	}
	return delta
}

// Undiff reverses Diff.
func Undiff(base, delta []byte) []byte {
	out := make([]byte, len(delta))
	for i, d := range delta {
		if i < len(base) {
			out[i] = base[i] + d
		} else {
			out[i] = d
		}
	}
	return out
}
