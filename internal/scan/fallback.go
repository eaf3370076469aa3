package scan

// Coalesce returns the first candidate that is not the zero value
func Coalesce[T comparable](candidates ...T) T {
	var zero T
	for _, c := range candidates {
		if c != zero {
			return c
		}
	}
	return zero
}
