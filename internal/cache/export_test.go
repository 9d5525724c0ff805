package cache

// RistrettoWait blocks until buffered writes on a ristretto-backed Cache are
// applied. It is a no-op for other backends.
func RistrettoWait(c Cache) {
	if r, ok := c.(*ristrettoCache); ok {
		r.wait()
	}
}
