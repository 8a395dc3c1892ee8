package keys

// Namespace returns the storage namespace for a named cache or topic.
// Redis backends concatenate the configured prefix and name verbatim.
func Namespace(prefix, name string) string {
	return prefix + name
}

// Entry returns the storage key for an encoded cache key inside ns.
// The encoded key is appended as raw bytes; Go strings carry arbitrary bytes.
func Entry(ns string, encodedKey []byte) string {
	b := make([]byte, 0, len(ns)+len(encodedKey))
	b = append(b, ns...)
	b = append(b, encodedKey...)
	return string(b)
}
