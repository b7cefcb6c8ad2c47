package preprocess

import "strings"

// Storage aliases of characters a document store does not accept in keys.
const (
	dollarAlias = "JA=="
	dotAlias    = "Lg=="
)

// EncodeKey returns the storage alias of an xpath: a leading "$" and every "."
// are replaced by their base64 forms.
func EncodeKey(key string) string {
	if strings.HasPrefix(key, "$") {
		key = dollarAlias + key[1:]
	}
	return strings.ReplaceAll(key, ".", dotAlias)
}

// DecodeKey reverses EncodeKey.
func DecodeKey(key string) string {
	if strings.HasPrefix(key, dollarAlias) {
		key = "$" + key[len(dollarAlias):]
	}
	return strings.ReplaceAll(key, dotAlias, ".")
}
