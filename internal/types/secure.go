package types

// redactedPlaceholder is the string used to replace secret values in logs and serialization.
const redactedPlaceholder = "***REDACTED***"

// redactedJSON is the pre-computed JSON encoding of the redacted placeholder.
var redactedJSON = []byte(`"***REDACTED***"`)

// SecretString is a string type that prevents accidental logging or serialization
// of sensitive values such as the identity provider service account or the email
// provider API key. String() and MarshalJSON() return a redacted placeholder.
//
// Use Unmask() to retrieve the raw plaintext value when it is genuinely needed.
type SecretString string

// String returns a redacted placeholder instead of the raw value.
func (s SecretString) String() string {
	return redactedPlaceholder
}

// MarshalJSON returns the redacted placeholder as a JSON string.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return redactedJSON, nil
}

// Unmask returns the raw plaintext value of the secret.
func (s SecretString) Unmask() string {
	return string(s)
}

// IsEmpty reports whether the secret holds no value.
func (s SecretString) IsEmpty() bool {
	return s == ""
}

// Prefix returns at most n leading bytes of the raw value. It exists for
// startup diagnostics of malformed secrets, where a short prefix identifies
// the problem without disclosing the secret.
func (s SecretString) Prefix(n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return string(s)
	}
	return string(s[:n])
}
