package types

// SecretString wraps sensitive string values to prevent accidental exposure
// in logs, JSON output, or error messages.
type SecretString string

const redactedValue = "[REDACTED]"

// String implements fmt.Stringer, always returning the redacted placeholder.
func (s SecretString) String() string {
	return redactedValue
}

// MarshalJSON implements json.Marshaler, always returning the redacted
// placeholder so secrets never land in serialized output.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redactedValue + `"`), nil
}

// Unmask returns the underlying value. Call sites that need the real secret
// must use this explicitly.
func (s SecretString) Unmask() string {
	return string(s)
}

// IsEmpty reports whether the secret has no value.
func (s SecretString) IsEmpty() bool {
	return s == ""
}
