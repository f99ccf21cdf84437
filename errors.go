package cloudexport

import "fmt"

// ConfigurationError is returned by Builder.Build when an option is invalid.
type ConfigurationError struct {
	Option string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration option=%s: %s", e.Option, e.Reason)
}

// CredentialError is returned when a backend client cannot find usable credentials.
type CredentialError struct {
	Err error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("no usable credentials: %v", e.Err)
}

func (e *CredentialError) Unwrap() error {
	return e.Err
}

// TranslationError reports a record that cannot be represented in the backend schema.
type TranslationError struct {
	Record string
	Reason string
}

func (e *TranslationError) Error() string {
	return fmt.Sprintf("cannot translate %s: %s", e.Record, e.Reason)
}
