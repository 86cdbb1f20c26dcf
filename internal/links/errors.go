package links

import "fmt"

// BadDestinationError rejects a destination URL. It names the field so
// the HTTP layer can render a field-specific message.
type BadDestinationError struct {
	Destination string
	Reason      string
}

func (e *BadDestinationError) Error() string {
	return fmt.Sprintf("destination %q rejected: %s", e.Destination, e.Reason)
}

// BadAliasError rejects an alias: bad charset or length, reserved word,
// or collision with a live alias.
type BadAliasError struct {
	Alias  string
	Reason string
}

func (e *BadAliasError) Error() string {
	return fmt.Sprintf("alias %q rejected: %s", e.Alias, e.Reason)
}
