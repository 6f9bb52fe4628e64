package channel

import (
	"fmt"

	"notifyhub/internal/domain/notify"
)

func errInvalidValue(key, value string) error {
	return fmt.Errorf("config key %q has invalid value %q", key, value)
}

// errcodeError builds a DeliveryError from a provider errcode response.
func errcodeError(provider string, kind notify.ErrorKind, code int, msg string) *notify.DeliveryError {
	return notify.NewDeliveryError(provider, kind, "errcode %d: %s", code, msg)
}
