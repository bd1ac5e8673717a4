// Package idgen generates short, URL-safe delivery identifiers backed by nanoid.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// DeliveryPrefix marks identifiers attached to outbound deliveries.
const DeliveryPrefix = "dlv-"

// alphabet is the character set for the random portion of an id.
const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// size is the number of random characters, excluding the prefix.
const size = 12

// Delivery returns a new delivery id such as "dlv-V1StGXR8Z5jd".
func Delivery() (string, error) {
	return WithPrefix(DeliveryPrefix)
}

// WithPrefix returns a new id with the given prefix.
func WithPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(alphabet, size)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}
