//go:build !linux

package hw

import "errors"

// OpenChardev is only available on Linux.
func OpenChardev(string) (Chip, error) {
	return nil, errors.New("GPIO character device requires linux")
}
