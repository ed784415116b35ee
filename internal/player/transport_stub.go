//go:build !libmpv

package player

import "errors"

func NewTransport() (Transport, error) {
	return nil, errors.New("libmpv transport is not enabled; build with -tags libmpv")
}
