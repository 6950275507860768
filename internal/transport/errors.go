package transport

import (
	"errors"
	"net"
	"syscall"
)

func asNetError(err error, target *net.Error) bool {
	return errors.As(err, target)
}

func isConnReset(err error) bool {
	return errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE)
}

func isDNSErr(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}
