package monitoring

import (
	"errors"
	"net"
	"os"
	"runtime"
	"strconv"
	"syscall"

	"github.com/nkusongzhichao/PlusLib/pkg/logger"
)

const maxPortRollAttempts = 42

func newListener(address string, rollPorts bool, log *logger.Logger) (net.Listener, error) {
	ls, err := net.Listen("tcp4", address)
	if err == nil || !rollPorts || !isErrorAddressAlreadyInUse(err) {
		return ls, err
	}
	host, p, serr := net.SplitHostPort(address)
	if serr != nil {
		return nil, err
	}
	port, serr := strconv.Atoi(p)
	if serr != nil {
		return nil, err
	}
	for i := port + 1; i < port+maxPortRollAttempts; i++ {
		addr := net.JoinHostPort(host, strconv.Itoa(i))
		if ls, err = net.Listen("tcp4", addr); err == nil {
			log.Warn().Msgf("Port %v is busy, rolled to %v", port, i)
			return ls, nil
		}
	}
	return nil, err
}

func isErrorAddressAlreadyInUse(err error) bool {
	var eOsSyscall *os.SyscallError
	if !errors.As(err, &eOsSyscall) {
		return false
	}
	var errErrno syscall.Errno
	if !errors.As(eOsSyscall, &errErrno) {
		return false
	}
	if errErrno == syscall.EADDRINUSE {
		return true
	}
	const WSAEADDRINUSE = 10048
	return runtime.GOOS == "windows" && errErrno == WSAEADDRINUSE
}
