package process

import (
	"errors"
	"os"
	"syscall"
)

// SignalGroup sends sig to the process group led by p, falling back to the
// process itself when the group cannot be resolved.
// Returns os.ErrProcessDone if the process has already gone.
func SignalGroup(p *os.Process, sig syscall.Signal) error {
	if p == nil {
		return os.ErrProcessDone
	}

	pgid, err := syscall.Getpgid(p.Pid)
	if err != nil {
		return p.Signal(sig)
	}

	if err := syscall.Kill(-pgid, sig); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return os.ErrProcessDone
		}
		return err
	}
	return nil
}
