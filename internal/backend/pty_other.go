//go:build !linux

package backend

import (
	"os"
	"os/exec"
	"syscall"
)

func openPTY() (*os.File, string, error) {
	return nil, "", ErrUnsupported
}

func setWindowSize(_ *os.File, _, _ uint16) error {
	return ErrUnsupported
}

func attachTerminal(_ *exec.Cmd) {}

func detach(_ *exec.Cmd) {}

func signalGroup(pid int, _ syscall.Signal) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}
