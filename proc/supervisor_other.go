//go:build !unix

package proc

import (
	"os"
	"os/exec"
	"syscall"
)

func prepareCommand(cmd *exec.Cmd) {}

func signalProcess(p *os.Process, _ syscall.Signal) error {
	return p.Kill()
}

func exitSignal(_ *os.ProcessState) string { return "" }
