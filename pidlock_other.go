//go:build !unix

package main

import (
	"os"
	"os/exec"
	"slices"
	"strconv"

	"github.com/NinjaGamerz509/Bot/sys"
)

type pidLock struct {
	path string
}

// acquirePIDLock only records the PID; there is no flock here.
func acquirePIDLock(path string) (*pidLock, error) {
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		sys.LogWarn(sys.MsgBotPIDWriteFail, err)
	}
	return &pidLock{path: path}, nil
}

func (l *pidLock) release() {
	_ = os.Remove(l.path)
}

func reexec() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	args := os.Args[1:]
	if !slices.Contains(args, "-skip-reg") {
		args = append(args, "-skip-reg")
	}
	cmd := exec.Command(exe, args...)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	if err := cmd.Start(); err != nil {
		return err
	}
	os.Exit(0)
	return nil
}
