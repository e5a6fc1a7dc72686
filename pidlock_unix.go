//go:build unix

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/NinjaGamerz509/Bot/sys"
	"golang.org/x/sys/unix"
)

type pidLock struct {
	f    *os.File
	path string
}

// acquirePIDLock takes an exclusive flock on path. A previous instance
// holding it gets SIGTERM, then SIGKILL if it lingers.
func acquirePIDLock(path string) (*pidLock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		err = unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			break
		}
		if !errors.Is(err, unix.EWOULDBLOCK) {
			_ = f.Close()
			return nil, err
		}

		var oldPid int
		_, _ = f.Seek(0, io.SeekStart)
		if _, scanErr := fmt.Fscanf(f, "%d", &oldPid); scanErr != nil || oldPid == os.Getpid() {
			<-ticker.C
			continue
		}
		terminate(oldPid, ticker)
	}

	_ = f.Truncate(0)
	_, _ = f.Seek(0, io.SeekStart)
	if _, err := fmt.Fprintf(f, "%d", os.Getpid()); err != nil {
		sys.LogWarn(sys.MsgBotPIDWriteFail, err)
	}
	_ = f.Sync()

	return &pidLock{f: f, path: path}, nil
}

func terminate(pid int, ticker *time.Ticker) {
	sys.LogInfo(sys.MsgBotKillingOld, pid)
	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		sys.LogWarn(sys.MsgBotKillFail, err)
		<-ticker.C
		return
	}

	if !waitExit(pid, ticker, 5*time.Second) {
		sys.LogWarn(sys.MsgBotStubborn, pid)
		_ = unix.Kill(pid, unix.SIGKILL)
		waitExit(pid, ticker, 2*time.Second)
	}
	sys.LogInfo(sys.MsgBotOldTerminated)
}

func waitExit(pid int, ticker *time.Ticker, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		select {
		case <-ticker.C:
			if unix.Kill(pid, 0) != nil {
				return true
			}
		case <-deadline:
			return false
		}
	}
}

func (l *pidLock) release() {
	_ = unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	_ = l.f.Close()
	_ = os.Remove(l.path)
}

// reexec replaces the process with a fresh copy that skips registration.
func reexec() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	args := os.Args
	if !slices.Contains(args, "-skip-reg") {
		args = append(args, "-skip-reg")
	}
	return unix.Exec(exe, args, os.Environ())
}
