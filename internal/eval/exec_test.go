package eval

import (
	"errors"
	"os"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"lsh/internal/parse"
)

func TestOpenPipes(t *testing.T) {
	pipes, err := openPipes(3)
	require.NoError(t, err)
	require.Len(t, pipes, 3)

	_, err = pipes[1].w.Write([]byte("x"))
	require.NoError(t, err)
	buf := make([]byte, 1)
	_, err = pipes[1].r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "x", string(buf))

	closePipes(pipes)
	_, err = pipes[0].w.Write([]byte("x"))
	assert.ErrorIs(t, err, os.ErrClosed)

	none, err := openPipes(0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStagesShareProcessGroup(t *testing.T) {
	if !haveCmd(t, "sleep") {
		t.Skip("sleep not available")
	}
	r, _ := newTestRunner(t, "")
	killJobs(t, r)
	require.Equal(t, 0, run(t, r, "sleep 30 | sleep 30 | sleep 30 &"))

	job := r.Jobs()[0]
	pids := job.Pids()
	require.Len(t, pids, 3)
	assert.Equal(t, pids[0], job.Pgid)
	for _, pid := range pids {
		pgid, err := unix.Getpgid(pid)
		require.NoError(t, err)
		assert.Equal(t, job.Pgid, pgid)
	}
	assert.NotEqual(t, unix.Getpgrp(), job.Pgid)
}

func TestStageSeesOnlyStandardDescriptors(t *testing.T) {
	if !haveCmd(t, "ls", "cat") {
		t.Skip("ls or cat not available")
	}
	if _, err := os.Stat("/proc/self/fd"); err != nil {
		t.Skip("no /proc")
	}
	// Keep an extra descriptor open in the shell; no child may inherit it.
	extra, err := os.Open(os.DevNull)
	require.NoError(t, err)
	defer extra.Close()

	r, tt := newTestRunner(t, "")
	require.Equal(t, 0, run(t, r, "ls /proc/self/fd | cat"))

	allowed := map[string]bool{"0": true, "1": true, "2": true, "3": true}
	for _, fd := range strings.Fields(tt.stdout(t)) {
		assert.True(t, allowed[fd], "unexpected descriptor %s", fd)
	}
}

func TestClassifyStartError(t *testing.T) {
	err := classifyStartError("prog", &os.SyscallError{Syscall: "fork", Err: syscall.EAGAIN})
	var fe *ForkError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "prog", fe.Program)
	assert.ErrorIs(t, err, syscall.EAGAIN)

	err = classifyStartError("prog", &os.PathError{Op: "fork/exec", Path: "/x/prog", Err: syscall.ENOENT})
	var ee *ExecError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, "prog: no such file or directory", err.Error())
}

func TestStartNonExecutable(t *testing.T) {
	path := t.TempDir() + "/script"
	require.NoError(t, os.WriteFile(path, []byte("not a program"), 0o644))

	r, tt := newTestRunner(t, "")
	assert.Equal(t, ExecFailedStatus, run(t, r, path))
	assert.Contains(t, tt.stderr(t), "lsh: "+path+": permission denied")
}

func TestTeardownKillsStartedStages(t *testing.T) {
	if !haveCmd(t, "sleep") {
		t.Skip("sleep not available")
	}
	r, tt := newTestRunner(t, "")
	r.init()

	job := &Job{Cmd: "sleep 30 | sleep 30"}
	for i := 0; i < 2; i++ {
		p, err := r.startStage(parse.S("sleep", "30"), tt.Stdin, tt.Stdout, ChildPolicy{Pgid: job.Pgid})
		require.NoError(t, err)
		if job.Pgid == 0 {
			job.Pgid = p.Pid
			r.setForeground(job.Pgid)
		}
		job.addProc(p.Pid, "sleep")
		require.NoError(t, p.Release())
	}
	require.Equal(t, job.Pgid, r.Foreground())

	r.teardown(job)
	assert.True(t, job.Done())
	assert.Equal(t, JobSignaled, job.State)
	assert.Equal(t, 128+int(unix.SIGKILL), job.Status)
	assert.Zero(t, r.Foreground())
	for _, pid := range job.Pids() {
		var ws unix.WaitStatus
		_, err := unix.Wait4(pid, &ws, unix.WNOHANG, nil)
		assert.True(t, errors.Is(err, unix.ECHILD))
	}
}
