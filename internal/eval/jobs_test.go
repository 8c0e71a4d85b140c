package eval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// killJobs terminates whatever a test left running.
func killJobs(t *testing.T, r *Runner) {
	t.Helper()
	t.Cleanup(func() {
		for _, job := range r.Jobs() {
			if job.Pgid != 0 {
				_ = unix.Kill(-job.Pgid, unix.SIGKILL)
			}
		}
		deadline := time.Now().Add(5 * time.Second)
		for len(r.Jobs()) > 0 && time.Now().Before(deadline) {
			r.Reap()
			r.CollectFinished()
			time.Sleep(10 * time.Millisecond)
		}
	})
}

func TestBackgroundReturnsImmediately(t *testing.T) {
	if !haveCmd(t, "sleep") {
		t.Skip("sleep not available")
	}
	r, _ := newTestRunner(t, "")
	killJobs(t, r)

	start := time.Now()
	require.Equal(t, 0, run(t, r, "sleep 30 &"))
	assert.Less(t, time.Since(start), 5*time.Second)

	jobs := r.Jobs()
	require.Len(t, jobs, 1)
	job := jobs[0]
	assert.Equal(t, 1, job.ID)
	assert.True(t, job.Background)
	assert.Equal(t, JobRunning, job.State)
	assert.Equal(t, []int{job.Pgid}, job.Pids())
	assert.Equal(t, 0, r.Reap())
	assert.Empty(t, r.CollectFinished())
}

func TestBackgroundJobsAreReaped(t *testing.T) {
	if !haveCmd(t, "true") {
		t.Skip("true not available")
	}
	r, _ := newTestRunner(t, "")
	killJobs(t, r)

	var pids []int
	for i := 0; i < 50; i++ {
		require.Equal(t, 0, run(t, r, "true &"))
	}
	for _, job := range r.Jobs() {
		pids = append(pids, job.Pids()...)
	}
	require.Len(t, pids, 50)

	var finished []*Job
	require.Eventually(t, func() bool {
		r.Reap()
		finished = append(finished, r.CollectFinished()...)
		return len(finished) == 50
	}, 10*time.Second, 10*time.Millisecond)
	assert.Empty(t, r.Jobs())

	for _, job := range finished {
		assert.True(t, job.Notified)
		assert.Equal(t, JobExited, job.State)
		assert.Equal(t, 0, job.Status)
	}
	for _, pid := range pids {
		var ws unix.WaitStatus
		_, err := unix.Wait4(pid, &ws, unix.WNOHANG, nil)
		assert.True(t, errors.Is(err, unix.ECHILD), "pid %d still waitable", pid)
	}
}

// allDone reports whether every registered job has been fully reaped.
func allDone(r *Runner) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, job := range r.jobs {
		if !job.Done() {
			return false
		}
	}
	return true
}

func TestBackgroundJobsReapedOnChildSignal(t *testing.T) {
	if !haveCmd(t, "true") {
		t.Skip("true not available")
	}
	r, _ := newTestRunner(t, "")
	killJobs(t, r)
	stop := r.HandleSignals(context.Background())
	defer stop()

	for round := 0; round < 5; round++ {
		for i := 0; i < 50; i++ {
			require.Equal(t, 0, run(t, r, "true &"))
		}
		// Only the child-termination handler reaps here.
		require.Eventually(t, func() bool { return allDone(r) }, 10*time.Second, 10*time.Millisecond)

		finished := r.CollectFinished()
		require.Len(t, finished, 50)
		for _, job := range finished {
			for _, pid := range job.Pids() {
				var ws unix.WaitStatus
				_, err := unix.Wait4(pid, &ws, unix.WNOHANG, nil)
				assert.True(t, errors.Is(err, unix.ECHILD), "pid %d left as zombie", pid)
			}
		}
	}
}

func TestForegroundStatusWithReaperActive(t *testing.T) {
	if !haveCmd(t, "sh", "true") {
		t.Skip("sh or true not available")
	}
	r, _ := newTestRunner(t, "")
	killJobs(t, r)
	stop := r.HandleSignals(context.Background())
	defer stop()

	for i := 0; i < 20; i++ {
		require.Equal(t, 0, run(t, r, "true &"))
		require.Equal(t, 5, run(t, r, "sh -c 'exit 5'"))
	}
}

func TestForegroundHandsOffEarlierStages(t *testing.T) {
	if !haveCmd(t, "sleep", "true") {
		t.Skip("sleep or true not available")
	}
	r, _ := newTestRunner(t, "")
	killJobs(t, r)

	start := time.Now()
	require.Equal(t, 0, run(t, r, "sleep 30 | true"))
	assert.Less(t, time.Since(start), 10*time.Second)

	jobs := r.Jobs()
	require.Len(t, jobs, 1)
	job := jobs[0]
	assert.False(t, job.Background)
	assert.False(t, job.Done())
	assert.Equal(t, JobExited, job.State)

	require.NoError(t, unix.Kill(-job.Pgid, unix.SIGKILL))
	require.Eventually(t, func() bool {
		r.Reap()
		return len(r.CollectFinished()) == 1
	}, 10*time.Second, 10*time.Millisecond)
}

func TestForegroundHandOffWithReaperActive(t *testing.T) {
	if !haveCmd(t, "sleep", "true") {
		t.Skip("sleep or true not available")
	}
	r, _ := newTestRunner(t, "")
	killJobs(t, r)
	stop := r.HandleSignals(context.Background())
	defer stop()

	for i := 0; i < 5; i++ {
		require.Equal(t, 0, run(t, r, "sleep 0.1 | true"))
	}
	require.Eventually(t, func() bool { return allDone(r) }, 10*time.Second, 10*time.Millisecond)
	assert.Len(t, r.CollectFinished(), 5)
}

func TestFailedLastStageKillsEarlierStages(t *testing.T) {
	if !haveCmd(t, "sleep") {
		t.Skip("sleep not available")
	}
	r, _ := newTestRunner(t, "")
	killJobs(t, r)

	start := time.Now()
	assert.Equal(t, ExecFailedStatus, run(t, r, "sleep 30 | lsh-no-such-program"))
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Empty(t, r.Jobs())
}

func TestJobString(t *testing.T) {
	job := &Job{ID: 3, Pgid: 1234, Cmd: "sleep 1 &"}
	job.addProc(1234, "sleep")
	job.settle()
	assert.Equal(t, "[3] running 1234 sleep 1 &", job.String())
	assert.False(t, job.Done())

	job.procs[0].record(unix.WaitStatus(0))
	job.settle()
	assert.True(t, job.Done())
	assert.Equal(t, "[3] exited 1234 sleep 1 &", job.String())
}

func TestJobStatusFromLastStage(t *testing.T) {
	job := &Job{}
	job.addProc(10, "a")
	job.addFailed("b")
	assert.False(t, job.Done())
	assert.Equal(t, JobExited, job.State)
	assert.Equal(t, ExecFailedStatus, job.Status)
	assert.Equal(t, []int{10}, job.Pids())
}

func TestJobStateString(t *testing.T) {
	assert.Equal(t, "running", JobRunning.String())
	assert.Equal(t, "exited", JobExited.String())
	assert.Equal(t, "killed", JobSignaled.String())
}

func TestCollectFinishedPrunes(t *testing.T) {
	r := &Runner{}
	done := &Job{Cmd: "a"}
	done.addFailed("a")
	running := &Job{Cmd: "b"}
	running.addProc(99999, "b")
	r.addJob(done)
	r.addJob(running)

	got := r.CollectFinished()
	require.Len(t, got, 1)
	assert.Same(t, done, got[0])
	assert.Equal(t, []*Job{running}, r.Jobs())
	assert.Empty(t, r.CollectFinished())
}
