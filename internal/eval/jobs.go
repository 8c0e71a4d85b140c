package eval

import (
	"errors"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// JobState is the completion state of a job.
type JobState int

const (
	JobRunning JobState = iota
	JobExited
	JobSignaled
)

func (s JobState) String() string {
	switch s {
	case JobExited:
		return "exited"
	case JobSignaled:
		return "killed"
	default:
		return "running"
	}
}

type proc struct {
	pid    int
	name   string
	done   bool
	status int
	signal syscall.Signal
}

// Job is the group of processes started for one pipeline.
type Job struct {
	ID         int
	Pgid       int
	Cmd        string
	Background bool
	State      JobState
	// Status is the last stage's exit code, or 128+signal when it was killed.
	Status   int
	Signal   syscall.Signal
	Notified bool

	procs []*proc
}

// Pids returns the identifiers of every started stage, in stage order.
func (j *Job) Pids() []int {
	pids := make([]int, 0, len(j.procs))
	for _, p := range j.procs {
		if p.pid > 0 {
			pids = append(pids, p.pid)
		}
	}
	return pids
}

// Done reports whether every member process has been reaped.
func (j *Job) Done() bool {
	for _, p := range j.procs {
		if !p.done {
			return false
		}
	}
	return true
}

func (j *Job) addProc(pid int, name string) {
	j.procs = append(j.procs, &proc{pid: pid, name: name})
}

// addFailed records a stage whose program never loaded.
func (j *Job) addFailed(name string) {
	j.procs = append(j.procs, &proc{name: name, done: true, status: ExecFailedStatus})
	j.settle()
}

func (j *Job) last() *proc {
	if len(j.procs) == 0 {
		return nil
	}
	return j.procs[len(j.procs)-1]
}

func (j *Job) find(pid int) *proc {
	for _, p := range j.procs {
		if p.pid == pid {
			return p
		}
	}
	return nil
}

// settle derives the job state from its last stage.
func (j *Job) settle() {
	last := j.last()
	if last == nil || !last.done {
		j.State = JobRunning
		return
	}
	j.Status = last.status
	j.Signal = last.signal
	if last.signal != 0 {
		j.State = JobSignaled
	} else {
		j.State = JobExited
	}
}

func (j *Job) String() string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(strconv.Itoa(j.ID))
	b.WriteString("] ")
	b.WriteString(j.State.String())
	b.WriteString(" ")
	b.WriteString(strconv.Itoa(j.Pgid))
	b.WriteString(" ")
	b.WriteString(j.Cmd)
	return b.String()
}

func (p *proc) record(ws unix.WaitStatus) {
	p.done = true
	switch {
	case ws.Signaled():
		p.signal = ws.Signal()
		p.status = 128 + int(p.signal)
	default:
		p.status = ws.ExitStatus()
	}
}

// addJob registers a job for asynchronous reaping.
func (r *Runner) addJob(job *Job) *Job {
	if r == nil || job == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.jobs == nil {
		r.jobs = make(map[int]*Job)
	}
	r.nextJobID++
	job.ID = r.nextJobID
	r.jobs[job.ID] = job
	return job
}

func (r *Runner) findJobByPID(pid int) *Job {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, job := range r.jobs {
		if job.Pgid == pid || job.find(pid) != nil {
			return job
		}
	}
	return nil
}

// Jobs returns the registered jobs ordered by ID.
func (r *Runner) Jobs() []*Job {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	jobs := make([]*Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].ID < jobs[j].ID
	})
	return jobs
}

// Reap collects every registered process that has already terminated,
// without blocking. Only pids owned by registered jobs are waited for, so
// a concurrent foreground wait never loses its child. It returns the
// number of processes reaped.
func (r *Runner) Reap() int {
	if r == nil {
		return 0
	}
	r.reapMu.Lock()
	defer r.reapMu.Unlock()
	r.mu.Lock()
	var pending []int
	for _, job := range r.jobs {
		for _, p := range job.procs {
			if !p.done {
				pending = append(pending, p.pid)
			}
		}
	}
	r.mu.Unlock()

	n := 0
	for _, pid := range pending {
		var ws unix.WaitStatus
		wpid, err := unix.Wait4(pid, &ws, unix.WNOHANG, nil)
		switch {
		case errors.Is(err, unix.ECHILD):
			// Already gone; nothing left to collect.
			ws = 0
		case err != nil || wpid != pid:
			continue
		}
		r.markReaped(pid, ws)
		n++
	}
	return n
}

func (r *Runner) markReaped(pid int, ws unix.WaitStatus) {
	job := r.findJobByPID(pid)
	if job == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p := job.find(pid)
	if p == nil || p.done {
		return
	}
	p.record(ws)
	job.settle()
	if job.Done() {
		r.Logger.Debug("job done", "job", job.ID, "pgid", job.Pgid, "state", job.State, "status", job.Status)
	}
}

// CollectFinished removes and returns the jobs whose processes have all
// been reaped. Once returned, a job's completion counts as observed.
func (r *Runner) CollectFinished() []*Job {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	var done []*Job
	for _, job := range r.jobs {
		if job.Done() {
			job.Notified = true
			done = append(done, job)
		}
	}
	r.mu.Unlock()
	sort.Slice(done, func(i, j int) bool {
		return done[i].ID < done[j].ID
	})
	r.pruneJobs()
	return done
}

func (r *Runner) pruneJobs() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, job := range r.jobs {
		if job.Done() && job.Notified {
			delete(r.jobs, id)
		}
	}
}

// waitForeground blocks until the job's last stage terminates and returns
// its status. Earlier stages still running at that point are registered
// for asynchronous reaping, unless the last stage never loaded: then
// nothing consumes their output and they are killed and reaped here.
func (r *Runner) waitForeground(job *Job) int {
	last := job.last()
	if last == nil {
		return 0
	}
	if !last.done {
		r.setForeground(job.Pgid)
		r.waitProc(last)
	}
	r.restoreForeground()
	if last.pid == 0 && job.Pgid != 0 {
		r.killRemaining(job)
	}
	job.settle()
	status := job.Status
	for _, p := range job.procs {
		if p.done {
			continue
		}
		r.Logger.Debug("handing unfinished stages to reaper", "pgid", job.Pgid, "pid", p.pid)
		r.addJob(job)
		r.Reap()
		break
	}
	return status
}

// killRemaining kills the job's process group and reaps every stage that
// has not terminated yet.
func (r *Runner) killRemaining(job *Job) {
	_ = unix.Kill(-job.Pgid, unix.SIGKILL)
	for _, p := range job.procs {
		if !p.done {
			r.waitProc(p)
		}
	}
}

func (r *Runner) waitProc(p *proc) {
	var ws unix.WaitStatus
	for {
		_, err := unix.Wait4(p.pid, &ws, 0, nil)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			ws = 0
		}
		break
	}
	p.record(ws)
	r.Logger.Debug("stage exited", "pid", p.pid, "program", p.name, "status", p.status)
}
