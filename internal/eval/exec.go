package eval

import (
	"errors"
	"os"

	"lsh/internal/parse"
)

type pipePair struct {
	r, w *os.File
}

// openPipes creates the n pipes joining n+1 stages. On failure every pipe
// created so far is closed.
func openPipes(n int) ([]pipePair, error) {
	pipes := make([]pipePair, 0, n)
	for i := 0; i < n; i++ {
		pr, pw, err := os.Pipe()
		if err != nil {
			closePipes(pipes)
			return nil, &PipeError{Index: i, Err: err}
		}
		pipes = append(pipes, pipePair{r: pr, w: pw})
	}
	return pipes, nil
}

func closePipes(pipes []pipePair) {
	for _, p := range pipes {
		_ = p.r.Close()
		_ = p.w.Close()
	}
}

// startJob starts one process per stage. Stage i reads the pipe written by
// stage i-1 and writes the pipe read by stage i+1; the boundary streams
// apply only to the first stage's input and the last stage's output.
//
// Each child receives exactly its stdin, stdout and the terminal's stderr.
// Everything else the shell holds is close-on-exec, and the shell closes
// its copies of all pipe ends and redirection descriptors once the stages
// are started, so a reader sees end-of-stream as soon as its writer exits.
//
// A stage whose program cannot be loaded is reported and recorded with
// ExecFailedStatus; its neighbours still run. A fork failure kills the
// stages already started and abandons the job.
func (r *Runner) startJob(cmd *parse.Command, b *boundary) (*Job, error) {
	defer b.Close()
	n := len(cmd.Pipeline)
	pipes, err := openPipes(n - 1)
	if err != nil {
		return nil, err
	}
	defer closePipes(pipes)

	if (ChildPolicy{Background: cmd.Background}).Interrupt() == InterruptIgnored {
		defer r.ignoreInterrupts()()
	}

	job := &Job{Cmd: cmd.String(), Background: cmd.Background}
	for i, st := range cmd.Pipeline {
		in, out := b.In, b.Out
		if i > 0 {
			in = pipes[i-1].r
		}
		if i < n-1 {
			out = pipes[i].w
		}
		policy := ChildPolicy{Background: cmd.Background, Pgid: job.Pgid}
		p, err := r.startStage(st, in, out, policy)
		if err != nil {
			var fe *ForkError
			if errors.As(err, &fe) {
				r.teardown(job)
				return nil, err
			}
			r.diag(err)
			job.addFailed(st.Name())
			continue
		}
		if job.Pgid == 0 {
			job.Pgid = p.Pid
			if !cmd.Background {
				r.setForeground(job.Pgid)
			}
		}
		job.addProc(p.Pid, st.Name())
		// Status is collected with wait4 on the pid.
		_ = p.Release()
	}
	r.Logger.Debug("job started", "pgid", job.Pgid, "pids", job.Pids(), "background", cmd.Background)
	return job, nil
}

func (r *Runner) startStage(st parse.Stage, in, out *os.File, policy ChildPolicy) (*os.Process, error) {
	path, ok := resolvePath(st.Name(), r.Env)
	if !ok {
		return nil, &ExecError{Program: st.Name(), Err: ErrNotFound}
	}
	attr := &os.ProcAttr{
		Env:   r.Env.Environ(),
		Files: []*os.File{in, out, r.Term.Stderr},
		Sys:   policy.SysProcAttr(),
	}
	p, err := os.StartProcess(path, st.Argv, attr)
	if err != nil {
		return nil, classifyStartError(st.Name(), err)
	}
	return p, nil
}

// teardown kills and reaps the stages of a job that could not be completed.
func (r *Runner) teardown(job *Job) {
	if job.Pgid != 0 {
		r.killRemaining(job)
	}
	job.settle()
	r.restoreForeground()
}
