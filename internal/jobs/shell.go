package jobs

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"github.com/shaiso/harvester/internal/domain"
	"github.com/shaiso/harvester/internal/engine"
	"github.com/shaiso/harvester/internal/telemetry"
)

// ShellJob — запустить внешнюю команду.
//
// Шаблонные поля: shell, каждый из args, working_dir, encoding.
//
//	{"ShellJob": {
//	    "shell": "python3",
//	    "args": ["convert.py", "{{file}}"],
//	    "working_dir": "work/{{cat}}",
//	    "encoding": "utf-8"
//	}}
type ShellJob struct {
	spec domain.ShellJobSpec
}

// NewShellJob создаёт ShellJob.
func NewShellJob(spec *domain.ShellJobSpec) (*ShellJob, error) {
	if spec == nil {
		return nil, fmt.Errorf("%w: empty ShellJob", ErrUnknownKind)
	}
	return &ShellJob{spec: *spec}, nil
}

// Kind возвращает вид job.
func (j *ShellJob) Kind() domain.JobKind { return domain.JobShell }

// PreProcess ничего не делает.
func (j *ShellJob) PreProcess() error { return nil }

// MakeTask рендерит команду.
func (j *ShellJob) MakeTask(ctx domain.Context, _ *Env) (Task, error) {
	shell, err := engine.Render(j.spec.Shell, ctx)
	if err != nil {
		return nil, err
	}
	args, err := engine.RenderAll(j.spec.Args, ctx)
	if err != nil {
		return nil, err
	}
	dir, err := engine.Render(j.spec.WorkingDir, ctx)
	if err != nil {
		return nil, err
	}
	enc, err := engine.Render(j.spec.Encoding, ctx)
	if err != nil {
		return nil, err
	}

	return &ShellTask{
		Shell:      shell,
		Args:       args,
		WorkingDir: dir,
		Encoding:   enc,
	}, nil
}

// ShellTask — команда с отрендеренными аргументами.
type ShellTask struct {
	Shell      string
	Args       []string
	WorkingDir string
	Encoding   string
}

// Kind возвращает вид задачи.
func (t *ShellTask) Kind() domain.JobKind { return domain.JobShell }

// Describe возвращает командную строку с экранированными аргументами.
func (t *ShellTask) Describe() string {
	parts := make([]string, 0, len(t.Args)+1)
	parts = append(parts, t.Shell)
	for _, a := range t.Args {
		q, err := syntax.Quote(a, syntax.LangBash)
		if err != nil {
			q = fmt.Sprintf("%q", a)
		}
		parts = append(parts, q)
	}
	return strings.Join(parts, " ")
}

// ExitError — команда завершилась с ненулевым кодом.
type ExitError struct {
	Code   int
	Stderr string
}

// Error реализует интерфейс error.
func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return fmt.Sprintf("exit status %d: %s", e.Code, e.Stderr)
}

// Run запускает команду, декодирует stdout из Encoding и пишет его в лог.
func (t *ShellTask) Run(ctx context.Context) error {
	logger := telemetry.FromContext(ctx)

	if err := ensureDir(t.WorkingDir); err != nil {
		return t.fail(err)
	}

	cmd := exec.CommandContext(ctx, t.Shell, t.Args...)
	cmd.Dir = t.WorkingDir

	out, err := cmd.Output()
	stdout := decode(t.Encoding, out)
	if stdout != "" {
		logger.Info("shell output", "command", t.Describe(), "stdout", stdout)
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return t.fail(&ExitError{
				Code:   exitErr.ExitCode(),
				Stderr: strings.TrimSpace(decode(t.Encoding, exitErr.Stderr)),
			})
		}
		return t.fail(err)
	}
	return nil
}

func (t *ShellTask) fail(err error) error {
	return &TaskError{Kind: domain.JobShell, Target: t.Describe(), Err: err}
}
