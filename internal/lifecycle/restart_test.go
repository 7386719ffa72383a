package lifecycle

import (
	"context"

	"github.com/nerrad567/automata-agent/internal/process"
)

type mockRunner struct {
	argv []string
	err  error
}

func (m *mockRunner) Run(_ context.Context, argv ...string) (process.Result, error) {
	m.argv = argv
	if m.err != nil {
		return process.Result{ExitCode: 1, Stderr: "failed"}, m.err
	}
	return process.Result{}, nil
}
