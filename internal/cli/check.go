package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aretw0/weave/internal/compiler"
	"github.com/aretw0/weave/internal/presentation/graph"
	"github.com/aretw0/weave/internal/validator"
	"github.com/aretw0/weave/pkg/domain"
)

// Check parses and lints a program file against the host's channels.
// It returns an error for syntax errors, or for any lint issue when strict is set.
func Check(app *App, path string, strict bool, out io.Writer) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read program: %w", err)
	}
	src := string(data)

	prog, err := compiler.NewParser(compiler.WithMaxDepth(app.Config.Interpreter.MaxDepth)).Parse(src)
	if err != nil {
		return fmt.Errorf("%s", domain.FormatSyntaxError(err, src))
	}

	issues := validator.Lint(prog, app.Environment())
	for _, is := range issues {
		fmt.Fprintf(out, "%s:%s\n", path, is)
	}
	if strict && len(issues) > 0 {
		return fmt.Errorf("found %d issues", len(issues))
	}
	fmt.Fprintf(out, "%s: %d statements, loop depth %d\n", path, len(prog.Statements), prog.Depth)
	return nil
}

// Environment describes the host for the linter.
func (a *App) Environment() validator.Environment {
	env := validator.Environment{
		Sensors:   a.Host.Registry.Sensors(),
		Actuators: a.Host.Registry.Actuators(),
	}
	for k := range a.Config.Session.Model {
		env.Model = append(env.Model, k)
	}
	// With no channels configured the host is unknown; skip channel checks.
	if len(env.Sensors) == 0 {
		env.Sensors = nil
	}
	if len(env.Actuators) == 0 {
		env.Actuators = nil
	}
	return env
}

// Graph prints the Mermaid flowchart of a program. With a session ID, the stored
// state of that session is overlaid.
func Graph(ctx context.Context, app *App, path, sessionID string, out io.Writer) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read program: %w", err)
	}
	prog, err := compiler.Parse(string(data))
	if err != nil {
		return fmt.Errorf("%s", domain.FormatSyntaxError(err, string(data)))
	}

	var st *domain.State
	if sessionID != "" {
		st, err = app.Manager.Load(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("load session %q: %w", sessionID, err)
		}
	}
	fmt.Fprint(out, graph.GenerateMermaid(prog, st))
	return nil
}
