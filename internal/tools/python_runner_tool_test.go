package tools

import (
	"context"
	"errors"
	"strings"
	"testing"

	"aitwin/internal/e2b"
)

type fakeRunner struct {
	got  e2b.ExecuteRequest
	resp *e2b.ExecuteResponse
	err  error
}

func (f *fakeRunner) Execute(ctx context.Context, req e2b.ExecuteRequest) (*e2b.ExecuteResponse, error) {
	f.got = req
	return f.resp, f.err
}

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "print(1)", "print(1)"},
		{"python fence", "```python\nprint(1)\n```", "print(1)"},
		{"bare fence", "```\nx = 2\nprint(x)\n```", "x = 2\nprint(x)"},
		{"keeps indentation", "```py\n    print(1)\n```", "    print(1)"},
		{"surrounding space", "  \n```python\nprint(1)\n```\n ", "print(1)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripCodeFences(tt.in); got != tt.want {
				t.Errorf("stripCodeFences(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestPythonRunner_Success(t *testing.T) {
	runner := &fakeRunner{resp: &e2b.ExecuteResponse{Success: true, Stdout: "2\n"}}
	tool := NewPythonRunnerTool(runner)

	result, err := tool.Execute(context.Background(), map[string]interface{}{
		"code":         "```python\nprint(1+1)\n```",
		"dependencies": []interface{}{"numpy", 42},
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if runner.got.Code != "print(1+1)" {
		t.Errorf("Expected fences stripped, got %q", runner.got.Code)
	}
	if len(runner.got.Dependencies) != 1 || runner.got.Dependencies[0] != "numpy" {
		t.Errorf("Expected only string dependencies, got %v", runner.got.Dependencies)
	}
	if runner.got.Timeout != pythonTimeoutSeconds {
		t.Errorf("Expected timeout %d, got %d", pythonTimeoutSeconds, runner.got.Timeout)
	}
	if !strings.Contains(result, `"stdout": "2\n"`) {
		t.Errorf("Expected stdout in result, got %s", result)
	}
}

func TestPythonRunner_ExecutionFailure(t *testing.T) {
	msg := "NameError: name 'x' is not defined"
	runner := &fakeRunner{resp: &e2b.ExecuteResponse{Success: false, Error: &msg, Stderr: "traceback"}}

	_, err := NewPythonRunnerTool(runner).Execute(context.Background(), map[string]interface{}{"code": "print(x)"})
	if err == nil || !strings.Contains(err.Error(), "NameError") || !strings.Contains(err.Error(), "Stderr: traceback") {
		t.Errorf("Expected execution error with stderr, got %v", err)
	}
}

func TestPythonRunner_SandboxUnavailable(t *testing.T) {
	runner := &fakeRunner{err: errors.New("connection refused")}

	_, err := NewPythonRunnerTool(runner).Execute(context.Background(), map[string]interface{}{"code": "print(1)"})
	if err == nil || !strings.Contains(err.Error(), "failed to execute code") {
		t.Errorf("Expected wrapped sandbox error, got %v", err)
	}
}

func TestPythonRunner_RequiresCode(t *testing.T) {
	if _, err := NewPythonRunnerTool(&fakeRunner{}).Execute(context.Background(), map[string]interface{}{}); err == nil {
		t.Error("Expected error when code is missing")
	}
}
