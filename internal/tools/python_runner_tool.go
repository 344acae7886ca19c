package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"aitwin/internal/e2b"
)

const pythonTimeoutSeconds = 300

var codeFencePattern = regexp.MustCompile("(?s)^```[a-zA-Z0-9_+-]*[ \\t]*\\n(.*?)\\n?```$")

// CodeRunner executes Python in a sandbox
type CodeRunner interface {
	Execute(ctx context.Context, req e2b.ExecuteRequest) (*e2b.ExecuteResponse, error)
}

// NewPythonRunnerTool creates the run_python tool backed by the sandbox service
func NewPythonRunnerTool(runner CodeRunner) *Tool {
	return &Tool{
		Name:        "run_python",
		DisplayName: "Python Code Runner",
		Description: `Execute Python code in an isolated sandbox and return stdout. Optionally install pip packages first. Max 5 minutes execution time.

USE THIS TOOL FOR:
- Calculations, data processing and quick scripts
- Verifying code before presenting it

The sandbox has no access to local files and nothing persists between calls.`,
		Category: "computation",
		Keywords: []string{"python", "code", "execute", "run", "script", "compute", "calculate"},
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"code": map[string]interface{}{
					"type":        "string",
					"description": "Python code to execute",
				},
				"dependencies": map[string]interface{}{
					"type":        "array",
					"description": "Pip packages to install before execution (e.g., ['numpy', 'requests'])",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
			},
			"required": []string{"code"},
		},
		Execute: func(ctx context.Context, args map[string]interface{}) (string, error) {
			return executePythonRunner(ctx, runner, args)
		},
	}
}

func executePythonRunner(ctx context.Context, runner CodeRunner, args map[string]interface{}) (string, error) {
	code, ok := args["code"].(string)
	if !ok || strings.TrimSpace(code) == "" {
		return "", fmt.Errorf("code is required")
	}
	code = stripCodeFences(code)

	var dependencies []string
	if depsRaw, ok := args["dependencies"].([]interface{}); ok {
		for _, dep := range depsRaw {
			if depStr, ok := dep.(string); ok && depStr != "" {
				dependencies = append(dependencies, depStr)
			}
		}
	}

	result, err := runner.Execute(ctx, e2b.ExecuteRequest{
		Code:         code,
		Timeout:      pythonTimeoutSeconds,
		Dependencies: dependencies,
	})
	if err != nil {
		return "", fmt.Errorf("failed to execute code: %w", err)
	}

	if !result.Success {
		errorMsg := "execution failed"
		if result.Error != nil {
			errorMsg = *result.Error
		}
		if result.Stderr != "" {
			errorMsg += "\nStderr: " + result.Stderr
		}
		return "", fmt.Errorf("%s", errorMsg)
	}

	response := map[string]interface{}{
		"success": true,
		"stdout":  result.Stdout,
	}
	if result.Stderr != "" {
		response["stderr"] = result.Stderr
	}
	if result.InstallOutput != "" {
		response["install_output"] = result.InstallOutput
	}
	if result.ExecutionTime != nil {
		response["execution_time"] = *result.ExecutionTime
	}

	out, err := json.MarshalIndent(response, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal response: %w", err)
	}
	return string(out), nil
}

// stripCodeFences removes a surrounding markdown code fence, if any
func stripCodeFences(code string) string {
	trimmed := strings.TrimSpace(code)
	if m := codeFencePattern.FindStringSubmatch(trimmed); m != nil {
		return m[1]
	}
	return trimmed
}
