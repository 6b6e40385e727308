package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRun(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		code   int
		stdout string
		stderr string
	}{
		{
			name:   "canonical form",
			args:   []string{"printer   AND status:open"},
			stdout: "printer status:open\n",
		},
		{
			name:   "sql with actor",
			args:   []string{"-sql", "-user", "7", "assignee:@me"},
			stdout: "assignee:@me\nCOALESCE(t.assignee_id = ANY($1), FALSE)\n$1 = {7}\n",
		},
		{
			name:   "syntax error",
			args:   []string{"(status:open"},
			code:   2,
			stderr: "  (status:open\n  " + strings.Repeat(" ", 12) + "^\n",
		},
		{
			name:   "unknown qualifier",
			args:   []string{"-sql", "printer\nbogus:1"},
			code:   2,
			stderr: "  bogus:1\n  ^\n",
		},
		{
			name: "missing query",
			args: nil,
			code: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := run(tt.args, &stdout, &stderr)
			if code != tt.code {
				t.Fatalf("exit code = %d, want %d (stderr: %s)", code, tt.code, stderr.String())
			}
			if tt.stdout != "" && stdout.String() != tt.stdout {
				t.Errorf("stdout = %q, want %q", stdout.String(), tt.stdout)
			}
			if tt.stderr != "" && !strings.HasSuffix(stderr.String(), tt.stderr) {
				t.Errorf("stderr = %q, want suffix %q", stderr.String(), tt.stderr)
			}
		})
	}
}

func TestRunTokens(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"-tokens", "#42 or vpn"}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code = %d: %s", code, stderr.String())
	}
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	if len(lines) != 5 {
		t.Fatalf("got %d lines:\n%s", len(lines), stdout.String())
	}
	if !strings.HasPrefix(lines[0], "1:1") || !strings.Contains(lines[0], "#42") {
		t.Errorf("unexpected first token line %q", lines[0])
	}
	if lines[4] != "id:42 or vpn" {
		t.Errorf("canonical = %q", lines[4])
	}
}
