package effector

import (
	"context"
	"strings"
	"testing"

	shellquote "github.com/kballard/go-shellquote"
)

func TestQuoteRoundTripsSpaces(t *testing.T) {
	got := Quote([]string{"echo", "hello world"})
	words, err := shellquote.Split(got)
	if err != nil {
		t.Fatal(err)
	}
	if len(words) != 2 || words[1] != "hello world" {
		t.Fatalf("Split(%q) = %v", got, words)
	}
}

func TestQuoteEmpty(t *testing.T) {
	if got := Quote(nil); got != "" {
		t.Errorf("Quote(nil) = %q, want empty", got)
	}
}

func TestQuoteSingleArg(t *testing.T) {
	if got := Quote([]string{"ls"}); got != "ls" {
		t.Errorf("Quote([ls]) = %q", got)
	}
}

func TestRunExecutesAndCapturesOutput(t *testing.T) {
	e := New("test")
	out, err := e.Run(context.Background(), "echo", "hello")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "hello") {
		t.Errorf("output = %q, want to contain hello", out)
	}
}

func TestRunDryRunDoesNotExecute(t *testing.T) {
	e := New("test").WithDryRun(true)
	out, err := e.Run(context.Background(), "false")
	if err != nil {
		t.Fatalf("dry-run should never fail: %v", err)
	}
	if out != "" {
		t.Errorf("dry-run output = %q, want empty", out)
	}
}

func TestRunPropagatesCommandFailure(t *testing.T) {
	e := New("test")
	_, err := e.Run(context.Background(), "false")
	if err == nil {
		t.Fatal("expected error from a command that exits non-zero")
	}
}

func TestRunEmptyArgvIsError(t *testing.T) {
	e := New("test")
	if _, err := e.Run(context.Background()); err == nil {
		t.Fatal("expected error for empty argv")
	}
}

func TestRunShellDryRun(t *testing.T) {
	e := New("test").WithDryRun(true)
	out, err := e.RunShell(context.Background(), "exit 1")
	if err != nil {
		t.Fatalf("dry-run shell should never fail: %v", err)
	}
	if out != "" {
		t.Errorf("dry-run output = %q, want empty", out)
	}
}
