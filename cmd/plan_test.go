package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"capturehub/internal/actions"
)

func TestWritePlanYAMLKeepsFixedOrder(t *testing.T) {
	var out bytes.Buffer
	opts := actions.Options{
		TestOutput:     "results",
		RaiseOnFailure: true,
		Tests:          []string{"all"},
		Port:           4224,
		Reset:          true,
	}
	if err := writePlan(&out, opts, "yaml"); err != nil {
		t.Fatalf("writePlan: %v", err)
	}
	text := out.String()
	order := []string{"kind: reset", "kind: bind-ports", "kind: run-tests", "kind: raise-on-failure", "kind: print-results"}
	last := -1
	for _, token := range order {
		idx := strings.Index(text, token)
		if idx < 0 {
			t.Fatalf("expected %q in plan\n%s", token, text)
		}
		if idx < last {
			t.Fatalf("expected %q after previous action\n%s", token, text)
		}
		last = idx
	}
	if !strings.Contains(text, "destination: results") {
		t.Fatalf("expected print destination in plan\n%s", text)
	}
}

func TestWritePlanDropsBlankEntries(t *testing.T) {
	var out bytes.Buffer
	opts := actions.Options{Tests: []string{" ", ""}, Arguments: []string{"", "echo"}}
	if err := writePlan(&out, opts, "json"); err != nil {
		t.Fatalf("writePlan: %v", err)
	}
	var list []actions.Action
	if err := json.Unmarshal(out.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 1 || list[0].Kind != actions.KindRunCommands || len(list[0].Commands) != 1 || list[0].Commands[0] != "echo" {
		t.Fatalf("expected only the non-blank command, got %+v", list)
	}
}

func TestWritePlanErrors(t *testing.T) {
	var out bytes.Buffer
	if err := writePlan(&out, actions.Options{Port: 80, SSLPort: 80}, "yaml"); !errors.Is(err, actions.ErrMisconfigured) {
		t.Fatalf("expected misconfiguration error, got %v", err)
	}
	if err := writePlan(&out, actions.Options{}, "xml"); err == nil {
		t.Fatal("expected unknown format error")
	}
}

func TestPlanCommandUsesFlagsAndArgs(t *testing.T) {
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs([]string{"plan", "--tests=a.js,b.js", "--port=0", "--raise-on-failure", "-o", "json", "echo done"})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})

	if err := Execute(); err != nil {
		t.Fatalf("execute: %v (stderr %s)", err, errOut.String())
	}
	var list []actions.Action
	if err := json.Unmarshal(out.Bytes(), &list); err != nil {
		t.Fatalf("decode %q: %v", out.String(), err)
	}
	var kinds []string
	for _, a := range list {
		kinds = append(kinds, string(a.Kind))
	}
	if got := strings.Join(kinds, ","); got != "run-tests,run-commands,raise-on-failure" {
		t.Fatalf("unexpected plan %s", got)
	}
	if list[1].Commands[0] != "echo done" {
		t.Fatalf("expected positional command, got %v", list[1].Commands)
	}
}

func TestNewLoggerRejectsUnknownSettings(t *testing.T) {
	var buf bytes.Buffer
	if _, err := newLogger(&buf, "loud", "text"); err == nil {
		t.Fatal("expected invalid level error")
	}
	if _, err := newLogger(&buf, "info", "xml"); err == nil {
		t.Fatal("expected invalid format error")
	}
	logger, err := newLogger(&buf, "debug", "json")
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	logger.Debug("hello", "k", "v")
	if !strings.Contains(buf.String(), `"msg":"hello"`) {
		t.Fatalf("expected json debug line, got %q", buf.String())
	}
}
