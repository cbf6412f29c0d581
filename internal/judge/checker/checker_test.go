package checker

import (
	"context"
	"encoding/json"
	"testing"

	"gavel/internal/judge/result"
	"gavel/internal/judge/runner"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"crlf", "1 2\r\n3 4\r\n", "1 2\n3 4"},
		{"trailing spaces", "hello   \nworld\t\n", "hello\nworld"},
		{"trailing blank lines", "42\n\n\n", "42"},
		{"empty", "", ""},
		{"interior whitespace kept", "a  b\nc", "a  b\nc"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Normalize(tc.in); got != tc.want {
				t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestDecodeEscapes(t *testing.T) {
	if got := DecodeEscapes(`1 2\n3 4`); got != "1 2\n3 4" {
		t.Errorf("got %q", got)
	}
	if got := DecodeEscapes(`a\tb\r`); got != "a\tb\r" {
		t.Errorf("got %q", got)
	}
	// Real newlines mean the text is already multi-line; keep literals.
	in := "first\nsecond\\n"
	if got := DecodeEscapes(in); got != in {
		t.Errorf("got %q, want unchanged", got)
	}
}

func TestParseVerdict(t *testing.T) {
	cases := []struct {
		name     string
		raw      string
		accepted bool
		ok       bool
	}{
		{"json true", "true", true, true},
		{"json false", "false", false, true},
		{"json string", `"Accepted"`, true, true},
		{"json object status", `{"status":"AC"}`, true, true},
		{"json object result", `{"result":"wrong answer"}`, false, true},
		{"json object verdict bool", `{"verdict":false}`, false, true},
		{"json nested", `{"status":{"verdict":"ok"}}`, true, true},
		{"json double-encoded string", `{"status":"\"Accepted\""}`, true, true},
		{"json embedded document", `{"result":"{\"verdict\":\"ac\"}"}`, true, true},
		{"word ok", "ok", true, true},
		{"word passed", "Passed\n", true, true},
		{"word wa", "WA", false, true},
		{"word failed", "failed", false, true},
		{"phrase", "wrong answer", false, true},
		{"garbage", "the answer differs at token 3", false, false},
		{"empty", "   ", false, false},
		{"json unknown object", `{"message":"hi"}`, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			accepted, ok := ParseVerdict(tc.raw)
			if accepted != tc.accepted || ok != tc.ok {
				t.Errorf("ParseVerdict(%q) = (%v, %v), want (%v, %v)", tc.raw, accepted, ok, tc.accepted, tc.ok)
			}
		})
	}
}

func TestParseVerdictDepthLimit(t *testing.T) {
	payload := "ac"
	for i := 0; i < 6; i++ {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		payload = string(encoded)
	}
	if accepted, ok := ParseVerdict(payload); ok {
		t.Errorf("ParseVerdict(deeply nested) = (%v, %v), want unreadable", accepted, ok)
	}
}

func TestTextVerifier(t *testing.T) {
	v := TextVerifier{}
	j := v.Verify(context.Background(), Case{Expected: "1 2\n3 4\n", Actual: "1 2\r\n3 4"})
	if j.Status != result.StatusAccepted {
		t.Errorf("status = %s, want Accepted", j.Status)
	}
	j = v.Verify(context.Background(), Case{Expected: "42", Actual: "41"})
	if j.Status != result.StatusWrongAnswer {
		t.Errorf("status = %s, want Wrong Answer", j.Status)
	}
}

// scriptedRunner returns canned outcomes and records the specs it saw.
type scriptedRunner struct {
	outcome runner.Outcome
	err     error
	specs   []runner.Spec
}

func (s *scriptedRunner) Run(_ context.Context, spec runner.Spec) (runner.Outcome, error) {
	s.specs = append(s.specs, spec)
	return s.outcome, s.err
}

func TestCheckerVerifierPayloadAndVerdict(t *testing.T) {
	run := &scriptedRunner{outcome: runner.Outcome{Stdout: `{"status":"accepted"}`}}
	v := NewCheckerVerifier(run, "/work/checker", nil, "/work", 5000)

	j := v.Verify(context.Background(), Case{Input: "1 2", Expected: "3", Actual: "3"})
	if j.Status != result.StatusAccepted {
		t.Fatalf("status = %s, want Accepted", j.Status)
	}
	if len(run.specs) != 1 {
		t.Fatalf("checker invoked %d times", len(run.specs))
	}
	spec := run.specs[0]
	if spec.TimeoutMs != 2000 {
		t.Errorf("timeout = %d, want capped at 2000", spec.TimeoutMs)
	}
	var payload checkerPayload
	if err := json.Unmarshal([]byte(spec.Stdin), &payload); err != nil {
		t.Fatalf("stdin is not JSON: %v", err)
	}
	if payload.Input != "1 2" || payload.ExpectedOutput != "3" || payload.Output != "3" {
		t.Errorf("payload = %+v", payload)
	}
}

func TestCheckerVerifierUsesTighterProblemLimit(t *testing.T) {
	run := &scriptedRunner{outcome: runner.Outcome{Stdout: "ok"}}
	v := NewCheckerVerifier(run, "/work/checker", nil, "/work", 500)
	v.Verify(context.Background(), Case{})
	if got := run.specs[0].TimeoutMs; got != 500 {
		t.Errorf("timeout = %d, want 500", got)
	}
}

func TestCheckerVerifierFaultsAreSystemErrors(t *testing.T) {
	cases := []struct {
		name    string
		outcome runner.Outcome
	}{
		{"timeout", runner.Outcome{TimedOut: true}},
		{"crash", runner.Outcome{ExitCode: 1, Stderr: "segfault"}},
		{"unreadable verdict", runner.Outcome{Stdout: "maybe?"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := NewCheckerVerifier(&scriptedRunner{outcome: tc.outcome}, "/work/checker", nil, "/work", 0)
			j := v.Verify(context.Background(), Case{})
			if j.Status != result.StatusSystemError {
				t.Errorf("status = %s, want System Error", j.Status)
			}
		})
	}
}
