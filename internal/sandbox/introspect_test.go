package sandbox

import (
	"context"
	"errors"
	"testing"
)

func TestListVariables(t *testing.T) {
	output := "noise before\n" + introspectSentinel + `["df", "effect"]` + introspectSentinel + "\nnoise after\n"
	mgr := &fakeManager{execOutcome: ExecOutcome{Output: output, ExitCode: 0}}
	sess := runningSession(t, mgr, ModePersistent)

	names, err := ListVariables(context.Background(), NewEngine(mgr), sess)
	if err != nil {
		t.Fatalf("ListVariables() error = %v", err)
	}
	if len(names) != 2 || names[0] != "df" || names[1] != "effect" {
		t.Errorf("names = %v", names)
	}
}

func TestListVariablesRequiresPersistentSession(t *testing.T) {
	mgr := &fakeManager{}
	sess := runningSession(t, mgr, ModeEphemeral)

	_, err := ListVariables(context.Background(), NewEngine(mgr), sess)
	var terr *TransferError
	if !errors.As(err, &terr) {
		t.Fatalf("ListVariables() error = %v, want *TransferError", err)
	}
}

func TestGetVariable(t *testing.T) {
	output := introspectSentinel + `{"name": "effect", "value": "2.5"}` + introspectSentinel + "\n"
	mgr := &fakeManager{execOutcome: ExecOutcome{Output: output, ExitCode: 0}}
	sess := runningSession(t, mgr, ModePersistent)

	value, err := GetVariable(context.Background(), NewEngine(mgr), sess, "effect")
	if err != nil {
		t.Fatalf("GetVariable() error = %v", err)
	}
	if value != "2.5" {
		t.Errorf("value = %q, want 2.5", value)
	}
}

func TestGetVariableMissingName(t *testing.T) {
	output := introspectSentinel + `{"name": "absent", "value": "null"}` + introspectSentinel
	mgr := &fakeManager{execOutcome: ExecOutcome{Output: output, ExitCode: 0}}
	sess := runningSession(t, mgr, ModePersistent)

	value, err := GetVariable(context.Background(), NewEngine(mgr), sess, "absent")
	if err != nil {
		t.Fatalf("GetVariable() error = %v", err)
	}
	if value != "null" {
		t.Errorf("value = %q, want null", value)
	}
}

func TestSentinelPayload(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		want    string
		wantErr bool
	}{
		{
			name:   "payload between markers",
			output: "junk" + introspectSentinel + "[1]" + introspectSentinel + "junk",
			want:   "[1]",
		},
		{
			name:    "missing opening marker",
			output:  "no markers here",
			wantErr: true,
		},
		{
			name:    "unclosed marker",
			output:  introspectSentinel + "[1]",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sentinelPayload(tt.output)
			if (err != nil) != tt.wantErr {
				t.Fatalf("sentinelPayload() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("payload = %q, want %q", got, tt.want)
			}
		})
	}
}
