package main

import (
	"errors"
	"testing"

	"github.com/suykerbuyk/evolve/internal/engine"
	"github.com/suykerbuyk/evolve/internal/scheduler"
)

func TestFinish_ExitCode(t *testing.T) {
	if code := finish(engine.Report{Op: engine.OpCheck, Outcome: engine.OutcomeUpToDate}, nil); code != 0 {
		t.Errorf("success code = %d, want 0", code)
	}
	rep := engine.Report{Op: engine.OpCheck, Outcome: engine.OutcomePublishFailed}
	if code := finish(rep, errors.New("exit status 1")); code != 1 {
		t.Errorf("failure code = %d, want 1", code)
	}
}

func TestParseNudge(t *testing.T) {
	tests := []struct {
		args    []string
		want    scheduler.Trigger
		wantErr bool
	}{
		{args: []string{"check"}, want: scheduler.Trigger{Op: "check"}},
		{args: []string{"reset"}, want: scheduler.Trigger{Op: "reset"}},
		{args: []string{"force", "4"}, want: scheduler.Trigger{Op: "force", Count: 4}},
		{args: nil, wantErr: true},
		{args: []string{"force"}, wantErr: true},
		{args: []string{"force", "0"}, wantErr: true},
		{args: []string{"check", "extra"}, wantErr: true},
		{args: []string{"explode"}, wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseNudge(tt.args)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseNudge(%v): expected error", tt.args)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseNudge(%v): %v", tt.args, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseNudge(%v) = %+v, want %+v", tt.args, got, tt.want)
		}
	}
}
