package session

import (
	"reflect"
	"testing"
	"time"
)

func TestLaunch(t *testing.T) {
	tests := []struct {
		name string
		kind AgentKind
		role string
		opts LaunchOptions
		want Command
	}{
		{
			name: "claude backend",
			kind: AgentClaude,
			role: "Backend_Engineer",
			want: Command{Name: "claude", Args: []string{"/hive-backend"}, Color: "#6B7FD7"},
		},
		{
			name: "claude architect skipping permissions",
			kind: AgentClaude,
			role: "Systems_Architect",
			opts: LaunchOptions{SkipPermissions: true},
			want: Command{Name: "claude", Args: []string{"--dangerously-skip-permissions", "/hive-architect"}, Color: "#6B7FD7"},
		},
		{
			name: "claude overseer",
			kind: AgentClaude,
			role: "Overseer",
			want: Command{Name: "claude", Args: []string{"/hive-overseer"}, Color: "#6B7FD7"},
		},
		{
			name: "gemini devops",
			kind: AgentGemini,
			role: "DevOps_Engineer",
			want: Command{Name: "gemini", Args: []string{"-i", "/summon devops_engineer"}, Color: "#4CAF50"},
		},
		{
			name: "gemini yolo",
			kind: AgentGemini,
			role: "Frontend_Engineer",
			opts: LaunchOptions{Yolo: true},
			want: Command{Name: "gemini", Args: []string{"--yolo", "-i", "/summon frontend_engineer"}, Color: "#4CAF50"},
		},
		{
			name: "yolo ignored for claude",
			kind: AgentClaude,
			role: "Backend_Engineer",
			opts: LaunchOptions{Yolo: true},
			want: Command{Name: "claude", Args: []string{"/hive-backend"}, Color: "#6B7FD7"},
		},
		{
			name: "custom",
			kind: AgentCustom,
			role: "Overseer",
			want: Command{Name: "bash", Color: "#bc8cff"},
		},
		{
			name: "unknown kind",
			kind: AgentKind("cursor"),
			role: "Overseer",
			want: Command{Name: "/bin/bash", Color: "#bc8cff"},
		},
		{
			name: "command override wins",
			kind: AgentClaude,
			role: "Backend_Engineer",
			opts: LaunchOptions{Command: "  aider --model  sonnet ", SkipPermissions: true},
			want: Command{Name: "aider", Args: []string{"--model", "sonnet"}, Color: "#6B7FD7"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Launch(tt.kind, tt.role, tt.opts)
			if got.Name != tt.want.Name || got.Color != tt.want.Color {
				t.Errorf("Launch = %+v, want %+v", got, tt.want)
			}
			if len(got.Args) != 0 || len(tt.want.Args) != 0 {
				if !reflect.DeepEqual(got.Args, tt.want.Args) {
					t.Errorf("Args = %q, want %q", got.Args, tt.want.Args)
				}
			}
		})
	}
}

func TestParseAgentKind(t *testing.T) {
	for _, name := range []string{"claude", "Gemini", " CUSTOM "} {
		if _, err := ParseAgentKind(name); err != nil {
			t.Errorf("ParseAgentKind(%q): %v", name, err)
		}
	}
	if _, err := ParseAgentKind("cursor"); err == nil {
		t.Error("ParseAgentKind(cursor) succeeded, want error")
	}
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0m"},
		{59 * time.Second, "0m"},
		{42 * time.Minute, "42m"},
		{time.Hour, "1h 0m"},
		{3*time.Hour + 7*time.Minute + 30*time.Second, "3h 7m"},
		{-time.Minute, "0m"},
	}
	for _, tt := range tests {
		if got := FormatUptime(tt.d); got != tt.want {
			t.Errorf("FormatUptime(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
