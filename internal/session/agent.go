package session

import (
	"fmt"
	"strings"
)

// AgentKind is the closed set of agents a session can run.
type AgentKind string

const (
	AgentClaude AgentKind = "claude"
	AgentGemini AgentKind = "gemini"
	AgentCustom AgentKind = "custom"
)

// AgentKinds lists the known kinds in display order.
var AgentKinds = []AgentKind{AgentClaude, AgentGemini, AgentCustom}

// Roles lists the governance roles an operator can pick.
var Roles = []string{
	"Systems_Architect",
	"Backend_Engineer",
	"Frontend_Engineer",
	"DevOps_Engineer",
	"Overseer",
}

// ParseAgentKind maps a name to a known kind, case-insensitively.
func ParseAgentKind(name string) (AgentKind, error) {
	kind := AgentKind(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := profiles[kind]; !ok {
		return "", fmt.Errorf("unknown agent %q (want claude, gemini or custom)", name)
	}
	return kind, nil
}

// LaunchOptions tunes the derived command.
type LaunchOptions struct {
	// Command, when non-empty, replaces the profile entirely. It is split
	// on whitespace.
	Command         string
	SkipPermissions bool
	Yolo            bool
}

// Command is a derived process invocation.
type Command struct {
	Name  string
	Args  []string
	Color string
}

type profile struct {
	command string
	color   string
	args    func(role string, opts LaunchOptions) []string
}

var profiles = map[AgentKind]profile{
	AgentClaude: {
		command: "claude",
		color:   "#6B7FD7",
		args: func(role string, opts LaunchOptions) []string {
			var args []string
			if opts.SkipPermissions {
				args = append(args, "--dangerously-skip-permissions")
			}
			return append(args, "/hive-"+hiveSuffix(role))
		},
	},
	AgentGemini: {
		command: "gemini",
		color:   "#4CAF50",
		args: func(role string, opts LaunchOptions) []string {
			var args []string
			if opts.Yolo {
				args = append(args, "--yolo")
			}
			return append(args, "-i", "/summon "+strings.ToLower(role))
		},
	},
	AgentCustom: {
		command: "bash",
		color:   "#bc8cff",
	},
}

// hiveSuffix turns Backend_Engineer into backend and Systems_Architect
// into architect.
func hiveSuffix(role string) string {
	s := strings.ReplaceAll(role, "_Engineer", "")
	s = strings.ReplaceAll(s, "Systems_", "")
	return strings.ToLower(s)
}

// Launch derives the process to run for an agent in a role.
func Launch(kind AgentKind, role string, opts LaunchOptions) Command {
	color := Color(kind)
	if fields := strings.Fields(opts.Command); len(fields) > 0 {
		return Command{Name: fields[0], Args: fields[1:], Color: color}
	}
	p, ok := profiles[kind]
	if !ok {
		return Command{Name: "/bin/bash", Color: color}
	}
	cmd := Command{Name: p.command, Color: p.color}
	if p.args != nil {
		cmd.Args = p.args(role, opts)
	}
	return cmd
}

// Color returns the display color for kind; unknown kinds use the custom
// color.
func Color(kind AgentKind) string {
	if p, ok := profiles[kind]; ok {
		return p.color
	}
	return profiles[AgentCustom].color
}
