// Package help holds the evo command catalogue and renders it as terminal
// help and man pages.
package help

import "strings"

// Version is the evo release version, set at build time via -ldflags.
// Defaults to "dev" when built without version injection (e.g. `go run`).
var Version = "dev"

// Flag describes a command-line flag.
type Flag struct {
	Name string // e.g. "--csv" or "--limit <n>"
	Desc string
}

// Arg describes a positional argument.
type Arg struct {
	Name     string // e.g. "maxCommits"
	Desc     string
	Optional bool
}

// Command describes an evo subcommand (or the top-level binary when Name is "").
type Command struct {
	Name        string   // "check", "archives show", etc; "" for top-level
	Synopsis    string   // one-line description (lowercase, for --help header)
	Brief       string   // short description for usage table (capitalized)
	Usage       string   // full usage line, e.g. "evo force <maxCommits>"
	TableUsage  string   // shortened usage for the top-level table (if different from Usage)
	Args        []Arg
	Flags       []Flag
	Description string   // multi-line prose (stored verbatim)
	Examples    []string // one per line, without leading 2-space indent
	SeeAlso     []string // man page cross-refs, e.g. "evo(1)"
	Subs        []Command
}

// EnvVar is an environment variable evo reads.
type EnvVar struct {
	Name string
	Desc string
}

// Environment lists the variables shown in usage and evo(1).
var Environment = []EnvVar{
	{"GITHUB_TOKEN", "Commit search token (raises the rate limit)"},
	{"ANTHROPIC_API_KEY", "Generator key (name set by generator.api_key_env)"},
	{"EVO_INTERVAL", "Scheduler interval override, e.g. 30m"},
}

const (
	configPath = "~/.config/evolve/config.toml"
	statePath  = "~/.local/state/evolve"
)

// tableUsage returns TableUsage if set, otherwise Usage.
func (c Command) tableUsage() string {
	if c.TableUsage != "" {
		return c.TableUsage
	}
	return c.Usage
}

// ManName returns the man page name: "evo" for top-level, "evo-<name>" for subs.
// Spaces in Name are replaced with hyphens ("archives show" → "evo-archives-show").
func (c Command) ManName() string {
	if c.Name == "" {
		return "evo"
	}
	return "evo-" + strings.ReplaceAll(c.Name, " ", "-")
}

// TopLevel is the top-level evo command (used by FormatUsage).
var TopLevel = Command{
	Name:     "",
	Synopsis: "commit-driven character evolution",
}

var CmdCheck = Command{
	Name:     "check",
	Synopsis: "evolve the character from new commits",
	Brief:    "Run one evolution cycle",
	Usage:    "evo check",
	Description: `Fetches the tracked author's commits, folds every commit not yet in
the ledger through the description generator (oldest first), then
regenerates the sprite assets once with the final description. The
ledger is saved only after the assets are published; a failed publish
leaves it untouched so the same commits are retried next cycle.

Exits 1 when the commit source is unavailable, the publisher fails,
or the ledger cannot be saved. "no_commits" and "up_to_date" are
successful outcomes.`,
	SeeAlso: []string{"evo(1)", "evo-serve(1)", "evo-runs(1)"},
}

var CmdReset = Command{
	Name:     "reset",
	Synopsis: "return the character to its starting description",
	Brief:    "Reset the ledger to level 0",
	Usage:    "evo reset",
	Description: `Snapshots the current ledger into the archive, replaces it with the
canonical level 0 description, and republishes the assets. The
reset stands even when the publisher fails.`,
	SeeAlso: []string{"evo(1)", "evo-archives(1)", "evo-force(1)"},
}

var CmdForce = Command{
	Name:     "force",
	Synopsis: "rebuild the ledger from the oldest commits",
	Brief:    "Replay the oldest N commits from scratch",
	Usage:    "evo force <maxCommits>",
	Args: []Arg{
		{Name: "maxCommits", Desc: "Number of oldest commits to replay (must be > 0)"},
	},
	Description: `Discards the current history and replays the oldest maxCommits commits
from the canonical description. When fewer commits exist, all of them
are replayed. The previous ledger is archived before it is replaced;
a failed publish leaves it in place.`,
	Examples: []string{
		"evo force 10   Rebuild from the first ten commits",
	},
	SeeAlso: []string{"evo(1)", "evo-reset(1)", "evo-archives(1)"},
}

var CmdGenerate = Command{
	Name:       "generate",
	Synopsis:   "publish assets for a given description",
	Brief:      "Publish assets for a description",
	Usage:      "evo generate <description>",
	TableUsage: "evo generate <text>",
	Args: []Arg{
		{Name: "description", Desc: "Character description (quoted)"},
	},
	Description: `Runs the asset publisher once with the given description. The ledger
is not modified. ", facing right" is appended when missing.`,
	Examples: []string{
		`evo generate "a knight with a flaming sword"`,
	},
	SeeAlso: []string{"evo(1)", "evo-check(1)"},
}

var CmdServe = Command{
	Name:     "serve",
	Synopsis: "run the evolution scheduler",
	Brief:    "Run checks on an interval (foreground)",
	Usage:    "evo serve",
	Description: `Runs a check immediately, then every scheduler interval (default 1h,
EVO_INTERVAL overrides). Watches <state_dir>/triggers/ for files
dropped by "evo nudge" and runs the requested operation.

Stops cleanly on SIGINT or SIGTERM. Other evo commands may run while
serve is active; the ledger lock keeps writers from overlapping.`,
	SeeAlso: []string{"evo(1)", "evo-nudge(1)", "evo-check(1)"},
}

var CmdNudge = Command{
	Name:       "nudge",
	Synopsis:   "ask a running serve to run an operation",
	Brief:      "Queue an operation for evo serve",
	Usage:      "evo nudge <check | reset | force <n>>",
	TableUsage: "evo nudge <op>",
	Args: []Arg{
		{Name: "op", Desc: "check, reset, or force followed by a commit count"},
	},
	Description: `Writes a trigger file into <state_dir>/triggers/. A running
"evo serve" picks it up, removes it, and runs the operation. Triggers
written while serve is stopped run when it next starts.`,
	Examples: []string{
		"evo nudge check     Check now instead of waiting",
		"evo nudge force 5   Replay the oldest five commits",
	},
	SeeAlso: []string{"evo(1)", "evo-serve(1)"},
}

var CmdStatus = Command{
	Name:     "status",
	Synopsis: "validate config, ledger, and integrations",
	Brief:    "Check configuration and state",
	Usage:    "evo status",
	Description: `Runs diagnostic checks and prints a pass/warn/FAIL report:
  - Config file location
  - State directory and ledger validity, level, and digest
  - Commit source author and token
  - Generator provider and API key
  - Fallback table
  - Publisher command on PATH
  - Published copy targets
  - Scheduler interval
  - Ledger lock holder
  - Last recorded cycle
  - Archived snapshots

Exits 1 if any check reports FAIL.`,
	SeeAlso: []string{"evo(1)", "evo-init(1)"},
}

var CmdStats = Command{
	Name:     "stats",
	Synopsis: "show evolution statistics",
	Brief:    "Show evolution statistics",
	Usage:    "evo stats",
	Description: `Summarizes the ledger (level, generated vs. fallback descriptions,
commit cadence, monthly trend) and the cycle journal (runs per
outcome).`,
	SeeAlso: []string{"evo(1)", "evo-history(1)", "evo-runs(1)"},
}

var CmdHistory = Command{
	Name:     "history",
	Synopsis: "list evolution events",
	Brief:    "List evolution events",
	Usage:    "evo history [--csv]",
	Flags: []Flag{
		{Name: "--csv", Desc: "Write all event fields as CSV to stdout"},
	},
	Description: `Prints every ledger event oldest first: level, commit, date, whether
the description was generated or taken from the fallback table, and
the new description.`,
	Examples: []string{
		"evo history --csv > evolution.csv",
	},
	SeeAlso: []string{"evo(1)", "evo-stats(1)"},
}

var CmdRuns = Command{
	Name:     "runs",
	Synopsis: "list recent cycles",
	Brief:    "List recent cycles from the journal",
	Usage:    "evo runs [--limit <n>]",
	Flags: []Flag{
		{Name: "--limit <n>", Desc: "Number of runs to show (default: 20)"},
	},
	Description: `Prints the newest cycles recorded in <state_dir>/journal.db with
their operation, outcome, new events, fallbacks, resulting level,
duration, and error.`,
	SeeAlso: []string{"evo(1)", "evo-stats(1)"},
}

var CmdArchives = Command{
	Name:       "archives",
	Synopsis:   "list ledger snapshots",
	Brief:      "List ledger snapshots",
	Usage:      "evo archives [show <name>]",
	TableUsage: "evo archives [show ...]",
	Description: `Lists the snapshots taken before reset and forced replays, newest
first. Snapshots are zstd-compressed unless archive.compress is false;
the newest archive.keep are retained.`,
	SeeAlso: []string{"evo(1)", "evo-archives-show(1)", "evo-reset(1)"},
	Subs:    []Command{CmdArchivesShow},
}

var CmdArchivesShow = Command{
	Name:     "archives show",
	Synopsis: "print a ledger snapshot",
	Brief:    "Print a ledger snapshot",
	Usage:    "evo archives show <name>",
	Args: []Arg{
		{Name: "name", Desc: "Snapshot file name as listed by evo archives"},
	},
	Description: `Decompresses and prints the snapshot's ledger JSON. Redirect it to
the ledger path to restore.`,
	SeeAlso: []string{"evo(1)", "evo-archives(1)"},
}

var CmdInit = Command{
	Name:       "init",
	Synopsis:   "write a default config file",
	Brief:      "Write default config",
	Usage:      "evo init [--author <login>] [--state <dir>]",
	TableUsage: "evo init [--author ...]",
	Flags: []Flag{
		{Name: "--author <login>", Desc: "GitHub login whose commits drive evolution"},
		{Name: "--state <dir>", Desc: "State directory (default: ~/.local/state/evolve)"},
	},
	Description: `Writes ~/.config/evolve/config.toml (or $XDG_CONFIG_HOME/evolve) with
defaults. An existing config is left untouched.`,
	Examples: []string{
		"evo init --author potnoodledev",
	},
	SeeAlso: []string{"evo(1)", "evo-status(1)"},
}

var CmdVersion = Command{
	Name:     "version",
	Synopsis: "print version",
	Brief:    "Print version",
	Usage:    "evo version",
	SeeAlso:  []string{"evo(1)"},
}

// Subcommands is the ordered list of all subcommands.
var Subcommands = []Command{
	CmdCheck,
	CmdReset,
	CmdForce,
	CmdGenerate,
	CmdServe,
	CmdNudge,
	CmdStatus,
	CmdStats,
	CmdHistory,
	CmdRuns,
	CmdArchives,
	CmdInit,
	CmdVersion,
}

// All returns every subcommand with nested ones following their parent,
// one entry per man page.
func All() []Command {
	var out []Command
	var walk func(cs []Command)
	walk = func(cs []Command) {
		for _, c := range cs {
			out = append(out, c)
			walk(c.Subs)
		}
	}
	walk(Subcommands)
	return out
}

// Lookup returns the subcommand named name, e.g. "archives show".
func Lookup(name string) (Command, bool) {
	for _, c := range All() {
		if c.Name == name {
			return c, true
		}
	}
	return Command{}, false
}

// subUsage is a nested command's usage relative to its parent:
// "evo archives show <name>" under archives is "show <name>".
func (c Command) subUsage(parent Command) string {
	return strings.TrimPrefix(c.Usage, "evo "+parent.Name+" ")
}
