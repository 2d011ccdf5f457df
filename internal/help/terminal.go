package help

import (
	"fmt"
	"strings"
)

// row is one aligned line of a two-column listing.
type row struct{ left, right string }

// width returns the widest left column in rows.
func width(rows ...[]row) int {
	w := 0
	for _, rs := range rows {
		for _, r := range rs {
			w = max(w, len(r.left))
		}
	}
	return w
}

// block renders a titled listing with the right column starting three
// spaces past the widest left entry, or at col when that is larger.
func block(title string, rows []row, col int) string {
	var b strings.Builder
	b.WriteString(title + ":")
	for _, r := range rows {
		fmt.Fprintf(&b, "\n  %-*s%s", col, r.left, r.right)
	}
	return b.String()
}

// FormatTerminal renders a subcommand's --help text.
func FormatTerminal(c Command) string {
	var args, flags, subs []row
	for _, a := range c.Args {
		args = append(args, row{a.Name, a.Desc})
	}
	for _, f := range c.Flags {
		flags = append(flags, row{f.Name, f.Desc})
	}
	for _, s := range c.Subs {
		subs = append(subs, row{s.subUsage(c), s.Brief})
	}

	// Args and flags share a column, at least 11 wide when both appear.
	col := width(args, flags) + 3
	if len(args) > 0 && len(flags) > 0 {
		col = max(col, 11)
	}

	sections := []string{
		fmt.Sprintf("evo %s \u2014 %s", c.Name, c.Synopsis),
		"Usage: " + c.Usage,
	}
	if len(args) > 0 {
		sections = append(sections, block("Arguments", args, col))
	}
	if len(flags) > 0 {
		sections = append(sections, block("Flags", flags, col))
	}
	if c.Description != "" {
		sections = append(sections, c.Description)
	}
	if len(subs) > 0 {
		sections = append(sections, block("Subcommands", subs, width(subs)+3))
	}
	if len(c.Examples) > 0 {
		sections = append(sections, "Examples:\n  "+strings.Join(c.Examples, "\n  "))
	}
	return strings.Join(sections, "\n\n") + "\n"
}

// FormatUsage renders the top-level usage text for evo help.
func FormatUsage(top Command, subs []Command) string {
	cmds := make([]row, 0, len(subs)+1)
	for _, s := range subs {
		cmds = append(cmds, row{s.tableUsage(), s.Brief})
	}
	cmds = append(cmds, row{"evo help [command]", "Show help"})

	env := make([]row, 0, len(Environment))
	for _, e := range Environment {
		env = append(env, row{e.Name, e.Desc})
	}

	return fmt.Sprintf("evo v%s \u2014 %s\n\n%s\n\n%s\n\nConfiguration: %s\n",
		Version, top.Synopsis,
		block("Usage", cmds, width(cmds)+3),
		block("Environment", env, width(env)+3),
		configPath)
}
