package help

import (
	"fmt"
	"strings"
	"time"
)

const manual = "Evolve Manual"

// page accumulates roff source for one man page.
type page struct {
	strings.Builder
}

func newPage(title, date string) *page {
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}
	p := &page{}
	fmt.Fprintf(p, ".TH %s 1 %q %q %q\n", strings.ToUpper(title), date, "evo "+Version, manual)
	return p
}

func (p *page) section(name string) {
	p.WriteString(".SH " + name + "\n")
}

// item writes a tagged paragraph; tag is set bold.
func (p *page) item(tag, body string) {
	fmt.Fprintf(p, ".TP\n.B \"%s\"\n%s\n", escapeRoff(tag), escapeRoff(body))
}

// text writes prose; blank lines become paragraph breaks.
func (p *page) text(s string) {
	blank := false
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) == "" {
			if !blank {
				p.WriteString(".PP\n")
			}
			blank = true
			continue
		}
		blank = false
		p.WriteString(escapeRoff(line) + "\n")
	}
}

func (p *page) seeAlso(refs []string) {
	if len(refs) == 0 {
		return
	}
	p.section("SEE ALSO")
	out := make([]string, len(refs))
	for i, ref := range refs {
		out[i] = formatManRef(ref)
	}
	p.WriteString(strings.Join(out, ",\n") + "\n")
}

// FormatRoff renders a subcommand as a section 1 man page. An empty date
// means today; pass a fixed one for reproducible output.
func FormatRoff(c Command, date string) string {
	p := newPage(c.ManName(), date)

	p.section("NAME")
	fmt.Fprintf(p, "%s \\- %s\n", c.ManName(), escapeRoff(c.Synopsis))
	p.section("SYNOPSIS")
	p.WriteString(".B " + escapeRoff(c.Usage) + "\n")

	if c.Description != "" {
		p.section("DESCRIPTION")
		p.text(c.Description)
	}
	if len(c.Args) > 0 || len(c.Flags) > 0 {
		p.section("OPTIONS")
		for _, a := range c.Args {
			p.item(a.Name, a.Desc)
		}
		for _, f := range c.Flags {
			p.item(f.Name, f.Desc)
		}
	}
	if len(c.Subs) > 0 {
		p.section("SUBCOMMANDS")
		for _, s := range c.Subs {
			p.item(s.subUsage(c), s.Brief+"; see "+s.ManName()+"(1).")
		}
	}
	if len(c.Examples) > 0 {
		p.section("EXAMPLES")
		p.WriteString(".nf\n")
		for _, e := range c.Examples {
			p.WriteString(escapeRoff(e) + "\n")
		}
		p.WriteString(".fi\n")
	}
	p.seeAlso(c.SeeAlso)
	return p.String()
}

// FormatRoffTopLevel renders evo(1). subs are listed under COMMANDS with
// their nested commands, and every one of them under SEE ALSO.
func FormatRoffTopLevel(top Command, subs []Command, date string) string {
	p := newPage("evo", date)

	p.section("NAME")
	fmt.Fprintf(p, "evo \\- %s\n", escapeRoff(top.Synopsis))
	p.section("SYNOPSIS")
	p.WriteString(".B evo\n.I command\n.RI [ options ]\n")

	p.section("DESCRIPTION")
	p.WriteString(`.B evo
advances a game character one level for every new commit by a tracked
author. Each commit rewrites the character description through a text
generator; sprite assets are regenerated once per cycle.
`)

	p.section("COMMANDS")
	var refs []string
	var list func(cs []Command)
	list = func(cs []Command) {
		for _, c := range cs {
			p.item(c.tableUsage(), c.Brief)
			refs = append(refs, c.ManName()+"(1)")
			list(c.Subs)
		}
	}
	list(subs)

	p.section("CONFIGURATION")
	p.text("Configuration file: " + configPath + "\n\nState (ledger, journal, archive, triggers): " + statePath)

	p.section("ENVIRONMENT")
	for _, e := range Environment {
		p.item(e.Name, e.Desc+".")
	}

	p.seeAlso(refs)
	return p.String()
}

// escapeRoff escapes backslashes, line-leading dots and hyphens.
func escapeRoff(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "\n.", "\n\\&.")
	if strings.HasPrefix(s, ".") {
		s = "\\&" + s
	}
	return strings.ReplaceAll(s, "-", "\\-")
}

// formatManRef turns "evo-init(1)" into ".BR evo\-init (1)".
func formatManRef(ref string) string {
	if i := strings.Index(ref, "("); i >= 0 {
		return fmt.Sprintf(".BR %s %s", escapeRoff(ref[:i]), ref[i:])
	}
	return ".B " + escapeRoff(ref)
}
