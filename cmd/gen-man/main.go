// Command gen-man writes the evo man pages. The output directory defaults
// to ./man; SOURCE_DATE_EPOCH pins the page date for reproducible builds.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/suykerbuyk/evolve/internal/help"
)

func main() {
	dir := "man"
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}
	if err := run(dir, pageDate()); err != nil {
		fmt.Fprintf(os.Stderr, "gen-man: %v\n", err)
		os.Exit(1)
	}
}

func run(dir, date string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	pages := map[string]string{
		"evo.1": help.FormatRoffTopLevel(help.TopLevel, help.Subcommands, date),
	}
	for _, c := range help.All() {
		pages[c.ManName()+".1"] = help.FormatRoff(c, date)
	}
	for name, content := range pages {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	fmt.Printf("wrote %d pages to %s\n", len(pages), dir)
	return nil
}

func pageDate() string {
	t := time.Now()
	if v := os.Getenv("SOURCE_DATE_EPOCH"); v != "" {
		if sec, err := strconv.ParseInt(v, 10, 64); err == nil {
			t = time.Unix(sec, 0)
		}
	}
	return t.UTC().Format("2006-01-02")
}
