// Command checkrules validates an alert rules file without starting the
// service. It prints each configured level with its rule counts and exits
// non-zero when the file cannot be parsed.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/forewarned/forewarned/internal/domain"
)

func main() {
	rulesPath := flag.String("rules", "", "path to the alert rules JSON file (default: built-in table)")
	flag.Parse()

	table := domain.DefaultLevelTable()
	source := "built-in"
	if *rulesPath != "" {
		data, err := os.ReadFile(*rulesPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "checkrules: %v\n", err)
			os.Exit(1)
		}
		table, err = domain.ParseLevelTable(data)
		if err != nil {
			fmt.Fprintf(os.Stderr, "checkrules: %v\n", err)
			os.Exit(1)
		}
		source = *rulesPath
	}
	table = table.Normalize()

	fmt.Printf("rules source: %s\n", source)
	for _, level := range domain.LevelsDescending() {
		rule, ok := table[level]
		if !ok {
			fmt.Printf("%-10s (not configured)\n", level.String())
			continue
		}
		fmt.Printf("%-10s weather=%d (%s)  eoc=%d (%s)  combine=%s\n",
			level.String(),
			len(rule.Weather.Rules), rule.Weather.Operator,
			len(rule.EOC.Rules), rule.EOC.Operator,
			rule.Combine,
		)
	}
}
