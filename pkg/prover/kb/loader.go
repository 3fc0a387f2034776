package kb

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Load builds a knowledge base from two line-oriented sources.
//
// Facts: one description per line; the n-th fact line gets id n.
// Rules: one rule per line, "ant1, ant2 -> consequent".
//
// Blank lines and lines starting with '#' are skipped in both and do not
// consume an id.
func Load(facts, rules io.Reader) (*KnowledgeBase, error) {
	b := NewBuilder()

	err := scanLines(facts, func(line string) error {
		_, err := b.AddFact(line)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("facts: %w", err)
	}

	err = scanLines(rules, func(line string) error {
		_, err := b.AddRuleLine(line)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("rules: %w", err)
	}

	return b.Build(), nil
}

// LoadFiles opens both files and calls Load.
func LoadFiles(factsPath, rulesPath string) (*KnowledgeBase, error) {
	ff, err := os.Open(factsPath)
	if err != nil {
		return nil, err
	}
	defer ff.Close()

	rf, err := os.Open(rulesPath)
	if err != nil {
		return nil, err
	}
	defer rf.Close()

	return Load(ff, rf)
}

func scanLines(r io.Reader, fn func(line string) error) error {
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if err := fn(line); err != nil {
			return fmt.Errorf("line %d: %w", lineNum, err)
		}
	}

	return scanner.Err()
}
