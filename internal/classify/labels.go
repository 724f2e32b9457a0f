package classify

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// LoadLabels reads a classifier label file.
//
// Each non-blank line is either "<index> <name>" or just "<name>"; the
// leading index token is dropped. Label order matches the model's output
// vector.
func LoadLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open labels: %w", err)
	}
	defer f.Close()

	var labels []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		labels = append(labels, ParseLabelLine(line))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read labels: %w", err)
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("labels file %s is empty", path)
	}
	return labels, nil
}

// ParseLabelLine strips the index prefix from a label file line.
func ParseLabelLine(line string) string {
	line = strings.TrimSpace(line)
	if _, name, ok := strings.Cut(line, " "); ok {
		return strings.TrimSpace(name)
	}
	return line
}
