package inference

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// LabelSet is the fixed, order-sensitive list mapping model class indices to
// names.
type LabelSet []string

// NewLabelSet validates and copies labels into a LabelSet.
//
// Arguments:
//   - labels: The class names in model output order.
//
// Returns:
//   - LabelSet: The label set.
//   - error: An error if the list is empty or holds blank or duplicate names.
func NewLabelSet(labels []string) (LabelSet, error) {
	if len(labels) == 0 {
		return nil, errors.New("label set is empty")
	}

	seen := make(map[string]int, len(labels))
	set := make(LabelSet, len(labels))
	for i, label := range labels {
		label = strings.TrimSpace(label)
		if label == "" {
			return nil, errors.Errorf("label %d is blank", i)
		}
		if prev, ok := seen[label]; ok {
			return nil, errors.Errorf("label %q repeated at %d and %d", label, prev, i)
		}
		seen[label] = i
		set[i] = label
	}
	return set, nil
}

// LoadLabels reads the labels the model was trained with from a text file
// with one label per line. Blank lines are skipped.
//
// Arguments:
//   - path: The labels file.
//
// Returns:
//   - LabelSet: The label set in file order.
//   - error: An error if the file cannot be read or is not a valid label set.
func LoadLabels(path string) (LabelSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open labels")
	}
	defer f.Close()

	var labels []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		labels = append(labels, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read labels")
	}

	set, err := NewLabelSet(labels)
	if err != nil {
		return nil, errors.Wrapf(err, "labels %s", path)
	}
	return set, nil
}

// Len returns the number of classes.
func (s LabelSet) Len() int {
	return len(s)
}

// Name returns the label for a class index.
//
// An index outside the set is a broken model contract that NewDetector is
// supposed to have rejected, so it panics instead of returning an error.
func (s LabelSet) Name(idx int) string {
	if idx < 0 || idx >= len(s) {
		panic(fmt.Sprintf("class index %d out of range for %d labels", idx, len(s)))
	}
	return s[idx]
}

// Contains reports whether name is one of the labels.
func (s LabelSet) Contains(name string) bool {
	for _, label := range s {
		if label == name {
			return true
		}
	}
	return false
}
