package compiler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/aretw0/conductor/pkg/domain"
)

// markerPattern matches a step marker on a line of its own: <<<STEP 2>>> or
// <<<STEP 2: Label>>>.
var markerPattern = regexp.MustCompile(`(?m)^[ \t]*<<<STEP[ \t]+(\d+)(?:[ \t]*:[^\n]*?)?>>>[ \t]*$`)

// StepMarker returns the marker line that opens step k (1-based).
func StepMarker(k int, label string) string {
	if label == "" {
		return fmt.Sprintf("<<<STEP %d>>>", k)
	}
	return fmt.Sprintf("<<<STEP %d: %s>>>", k, strings.ReplaceAll(label, ">>>", ""))
}

// BuildCollapsedPrompt merges the prompts of a chain into one request whose
// answer ParseCollapsedOutput can split back into one piece per node.
func BuildCollapsedPrompt(nodes []*domain.FlowNode) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are completing %d sequential steps in a single response.\n", len(nodes))
	sb.WriteString("Each step takes the result of the previous step as its input.\n")
	sb.WriteString("Answer every step in order. Start each answer with its marker on a line of its own, exactly as shown (for example <<<STEP 1>>>), and write nothing before the first marker.\n")
	for i, n := range nodes {
		sb.WriteString("\n")
		sb.WriteString(StepMarker(i+1, n.Label))
		sb.WriteString("\n")
		sb.WriteString(strings.TrimSpace(n.Config.Prompt()))
		sb.WriteString("\n")
	}
	return sb.String()
}

// ParseCollapsedOutput splits a collapsed response into exactly n pieces.
// It never fails:
//   - no markers: the whole text goes to the first piece
//   - text before the first marker is prepended to the first piece
//   - sections for steps above n are appended to the last piece
//   - steps without a section stay empty
//
// n <= 0 yields an empty slice.
func ParseCollapsedOutput(output string, n int) []string {
	if n <= 0 {
		return []string{}
	}
	pieces := make([]string, n)

	locs := markerPattern.FindAllStringSubmatchIndex(output, -1)
	if len(locs) == 0 {
		pieces[0] = strings.TrimSpace(output)
		return pieces
	}

	prefix := strings.TrimSpace(output[:locs[0][0]])
	for i, loc := range locs {
		end := len(output)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		body := strings.TrimSpace(output[loc[1]:end])

		k, err := strconv.Atoi(output[loc[2]:loc[3]])
		switch {
		case err != nil || k < 1:
			k = 1
		case k > n:
			k = n
		}
		pieces[k-1] = join(pieces[k-1], body)
	}
	if prefix != "" {
		pieces[0] = join(prefix, pieces[0])
	}
	return pieces
}

func join(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + "\n" + b
	}
}
