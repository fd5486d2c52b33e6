package compiler_test

import (
	"strings"
	"testing"

	"github.com/aretw0/conductor/internal/compiler"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestParseCollapsedOutput(t *testing.T) {
	tests := []struct {
		name   string
		output string
		n      int
		want   []string
	}{
		{
			name:   "All Markers",
			output: "<<<STEP 1>>>\nfirst\n<<<STEP 2: Polish>>>\nsecond\n<<<STEP 3>>>\nthird",
			n:      3,
			want:   []string{"first", "second", "third"},
		},
		{
			name:   "No Markers",
			output: "just one blob of text",
			n:      3,
			want:   []string{"just one blob of text", "", ""},
		},
		{
			name:   "Empty Output",
			output: "",
			n:      2,
			want:   []string{"", ""},
		},
		{
			name:   "Missing Step",
			output: "<<<STEP 1>>>\nfirst\n<<<STEP 3>>>\nthird",
			n:      3,
			want:   []string{"first", "", "third"},
		},
		{
			name:   "Preamble Goes To First Piece",
			output: "Sure! Here you go.\n<<<STEP 1>>>\nfirst\n<<<STEP 2>>>\nsecond",
			n:      2,
			want:   []string{"Sure! Here you go.\nfirst", "second"},
		},
		{
			name:   "Extra Steps Join The Last Piece",
			output: "<<<STEP 1>>>\na\n<<<STEP 2>>>\nb\n<<<STEP 3>>>\nc",
			n:      2,
			want:   []string{"a", "b\nc"},
		},
		{
			name:   "Inline Marker Is Text",
			output: "mentions <<<STEP 2>>> inline",
			n:      2,
			want:   []string{"mentions <<<STEP 2>>> inline", ""},
		},
		{
			name:   "Single Piece",
			output: "<<<STEP 1>>>\nonly",
			n:      1,
			want:   []string{"only"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, compiler.ParseCollapsedOutput(tt.output, tt.n))
		})
	}
}

func TestParseCollapsedOutput_AlwaysNPieces(t *testing.T) {
	inputs := []string{"", "x", "<<<STEP 9>>>", "<<<STEP 1>>>\n<<<STEP 1>>>", strings.Repeat("<<<STEP 2>>>\nz\n", 5)}
	for _, in := range inputs {
		for n := 1; n <= 5; n++ {
			assert.Len(t, compiler.ParseCollapsedOutput(in, n), n, "input %q n=%d", in, n)
		}
	}
	assert.Empty(t, compiler.ParseCollapsedOutput("anything", 0))
	assert.Empty(t, compiler.ParseCollapsedOutput("anything", -1))
}

func TestBuildCollapsedPrompt_RoundTripsThroughParser(t *testing.T) {
	nodes := []*domain.FlowNode{
		{ID: "a", Label: "Draft", Kind: domain.KindAgent, Config: domain.NodeConfig{Agent: &domain.AgentConfig{Prompt: "Write a haiku"}}},
		{ID: "b", Label: "Translate", Kind: domain.KindAgent, Config: domain.NodeConfig{Agent: &domain.AgentConfig{Prompt: "Translate to French"}}},
	}

	prompt := compiler.BuildCollapsedPrompt(nodes)

	assert.Contains(t, prompt, "2 sequential steps")
	// The prompt's own markers split cleanly; the header lands in the first piece.
	pieces := compiler.ParseCollapsedOutput(prompt, 2)
	assert.True(t, strings.HasSuffix(pieces[0], "Write a haiku"))
	assert.Equal(t, "Translate to French", pieces[1])
}
