package thinktag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedSingleChunk(t *testing.T) {
	p := New()
	reasoning, content := p.Feed("let me think</think>hello")
	assert.Equal(t, "let me think", reasoning)
	assert.Equal(t, "hello", content)
	assert.True(t, p.Done())
}

func TestFeedSplitAcrossChunkBoundaries(t *testing.T) {
	// Split the input into two chunks at every position, including every
	// position inside the closing tag; the parser must never leak a partial
	// "</think" fragment as reasoning.
	full := "reasoning here</think>visible output"
	for split := 0; split <= len(full); split++ {
		p := New()
		var reasoning, content string
		r1, c1 := p.Feed(full[:split])
		r2, c2 := p.Feed(full[split:])
		reasoning = r1 + r2
		content = c1 + c2
		reasoning += p.Flush()
		require.Equal(t, "reasoning here", reasoning, "split at %d", split)
		require.Equal(t, "visible output", content, "split at %d", split)
	}
}

func TestFeedByteAtATime(t *testing.T) {
	full := "abc</think>xyz"
	p := New()
	var reasoning, content string
	for i := 0; i < len(full); i++ {
		r, c := p.Feed(string(full[i]))
		reasoning += r
		content += c
	}
	reasoning += p.Flush()
	assert.Equal(t, "abc", reasoning)
	assert.Equal(t, "xyz", content)
}

func TestFeedNeverCloses(t *testing.T) {
	p := New()
	reasoning, content := p.Feed("still thinking")
	assert.Empty(t, content)
	reasoning += p.Flush()
	assert.Equal(t, "still thinking", reasoning)
	assert.False(t, p.Done())
}

func TestStrip(t *testing.T) {
	reasoning, content := Strip("<think>hmm</think>answer")
	assert.Equal(t, "hmm", reasoning)
	assert.Equal(t, "answer", content)
}

func TestStripNoTags(t *testing.T) {
	reasoning, content := Strip("plain answer")
	assert.Empty(t, reasoning)
	assert.Equal(t, "plain answer", content)
}

func TestStripOmittedOpeningTag(t *testing.T) {
	reasoning, content := Strip("weighing the options</think>final answer")
	assert.Equal(t, "weighing the options", reasoning)
	assert.Equal(t, "final answer", content)
}

func TestPartialSuffixLen(t *testing.T) {
	cases := []struct {
		data string
		want int
	}{
		{"", 0},
		{"hello", 0},
		{"hello<", 1},
		{"hello</", 2},
		{"hello</t", 3},
		{"hello</th", 4},
		{"hello</thi", 5},
		{"hello</thin", 6},
		{"hello</think", 7},
		{"hello</think>", 0}, // full tag handled by Index, not here
	}
	for _, tc := range cases {
		got := partialSuffixLen(tc.data, closeTag)
		assert.Equal(t, tc.want, got, tc.data)
	}
}
