package textnorm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/book-expert/tts-orchestrator/internal/textnorm"
)

func TestNormalize_Pipeline(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "basic text gains terminal punctuation",
			input:    "Hello world",
			expected: "Hello world.",
		},
		{
			name:     "empty input stays empty",
			input:    "   ",
			expected: "",
		},
		{
			name:     "abbreviations are spelled out",
			input:    "Dr. Smith met Mr. Jones.",
			expected: "Doctor Smith met Mister Jones.",
		},
		{
			name:     "integers become words",
			input:    "I counted 21 sheep",
			expected: "I counted twenty one sheep.",
		},
		{
			name:     "large integers stay digits",
			input:    "serial 1000000 shipped",
			expected: "serial 1000000 shipped.",
		},
		{
			name:     "zero is spelled out",
			input:    "0 results",
			expected: "zero results.",
		},
		{
			name:     "thousands read naturally",
			input:    "about 1500 pages",
			expected: "about one thousand five hundred pages.",
		},
		{
			name:     "reference markers are stripped",
			input:    "a known result[12] in the field",
			expected: "a known result in the field.",
		},
		{
			name:     "academic citations are stripped",
			input:    "as argued by Smith et al. recently (Jones 2019)",
			expected: "as argued by recently.",
		},
		{
			name:     "smart punctuation is flattened",
			input:    "“wait” — she said… ‘now’",
			expected: "\"wait\" - she said... 'now'.",
		},
		{
			name:     "whitespace collapses",
			input:    "one\t\ttwo\n\nthree",
			expected: "one two three.",
		},
		{
			name:     "urls pass through untouched",
			input:    "see https://example.com/v2/docs for details",
			expected: "see https://example.com/v2/docs for details.",
		},
		{
			name:     "email addresses pass through untouched",
			input:    "write to support42@example.co.uk today",
			expected: "write to support42@example.co.uk today.",
		},
		{
			name:     "multiple urls keep their order",
			input:    "mirror 1 is http://a.example/x1 and mirror 2 is http://b.example/x2",
			expected: "mirror one is http://a.example/x1 and mirror two is http://b.example/x2.",
		},
	}

	normalizer := textnorm.NewNormalizer()

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, testCase.expected, normalizer.Normalize(testCase.input))
		})
	}
}

func TestNormalize_QuestionAndExclamationEndingsKept(t *testing.T) {
	t.Parallel()

	normalizer := textnorm.NewNormalizer()

	assert.Equal(t, "Really?", normalizer.Normalize("Really?"))
	assert.Equal(t, "Go!", normalizer.Normalize("Go!"))
}
