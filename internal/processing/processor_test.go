package processing_test

import (
	"testing"
	"time"

	"github.com/DeafMist/fin-news-radar/internal/processing"
	"github.com/stretchr/testify/require"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "punctuation", input: "Profit!!!   rises", want: "Profit rises"},
		{name: "collapse whitespace", input: "foo\n\nbar\t baz", want: "foo bar baz"},
		{name: "remove urls", input: "Check https://example.com for info", want: "Check for info"},
		{name: "html entities", input: "L&amp;T wins order", want: "L&T wins order"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := processing.CleanText(tt.input); got != tt.want {
				t.Fatalf("CleanText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestExtractKeywords(t *testing.T) {
	text := "Bank bank profit profit profit results and and rates"
	got := processing.ExtractKeywords(text, 3, 3)
	want := []string{"profit", "bank", "rates"}
	require.Equal(t, want, got)

	require.Nil(t, processing.ExtractKeywords("", 5, 3))
	require.Nil(t, processing.ExtractKeywords("the news about it", 5, 2))
}

func TestExtractKeywordsIgnoresURLWords(t *testing.T) {
	text := "Bank profit profit https://example.com/bank-results rates"
	got := processing.ExtractKeywords(text, 3, 3)
	require.ElementsMatch(t, []string{"profit", "bank", "rates"}, got)
}

func TestIsStopword(t *testing.T) {
	require.True(t, processing.IsStopword("the"))
	require.True(t, processing.IsStopword("news"))
	require.False(t, processing.IsStopword("dividend"))
}

func TestBuildDocumentID(t *testing.T) {
	ts := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	id1 := processing.BuildDocumentID("title", "text", ts)
	id2 := processing.BuildDocumentID("title", "text", ts)
	require.NotEmpty(t, id1)
	require.Equal(t, id1, id2)
	require.NotEqual(t, id1, processing.BuildDocumentID("title", "text", ts.Add(time.Second)))
}

func TestRemoveURLs(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "no urls", input: "Hello world", want: "Hello world"},
		{name: "single url", input: "Check https://example.com for more", want: "Check   for more"},
		{name: "multiple urls", input: "Go https://example.com and http://test.org now", want: "Go   and   now"},
		{name: "url only", input: "https://example.com", want: " "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := processing.RemoveURLs(tt.input)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestGenerateTitleFromText(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		maxWords int
		want     string
	}{
		{name: "empty", text: "", maxWords: 10, want: ""},
		{name: "single sentence", text: "HDFC Bank posts record profit.", maxWords: 10, want: "HDFC Bank posts record profit"},
		{name: "multiple sentences", text: "RBI holds repo rate! Inflation eases. Markets rally.", maxWords: 10, want: "RBI holds repo rate"},
		{name: "long text truncated", text: "Infosys raises its full year revenue guidance after strong deal wins", maxWords: 5, want: "Infosys raises its full year..."},
		{name: "no sentence end", text: "SEBI tightens disclosure norms", maxWords: 10, want: "SEBI tightens disclosure norms"},
		{name: "question mark", text: "Will the Fed cut rates? Traders bet yes!", maxWords: 10, want: "Will the Fed cut rates"},
		{name: "unlimited words", text: "Coal India output climbs", maxWords: 0, want: "Coal India output climbs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := processing.GenerateTitleFromText(tt.text, tt.maxWords)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	ts := processing.ParseTimestamp("2024-02-03T04:05:06Z")
	require.False(t, ts.IsZero())
	require.Equal(t, time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC), ts)
	require.Equal(t, time.UTC, ts.Location())

	legacy := processing.ParseTimestamp("2024-02-03 04:05:06")
	require.Equal(t, time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC), legacy)

	day := processing.ParseTimestamp(" 2024-02-03 ")
	require.Equal(t, time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC), day)

	require.True(t, processing.ParseTimestamp("invalid").IsZero())
	require.True(t, processing.ParseTimestamp("").IsZero())
}
