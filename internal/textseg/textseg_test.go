package textseg

import (
	"strings"
	"testing"
)

func TestSplitSentences(t *testing.T) {
	chunks := Split("Hello world. How are you? Fine!")
	want := []string{"Hello world. ", "How are you? ", "Fine!"}
	if len(chunks) != len(want) {
		t.Fatalf("expected %d chunks, got %d: %q", len(want), len(chunks), chunks)
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Fatalf("chunk %d: expected %q, got %q", i, want[i], chunks[i])
		}
	}
}

func TestSplitNewlines(t *testing.T) {
	chunks := Split("first line\nsecond line\nthird")
	want := []string{"first line\n", "second line\n", "third"}
	if len(chunks) != len(want) {
		t.Fatalf("expected %d chunks, got %d: %q", len(want), len(chunks), chunks)
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Fatalf("chunk %d: expected %q, got %q", i, want[i], chunks[i])
		}
	}
}

func TestSplitNoDelimiter(t *testing.T) {
	text := "no boundaries here at all"
	chunks := Split(text)
	if len(chunks) != 1 || chunks[0] != text {
		t.Fatalf("expected single passthrough chunk, got %q", chunks)
	}
}

func TestSplitDropsWhitespaceOnlyChunks(t *testing.T) {
	chunks := Split("One.   \n Two.")
	for _, c := range chunks {
		if strings.TrimSpace(c) == "" {
			t.Fatalf("whitespace-only chunk leaked: %q", chunks)
		}
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %q", len(chunks), chunks)
	}
}

func TestSplitEmpty(t *testing.T) {
	if chunks := Split(""); chunks != nil {
		t.Fatalf("expected no chunks for empty input, got %q", chunks)
	}
	if chunks := Split("   "); chunks != nil {
		t.Fatalf("expected no chunks for blank input, got %q", chunks)
	}
}

func TestSplitRejoins(t *testing.T) {
	text := "주문이 완료되었습니다. 결제를 진행해주세요! 궁금한 점이 있으신가요?\n감사합니다."
	if got := strings.Join(Split(text), ""); got != text {
		t.Fatalf("rejoined chunks differ:\n got: %q\nwant: %q", got, text)
	}
}

func TestChunksEarlyStop(t *testing.T) {
	var got []string
	for chunk := range Chunks("a. b. c. d.") {
		got = append(got, chunk)
		if len(got) == 2 {
			break
		}
	}
	if len(got) != 2 || got[0] != "a. " || got[1] != "b. " {
		t.Fatalf("unexpected chunks after early stop: %q", got)
	}
}
