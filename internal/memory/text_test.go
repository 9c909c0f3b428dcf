package memory

import (
	"testing"
)

func TestTextIndexQuery(t *testing.T) {
	tests := []struct {
		name      string
		docs      map[string]string
		query     string
		k         int
		wantIDs   []string
		wantCount int
	}{
		{
			name:      "empty index",
			docs:      map[string]string{},
			query:     "anything",
			k:         5,
			wantCount: 0,
		},
		{
			name: "no overlap",
			docs: map[string]string{
				"a": "cats are great",
			},
			query:     "quantum chromodynamics",
			k:         5,
			wantCount: 0,
		},
		{
			name: "full overlap beats partial",
			docs: map[string]string{
				"partial": "cats exist",
				"full":    "cats are great",
			},
			query:     "cats are great",
			k:         5,
			wantIDs:   []string{"full", "partial"},
			wantCount: 2,
		},
		{
			name: "k limits results",
			docs: map[string]string{
				"a": "error handling patterns",
				"b": "error recovery",
				"c": "error codes",
			},
			query:     "error",
			k:         2,
			wantCount: 2,
		},
		{
			name: "punctuation and case ignored",
			docs: map[string]string{
				"a": "Cats! Are... GREAT?",
			},
			query:     "cats great",
			k:         5,
			wantIDs:   []string{"a"},
			wantCount: 1,
		},
		{
			name: "whitespace query",
			docs: map[string]string{
				"a": "something",
			},
			query:     "   ",
			k:         5,
			wantCount: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := NewTextIndex(nil)
			// Insert in deterministic order for tie-break assertions.
			for _, id := range []string{"partial", "full", "a", "b", "c"} {
				if text, ok := tt.docs[id]; ok {
					if err := idx.Insert(id, text); err != nil {
						t.Fatalf("insert %s: %v", id, err)
					}
				}
			}

			got := idx.Query(tt.query, tt.k)
			if len(got) != tt.wantCount {
				t.Fatalf("got %d results, want %d", len(got), tt.wantCount)
			}
			for i, want := range tt.wantIDs {
				if i >= len(got) {
					break
				}
				if got[i].ID != want {
					t.Errorf("result[%d] = %s, want %s", i, got[i].ID, want)
				}
			}
		})
	}
}

func TestTextIndexScoreRange(t *testing.T) {
	idx := NewTextIndex(nil)
	if err := idx.Insert("a", "cats are great companions"); err != nil {
		t.Fatal(err)
	}

	full := idx.Query("cats are great companions", 1)
	if len(full) != 1 || full[0].Score != 1.0 {
		t.Fatalf("full match score = %v, want 1.0", full)
	}

	half := idx.Query("cats are tiny dinosaurs", 1)
	if len(half) != 1 {
		t.Fatal("expected one result")
	}
	if half[0].Score <= 0 || half[0].Score >= 1 {
		t.Fatalf("partial match score = %f, want in (0,1)", half[0].Score)
	}
	if half[0].Score >= full[0].Score {
		t.Fatal("partial overlap must score below full overlap")
	}
}

func TestTextIndexDeterministicTies(t *testing.T) {
	idx := NewTextIndex(nil)
	for _, id := range []string{"first", "second", "third"} {
		if err := idx.Insert(id, "identical content"); err != nil {
			t.Fatal(err)
		}
	}

	for i := 0; i < 5; i++ {
		got := idx.Query("identical content", 3)
		if len(got) != 3 {
			t.Fatalf("got %d results", len(got))
		}
		for j, want := range []string{"first", "second", "third"} {
			if got[j].ID != want {
				t.Fatalf("run %d: result[%d] = %s, want %s", i, j, got[j].ID, want)
			}
		}
	}
}

func TestTextIndexReinsertReplacesTerms(t *testing.T) {
	idx := NewTextIndex(nil)
	if err := idx.Insert("a", "cats"); err != nil {
		t.Fatal(err)
	}
	if err := idx.Insert("a", "dogs"); err != nil {
		t.Fatal(err)
	}

	if got := idx.Query("cats", 1); len(got) != 0 {
		t.Fatalf("stale terms still indexed: %v", got)
	}
	if got := idx.Query("dogs", 1); len(got) != 1 {
		t.Fatal("replacement terms not indexed")
	}
	if idx.Count() != 1 {
		t.Fatalf("count = %d, want 1", idx.Count())
	}
}
