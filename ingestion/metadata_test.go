package ingestion

import "testing"

func TestSanitizeMetadataPassesScalars(t *testing.T) {
	out := SanitizeMetadata(map[string]any{
		"title":  "民法典",
		"count":  42,
		"weight": 0.5,
		"flag":   true,
		"empty":  nil,
	})

	if out["title"] != "民法典" {
		t.Fatalf("expected title to pass through, got %v", out["title"])
	}
	if out["count"] != 42 {
		t.Fatalf("expected count to pass through, got %v", out["count"])
	}
	if out["weight"] != 0.5 {
		t.Fatalf("expected weight to pass through, got %v", out["weight"])
	}
	if out["flag"] != true {
		t.Fatalf("expected flag to pass through, got %v", out["flag"])
	}
	if out["empty"] != nil {
		t.Fatalf("expected nil to pass through, got %v", out["empty"])
	}
}

func TestSanitizeMetadataJoinsScalarLists(t *testing.T) {
	out := SanitizeMetadata(map[string]any{
		"tags":    []string{"合同", "物权", "婚姻"},
		"numbers": []int{1, 2, 3},
	})

	if out["tags"] != "合同, 物权, 婚姻" {
		t.Fatalf("unexpected joined tags: %v", out["tags"])
	}
	if out["numbers"] != "1, 2, 3" {
		t.Fatalf("unexpected joined numbers: %v", out["numbers"])
	}
}

func TestSanitizeMetadataStringifiesComposites(t *testing.T) {
	out := SanitizeMetadata(map[string]any{
		"nested": map[string]int{"a": 1},
		"mixed":  []any{"x", []int{1}},
	})

	for _, key := range []string{"nested", "mixed"} {
		if _, ok := out[key].(string); !ok {
			t.Fatalf("expected %s to become a string, got %T", key, out[key])
		}
	}
}

func TestSanitizeMetadataIsIdempotent(t *testing.T) {
	first := SanitizeMetadata(map[string]any{
		"tags":   []string{"a", "b"},
		"nested": map[string]int{"k": 1},
		"title":  "text",
	})
	second := SanitizeMetadata(first)

	if len(first) != len(second) {
		t.Fatalf("key count changed on second pass: %d vs %d", len(first), len(second))
	}
	for key, value := range first {
		if second[key] != value {
			t.Fatalf("value for %s changed on second pass: %v vs %v", key, value, second[key])
		}
	}
}
