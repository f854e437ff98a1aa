package providers

import "testing"

func TestExtractPlanTextDecodesPlanArgument(t *testing.T) {
	got := ExtractPlanText([]byte(`{"plan":"read the file, then summarize it"}`))
	if got != "read the file, then summarize it" {
		t.Fatalf("expected decoded plan text, got %q", got)
	}
}

func TestExtractPlanTextReturnsEmptyOnMalformedJSON(t *testing.T) {
	if got := ExtractPlanText([]byte(`not json`)); got != "" {
		t.Fatalf("expected empty string for malformed input, got %q", got)
	}
}

func TestPlanToolDefinitionIsWellFormed(t *testing.T) {
	def := PlanToolDefinition()
	if def.Name != PlanToolName {
		t.Fatalf("expected name %q, got %q", PlanToolName, def.Name)
	}
	if len(def.Parameters) == 0 {
		t.Fatal("expected a non-empty parameters schema")
	}
}
