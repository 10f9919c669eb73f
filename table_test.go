package main

import (
	"strings"
	"testing"
)

func TestHistoryTable(t *testing.T) {
	var out strings.Builder
	lines := []string{"x := 1", "func f() {\n\treturn\n}", "fmt.Println(x)"}
	if err := historyTable(&out, lines, 0); err != nil {
		t.Fatal(err)
	}
	result := out.String()

	for _, want := range []string{"x := 1", "fmt.Println(x)", "func f() { ⏎     return ⏎ }"} {
		if !strings.Contains(result, want) {
			t.Errorf("table lacks %q:\n%s", want, result)
		}
	}
	// tablewriter upper-cases headers by default
	if !strings.Contains(strings.ToUpper(result), "STATEMENT") {
		t.Error("expected header in table output")
	}
	t.Log("Output:\n" + result)
}

func TestHistoryTable_Limit(t *testing.T) {
	var out strings.Builder
	if err := historyTable(&out, []string{"a", "b", "c"}, 2); err != nil {
		t.Fatal(err)
	}
	result := out.String()
	if strings.Contains(result, " a ") {
		t.Errorf("limited table shows the oldest line:\n%s", result)
	}
	if !strings.Contains(result, " 2 ") || !strings.Contains(result, " c ") {
		t.Errorf("limited table keeps original numbering:\n%s", result)
	}
}

func TestHistoryTable_Empty(t *testing.T) {
	var out strings.Builder
	if err := historyTable(&out, nil, 0); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out.String(), "1") {
		t.Errorf("empty history rendered rows:\n%s", out.String())
	}
}
