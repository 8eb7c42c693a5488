package optvector

import "testing"

func TestParseSingleMethod(t *testing.T) {
	input := "OPTS_START\nOpts|C|m|()V|OSR|-1|1\nInlining=2\nOPTS_END\n"

	seq := Parse(input, nil)

	if len(seq.Methods) != 1 {
		t.Fatalf("expected 1 method, got %d", len(seq.Methods))
	}
	mv := seq.Methods[0]
	if mv.ClassName != "C" || mv.MethodName != "m" || mv.Signature != "()V" {
		t.Fatalf("unexpected method identity: %+v", mv)
	}
	if mv.Kind != KindOSR {
		t.Fatalf("expected OSR kind, got %s", mv.Kind)
	}
	if mv.BCI != -1 {
		t.Fatalf("expected BCI -1, got %d", mv.BCI)
	}
	if mv.CompileID != 1 {
		t.Fatalf("expected compileId 1, got %d", mv.CompileID)
	}

	idx := FeatureIndex("Inlining")
	if mv.Vector[idx] != 2 {
		t.Fatalf("expected Inlining=2, got %d", mv.Vector[idx])
	}
	for i, v := range mv.Vector {
		if i != idx && v != 0 {
			t.Fatalf("expected feature %d to be 0, got %d", i, v)
		}
	}
}

func TestParseMultipleMethodsMerge(t *testing.T) {
	input := "" +
		"OPTS_START\nOpts|A|a|()V|standard|0|1\nInlining=1\nGVN=3\nOPTS_END\n" +
		"OPTS_START\nOpts|B|b|()V|standard|0|2\nInlining=4\nOPTS_END\n"

	seq := Parse(input, nil)

	if len(seq.Methods) != 2 {
		t.Fatalf("expected 2 methods, got %d", len(seq.Methods))
	}

	inliningIdx := FeatureIndex("Inlining")
	gvnIdx := FeatureIndex("GVN")
	if seq.Merged[inliningIdx] != 5 {
		t.Fatalf("expected merged Inlining=5, got %d", seq.Merged[inliningIdx])
	}
	if seq.Merged[gvnIdx] != 3 {
		t.Fatalf("expected merged GVN=3, got %d", seq.Merged[gvnIdx])
	}

	hot, ok := seq.Hot()
	if !ok {
		t.Fatal("expected a hot method")
	}
	if hot.ClassName != "A" {
		t.Fatalf("expected hot method A (total 4) over B (total 4)? got %s", hot.ClassName)
	}
}

func TestParseUnknownFeatureDropped(t *testing.T) {
	var warnings []Warning
	input := "OPTS_START\nOpts|C|m|()V|standard|0|1\nInlining=1\nNotARealFeature=9\nOPTS_END\n"

	seq := Parse(input, func(w Warning) { warnings = append(warnings, w) })

	if len(seq.Methods) != 1 {
		t.Fatalf("expected 1 method, got %d", len(seq.Methods))
	}
	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning for the unknown feature, got %d", len(warnings))
	}
	idx := FeatureIndex("Inlining")
	if seq.Methods[0].Vector[idx] != 1 {
		t.Fatalf("expected Inlining=1 to still be recorded, got %d", seq.Methods[0].Vector[idx])
	}
}

func TestParseMalformedFeatureValueSkipped(t *testing.T) {
	var warnings []Warning
	input := "OPTS_START\nOpts|C|m|()V|standard|0|1\nInlining=notanumber\nGVN=2\nOPTS_END\n"

	seq := Parse(input, func(w Warning) { warnings = append(warnings, w) })

	if len(seq.Methods) != 1 {
		t.Fatalf("expected 1 method, got %d", len(seq.Methods))
	}
	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning for the malformed value, got %d", len(warnings))
	}
	if seq.Methods[0].Vector[FeatureIndex("GVN")] != 2 {
		t.Fatalf("expected GVN=2 to still be recorded")
	}
	if seq.Methods[0].Vector[FeatureIndex("Inlining")] != 0 {
		t.Fatalf("expected Inlining to remain 0 after malformed value skip")
	}
}

func TestParseMalformedHeaderDropsBlock(t *testing.T) {
	var warnings []Warning
	input := "OPTS_START\nnot a valid header\nInlining=1\nOPTS_END\n"

	seq := Parse(input, func(w Warning) { warnings = append(warnings, w) })

	if len(seq.Methods) != 0 {
		t.Fatalf("expected 0 methods from a malformed header, got %d", len(seq.Methods))
	}
	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(warnings))
	}
}

func TestParseNoBlocksYieldsEmptySequence(t *testing.T) {
	seq := Parse("just some unrelated VM stdout\nwith no markers at all\n", nil)
	if len(seq.Methods) != 0 {
		t.Fatalf("expected 0 methods, got %d", len(seq.Methods))
	}
	if seq.Merged.Total() != 0 {
		t.Fatalf("expected empty merged vector")
	}
	if _, ok := seq.Hot(); ok {
		t.Fatal("expected no hot method for empty sequence")
	}
}
