package bucketizer

import (
	"os"
	"path/filepath"
	"testing"
)

func sampleSignature() Signature {
	return Signature{
		Reason:               "different exit codes",
		Signal:               "SIGSEGV",
		ProblematicFrame:     NormalizeProblematicFrame("# Problematic frame: V [libjvm.so+0x1a2b3c]"),
		CompileTask:          "C2:1234 some.Method ()V",
		NativeFrames:         []string{"frame1", "frame2"},
		InterpreterExit:      0,
		JITExit:              134,
		NormalizedSourceHash: NormalizeSourceHash("class c2fuzz42 { void m() {} }"),
		Mutator:              "insert-dead-code",
		SeedAncestor:         "seed1",
	}
}

func TestBucketIDDeterministic(t *testing.T) {
	sig := sampleSignature()
	id1 := BucketID(sig)
	id2 := BucketID(sig)
	if id1 != id2 {
		t.Fatalf("expected deterministic bucket id, got %s vs %s", id1, id2)
	}
	if len(id1) != 14 {
		t.Fatalf("expected 14-character bucket id (b_ + 12 hex), got %q (len %d)", id1, len(id1))
	}
	if id1[:2] != "b_" {
		t.Fatalf("expected bucket id to start with b_, got %q", id1)
	}
}

func TestBucketIDDiffersOnDifferentInputs(t *testing.T) {
	sig1 := sampleSignature()
	sig2 := sampleSignature()
	sig2.JITExit = 139

	if BucketID(sig1) == BucketID(sig2) {
		t.Fatal("expected different exit codes to produce different bucket ids")
	}
}

func TestNormalizeSourceCollapsesGeneratedIdentifiers(t *testing.T) {
	a := NormalizeSourceHash("class c2fuzz1 {  void   m()  {} }")
	b := NormalizeSourceHash("class c2fuzz2 { void m() {} }")
	if a != b {
		t.Fatal("expected normalized source hash to ignore generated identifier numbering and whitespace")
	}
}

func TestNormalizeProblematicFrameReplacesHexAddresses(t *testing.T) {
	got := NormalizeProblematicFrame("V  [libjvm.so+0x1a2b3c4d]   at 0xDEADBEEF")
	want := "V [libjvm.so+0x] at 0x"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestStoreRecordResultWritesBucketArtifacts(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(filepath.Join(dir, "bugs"))
	if err != nil {
		t.Fatal(err)
	}

	sig := sampleSignature()
	id := BucketID(sig)

	first, err := store.RecordResult(sig, id, "case-1", "")
	if err != nil {
		t.Fatal(err)
	}
	if !first {
		t.Fatal("expected first observation to report true")
	}

	second, err := store.RecordResult(sig, id, "case-2", "")
	if err != nil {
		t.Fatal(err)
	}
	if second {
		t.Fatal("expected second observation to report false")
	}

	bucketMeta := filepath.Join(dir, "bugs", id, "bucket_meta")
	if _, err := os.Stat(bucketMeta); err != nil {
		t.Fatalf("expected bucket_meta to exist: %v", err)
	}

	cases, err := os.ReadFile(filepath.Join(dir, "bugs", id, "cases"))
	if err != nil {
		t.Fatal(err)
	}
	if string(cases) != "case-1\ncase-2\n" {
		t.Fatalf("unexpected cases manifest: %q", cases)
	}

	indexPath := filepath.Join(dir, "bugs", "bugs_index.json")
	if _, err := os.Stat(indexPath); err != nil {
		t.Fatalf("expected bugs_index.json to exist: %v", err)
	}

	if store.UniqueBuckets() != 1 {
		t.Fatalf("expected 1 unique bucket, got %d", store.UniqueBuckets())
	}
}
