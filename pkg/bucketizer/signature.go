// Package bucketizer canonicalizes crash signatures and routes reports to
// deterministic bug buckets on disk.
package bucketizer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// Signature is every field that feeds a bucket id's canonical string, in
// the fixed order the spec requires.
type Signature struct {
	Reason            string
	Signal            string
	ProblematicFrame  string
	CompileTask       string
	NativeFrames      []string // already truncated to the first 5 by the caller
	InterpreterExit   int
	JITExit           int
	NormalizedSourceHash string
	Mutator           string
	SeedAncestor      string
}

var generatedIdentifier = regexp.MustCompile(`c2fuzz\d+`)
var whitespaceRun = regexp.MustCompile(`\s+`)

// NormalizeSource collapses whitespace and replaces generated class
// identifiers (c2fuzz\d+) with a fixed placeholder, so two otherwise
// identical crashing programs hash the same regardless of the arbitrary
// names the Mutation Worker assigned.
func NormalizeSource(source string) string {
	s := generatedIdentifier.ReplaceAllString(source, "CLASS")
	s = whitespaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// NormalizeSourceHash returns the hex SHA-256 of the normalized source.
func NormalizeSourceHash(source string) string {
	sum := sha256.Sum256([]byte(NormalizeSource(source)))
	return hex.EncodeToString(sum[:])
}

var hexAddress = regexp.MustCompile(`0x[0-9a-fA-F]+`)

// NormalizeProblematicFrame replaces hex addresses with a fixed "0x"
// placeholder and collapses whitespace, per the problematic-frame rule.
func NormalizeProblematicFrame(line string) string {
	s := hexAddress.ReplaceAllString(line, "0x")
	s = whitespaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Canonical renders the signature as fixed-order key=value lines, the
// input to the bucket-id hash.
func (s Signature) Canonical() string {
	var sb strings.Builder
	writeKV := func(key, value string) {
		sb.WriteString(key)
		sb.WriteByte('=')
		sb.WriteString(value)
		sb.WriteByte('\n')
	}

	writeKV("reason", s.Reason)
	writeKV("signal", s.Signal)
	writeKV("problematic_frame", s.ProblematicFrame)
	writeKV("compile_task", s.CompileTask)
	for i, frame := range s.NativeFrames {
		if i >= 5 {
			break
		}
		writeKV(fmt.Sprintf("native_frame_%d", i), frame)
	}
	writeKV("interpreter_exit", fmt.Sprintf("%d", s.InterpreterExit))
	writeKV("jit_exit", fmt.Sprintf("%d", s.JITExit))
	writeKV("normalized_source_hash", s.NormalizedSourceHash)
	writeKV("mutator", s.Mutator)
	writeKV("seed", s.SeedAncestor)

	return sb.String()
}

// UnknownBucketID is the fallback used when bucketization itself fails —
// the bug-dedupe-failure error kind from the error taxonomy.
const UnknownBucketID = "b_unknown"

// BucketID computes the deterministic 14-character bucket id:
// "b_" + the first 12 hex characters of SHA-256(canonical string).
func BucketID(s Signature) string {
	sum := sha256.Sum256([]byte(s.Canonical()))
	return "b_" + hex.EncodeToString(sum[:])[:12]
}
