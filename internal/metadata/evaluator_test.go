package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/catalog-ingest-pipeline/internal/archive"
	"github.com/tendant/catalog-ingest-pipeline/pkg/pipeline"
)

func newEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	e, err := NewEvaluator("testArray", 2*time.Second)
	require.NoError(t, err)
	return e
}

func TestEvaluateConstBinding(t *testing.T) {
	src := `
		// two movies
		const testArray = [
			{ Name: "Alpha", Year: 1999, Genres: ["Action", "Sci-Fi"] },
			{ Name: "Beta", Rating: 8.5 }
		]`

	entries, err := newEvaluator(t).Evaluate(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	name, ok := entries[0].Name()
	require.True(t, ok)
	assert.Equal(t, "Alpha", name)
	assert.Equal(t, json.Number("1999"), entries[0]["Year"])
	assert.Equal(t, []any{"Action", "Sci-Fi"}, entries[0]["Genres"])
	assert.Equal(t, json.Number("8.5"), entries[1]["Rating"])
}

func TestEvaluateComputedEntries(t *testing.T) {
	src := `
		var names = ["The Matrix", "Heat"];
		var testArray = names.map(function (n, i) { return { Name: n, Rank: i + 1 }; });`

	entries, err := newEvaluator(t).Evaluate(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Heat", entries[1]["Name"])
	assert.Equal(t, json.Number("2"), entries[1]["Rank"])
}

func TestEvaluateCannotReachEnvironment(t *testing.T) {
	scripts := map[string]string{
		"process": `const testArray = [{ Name: process.env.HOME }];`,
		"require": `const fs = require("fs"); const testArray = [{ Name: fs.readFileSync("/etc/passwd") }];`,
		"fetch":   `fetch("http://example.com"); const testArray = [];`,
		"console": `console.log("hi"); const testArray = [];`,
	}
	for name, src := range scripts {
		t.Run(name, func(t *testing.T) {
			_, err := newEvaluator(t).Evaluate(context.Background(), src)
			require.Error(t, err)
			assert.True(t, errors.Is(err, pipeline.ErrMetadataEval))
		})
	}
}

func TestEvaluateStateDoesNotLeakBetweenRuns(t *testing.T) {
	e := newEvaluator(t)
	_, err := e.Evaluate(context.Background(), `globalThis.leak = 42; const testArray = [];`)
	require.NoError(t, err)

	entries, err := e.Evaluate(context.Background(), `const testArray = [{ Name: typeof leak }];`)
	require.NoError(t, err)
	assert.Equal(t, "undefined", entries[0]["Name"])
}

func TestEvaluateWrongShape(t *testing.T) {
	cases := map[string]string{
		"missing":      `const other = [];`,
		"not an array": `const testArray = { Name: "Alpha" };`,
		"scalars":      `const testArray = ["Alpha", "Beta"];`,
		"throws":       `throw new Error("boom");`,
		"syntax":       `const testArray = [;`,
		"function":     `const testArray = function () {};`,
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := newEvaluator(t).Evaluate(context.Background(), src)
			require.Error(t, err)
			assert.True(t, errors.Is(err, pipeline.ErrMetadataEval))
		})
	}
}

func TestEvaluateReplacedJSONDoesNotMatter(t *testing.T) {
	src := `JSON.stringify = function () { return "[]"; }; const testArray = [{ Name: "Alpha" }];`
	entries, err := newEvaluator(t).Evaluate(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Alpha", entries[0]["Name"])
}

func TestEvaluateTimeout(t *testing.T) {
	e, err := NewEvaluator("testArray", 50*time.Millisecond)
	require.NoError(t, err)

	_, err = e.Evaluate(context.Background(), `while (true) {} const testArray = [];`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, pipeline.ErrMetadataEval))
	assert.Contains(t, err.Error(), "interrupted")
}

func TestEvaluateMemoryLimit(t *testing.T) {
	e, err := NewEvaluator("testArray", 30*time.Second)
	require.NoError(t, err)
	e.SetMemoryLimit(32 << 20)

	start := time.Now()
	_, err = e.Evaluate(context.Background(), `const hog = []; while (true) { hog.push({ pad: "x".repeat(1024), n: hog.length }); } const testArray = [];`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, pipeline.ErrMetadataEval))
	assert.Contains(t, err.Error(), "memory limit")
	assert.Less(t, time.Since(start), 30*time.Second)
}

func TestEvaluateWithinMemoryLimit(t *testing.T) {
	e, err := NewEvaluator("testArray", 2*time.Second)
	require.NoError(t, err)
	e.SetMemoryLimit(32 << 20)

	entries, err := e.Evaluate(context.Background(), `const testArray = [{ Name: "Alpha" }];`)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestNewEvaluatorRejectsBadSymbol(t *testing.T) {
	_, err := NewEvaluator("testArray; process", time.Second)
	assert.Error(t, err)
}

func TestFindScript(t *testing.T) {
	data, err := archive.Build(
		archive.File{Name: "Poster_Images/A.png", Body: []byte("x")},
		archive.File{Name: "meta/first.js", Body: []byte("const testArray = [];")},
		archive.File{Name: "second.js", Body: []byte("const testArray = [1];")},
	)
	require.NoError(t, err)
	a, err := archive.Open(data)
	require.NoError(t, err)

	entry, err := FindScript(a)
	require.NoError(t, err)
	assert.Equal(t, "meta/first.js", entry.Path)
}

func TestFindScriptMissing(t *testing.T) {
	data, err := archive.Build(archive.File{Name: "Poster_Images/A.png", Body: []byte("x")})
	require.NoError(t, err)
	a, err := archive.Open(data)
	require.NoError(t, err)

	_, err = FindScript(a)
	require.Error(t, err)
	assert.True(t, errors.Is(err, pipeline.ErrValidation))
}
