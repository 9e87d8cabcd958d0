// Package metadata evaluates the archive's metadata script in a sandboxed
// JavaScript VM and extracts the catalog entries it binds.
//
// The VM is a fresh goja runtime per evaluation. It has no host bindings:
// no require, no process, no filesystem, network or environment access.
// Only the JSON form of the bound value leaves the sandbox.
package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/xeipuuv/gojsonschema"

	"github.com/tendant/catalog-ingest-pipeline/internal/archive"
	"github.com/tendant/catalog-ingest-pipeline/internal/catalog"
	"github.com/tendant/catalog-ingest-pipeline/pkg/pipeline"
)

// ScriptExtension marks the metadata script inside an archive
const ScriptExtension = ".js"

const maxCallStackSize = 1024

// memoryCheckInterval is how often heap growth is sampled during evaluation
const memoryCheckInterval = 20 * time.Millisecond

var identifier = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// entriesSchema is the shape a metadata script must produce
const entriesSchema = `{
	"type": "array",
	"items": {"type": "object"}
}`

// FindScript returns the first archive entry ending in ScriptExtension
func FindScript(a *archive.Archive) (*archive.Entry, error) {
	for _, e := range a.Entries() {
		if strings.HasSuffix(e.Path, ScriptExtension) {
			return e, nil
		}
	}
	return nil, fmt.Errorf("%w: no %s metadata script in archive", pipeline.ErrValidation, ScriptExtension)
}

// Evaluator runs metadata scripts
type Evaluator struct {
	symbol      string
	timeout     time.Duration
	memoryLimit uint64
	schema      *gojsonschema.Schema
}

// NewEvaluator creates an evaluator reading symbol, bounded by timeout
func NewEvaluator(symbol string, timeout time.Duration) (*Evaluator, error) {
	if !identifier.MatchString(symbol) {
		return nil, fmt.Errorf("invalid script symbol %q", symbol)
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(entriesSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile entries schema: %w", err)
	}
	return &Evaluator{symbol: symbol, timeout: timeout, schema: schema}, nil
}

// SetMemoryLimit interrupts evaluations whose heap growth exceeds limit
// bytes. Zero disables the check. The heap is process-wide, so concurrent
// work counts against the limit too.
func (e *Evaluator) SetMemoryLimit(limit uint64) {
	e.memoryLimit = limit
}

// Evaluate runs src and returns the entries bound to the evaluator's symbol
func (e *Evaluator) Evaluate(ctx context.Context, src string) ([]catalog.Entry, error) {
	doc, err := e.run(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pipeline.ErrMetadataEval, err)
	}

	result, err := e.schema.Validate(gojsonschema.NewStringLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pipeline.ErrMetadataEval, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, re := range result.Errors() {
			msgs = append(msgs, re.String())
		}
		return nil, fmt.Errorf("%w: %s is not a list of records: %s", pipeline.ErrMetadataEval, e.symbol, strings.Join(msgs, "; "))
	}

	dec := json.NewDecoder(strings.NewReader(doc))
	dec.UseNumber()
	var entries []catalog.Entry
	if err := dec.Decode(&entries); err != nil {
		return nil, fmt.Errorf("%w: %v", pipeline.ErrMetadataEval, err)
	}
	return entries, nil
}

// run evaluates src in a fresh VM and returns the JSON text of the symbol
func (e *Evaluator) run(ctx context.Context, src string) (string, error) {
	vm := goja.New()
	vm.SetMaxCallStackSize(maxCallStackSize)

	// Captured before the script runs so it cannot be replaced
	stringify, ok := goja.AssertFunction(vm.Get("JSON").ToObject(vm).Get("stringify"))
	if !ok {
		return "", errors.New("JSON.stringify unavailable")
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	done := make(chan struct{})
	defer close(done)
	go e.watch(ctx, vm, done)

	var program bytes.Buffer
	program.WriteString(src)
	fmt.Fprintf(&program, "\n;(typeof %[1]s === 'undefined' ? undefined : %[1]s);\n", e.symbol)

	value, err := vm.RunString(program.String())
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return "", fmt.Errorf("evaluation interrupted: %v", interrupted.Value())
		}
		return "", err
	}
	if goja.IsUndefined(value) || goja.IsNull(value) {
		return "", fmt.Errorf("%s is not defined", e.symbol)
	}

	text, err := stringify(goja.Undefined(), value)
	if err != nil {
		return "", fmt.Errorf("failed to serialize %s: %v", e.symbol, err)
	}
	if goja.IsUndefined(text) {
		return "", fmt.Errorf("%s is not serializable", e.symbol)
	}
	return text.String(), nil
}

// watch interrupts vm when ctx ends or the heap grows past the memory limit
func (e *Evaluator) watch(ctx context.Context, vm *goja.Runtime, done <-chan struct{}) {
	var tick <-chan time.Time
	var baseline uint64
	if e.memoryLimit > 0 {
		baseline = heapAlloc()
		ticker := time.NewTicker(memoryCheckInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
			return
		case <-done:
			return
		case <-tick:
			if used := heapAlloc(); used > baseline && used-baseline > e.memoryLimit {
				vm.Interrupt(fmt.Errorf("memory limit of %d bytes exceeded", e.memoryLimit))
				return
			}
		}
	}
}

func heapAlloc() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapAlloc
}
