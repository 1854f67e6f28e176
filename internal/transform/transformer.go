// Package transform applies an optional user-supplied JavaScript hook
// to outbound change batches before they reach the topic bridge. The
// script receives the batch object and returns the (possibly modified)
// batch, or null/undefined to drop it.
package transform

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dop251/goja"
	"github.com/sirupsen/logrus"

	"airtable-sync/internal/models"
)

// Publisher is the downstream the transformer forwards to.
type Publisher interface {
	Publish(baseID string, batch *models.ChangeBatch) error
}

// Transformer wraps a Publisher with a JavaScript transform.
type Transformer struct {
	script string
	next   Publisher
	logger *logrus.Logger
}

// New loads and validates the script at scriptPath. The script must be
// an anonymous function expression or define a named function called
// transform.
func New(scriptPath string, next Publisher, logger *logrus.Logger) (*Transformer, error) {
	content, err := os.ReadFile(scriptPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read transform script: %w", err)
	}

	t := &Transformer{
		script: string(content),
		next:   next,
		logger: logger,
	}

	// goja.Runtime is not thread-safe; validation uses its own vm, and
	// each Publish builds a fresh one.
	vm := goja.New()
	if _, err := t.callable(vm); err != nil {
		return nil, fmt.Errorf("invalid transform script %s: %w", scriptPath, err)
	}

	logger.Infof("Loaded transform script: %s", scriptPath)
	return t, nil
}

func (t *Transformer) callable(vm *goja.Runtime) (goja.Callable, error) {
	result, err := vm.RunString(t.script)
	if err != nil {
		return nil, fmt.Errorf("failed to execute script: %w", err)
	}

	if result != nil && !goja.IsUndefined(result) && !goja.IsNull(result) {
		if fn, ok := goja.AssertFunction(result); ok {
			return fn, nil
		}
	}

	transformVar := vm.Get("transform")
	if transformVar != nil && !goja.IsUndefined(transformVar) && !goja.IsNull(transformVar) {
		if fn, ok := goja.AssertFunction(transformVar); ok {
			return fn, nil
		}
	}

	return nil, fmt.Errorf("script must export a function (anonymous or named 'transform')")
}

// Publish runs the batch through the script and forwards the result. A
// script returning null or undefined drops the batch silently.
func (t *Transformer) Publish(baseID string, batch *models.ChangeBatch) error {
	out, err := t.apply(baseID, batch)
	if err != nil {
		return err
	}
	if out == nil {
		t.logger.Debugf("Transform dropped batch %d for base %s", batch.Number, baseID)
		return nil
	}
	return t.next.Publish(baseID, out)
}

func (t *Transformer) apply(baseID string, batch *models.ChangeBatch) (*models.ChangeBatch, error) {
	batchJSON, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal batch: %w", err)
	}

	vm := goja.New()
	fn, err := t.callable(vm)
	if err != nil {
		return nil, err
	}

	if err := vm.Set("batchJSON", string(batchJSON)); err != nil {
		return nil, fmt.Errorf("failed to set batch JSON: %w", err)
	}
	if err := vm.Set("baseId", baseID); err != nil {
		return nil, fmt.Errorf("failed to set base id: %w", err)
	}
	batchObj, err := vm.RunString("JSON.parse(batchJSON)")
	if err != nil {
		return nil, fmt.Errorf("failed to parse batch JSON: %w", err)
	}

	result, err := fn(goja.Undefined(), batchObj, vm.Get("baseId"))
	if err != nil {
		return nil, fmt.Errorf("transform function error: %w", err)
	}

	if result == nil || goja.IsUndefined(result) || goja.IsNull(result) {
		return nil, nil
	}

	resultJSON, err := json.Marshal(result.Export())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transform result: %w", err)
	}

	var transformed models.ChangeBatch
	if err := json.Unmarshal(resultJSON, &transformed); err != nil {
		return nil, fmt.Errorf("failed to decode transform result: %w", err)
	}
	return &transformed, nil
}
