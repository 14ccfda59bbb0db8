// Package schema validates configuration payloads before they are staged.
//
// Only the router subtree has a schema today. It covers the keys the router
// command manages; anything else under router is rejected so typos fail
// locally instead of in a revision.
package schema

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed router.schema.json
var routerSchema string

const routerSchemaURL = "router.schema.json"

var (
	routerOnce     sync.Once
	routerCompiled *jsonschema.Schema
	routerErr      error
)

// Router returns the compiled router schema
func Router() (*jsonschema.Schema, error) {
	routerOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft7
		c.AssertFormat = true
		if err := c.AddResource(routerSchemaURL, strings.NewReader(routerSchema)); err != nil {
			routerErr = fmt.Errorf("load router schema: %w", err)
			return
		}
		routerCompiled, routerErr = c.Compile(routerSchemaURL)
		if routerErr != nil {
			routerErr = fmt.Errorf("compile router schema: %w", routerErr)
		}
	})
	return routerCompiled, routerErr
}

// ValidateRouter checks data against the router schema. data may be any value
// that marshals to JSON; it is normalized first so Go structs and decoded YAML
// validate the same way.
func ValidateRouter(data any) error {
	s, err := Router()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode router data: %w", err)
	}
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return fmt.Errorf("decode router data: %w", err)
	}

	if err := s.Validate(decoded); err != nil {
		return &ValidationError{Causes: flatten(err)}
	}
	return nil
}

// ValidationError lists every schema violation as "location: message"
type ValidationError struct {
	Causes []string
}

func (e *ValidationError) Error() string {
	return "router data invalid: " + strings.Join(e.Causes, "; ")
}

func flatten(err error) []string {
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return []string{err.Error()}
	}

	var out []string
	var walk func(*jsonschema.ValidationError)
	walk = func(v *jsonschema.ValidationError) {
		if len(v.Causes) == 0 {
			loc := v.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			out = append(out, fmt.Sprintf("%s: %s", loc, v.Message))
			return
		}
		for _, c := range v.Causes {
			walk(c)
		}
	}
	walk(verr)
	return out
}
