package extract

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	moneyPattern    = `^\d+(\.\d{1,2})?$`
	quantityPattern = `^\d+(\.\d+)?$`
	datePattern     = `^\d{4}-\d{2}-\d{2}$`
)

// BuildInvoiceJSONSchema returns the JSON-Schema the extractor output must match.
// It is sent to the model as a formatting constraint and used locally to validate.
func BuildInvoiceJSONSchema() map[string]any {
	item := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"description": map[string]any{"type": "string", "minLength": 1},
			"quantity":    map[string]any{"type": "string", "pattern": quantityPattern},
			"unit_price":  moneyProp(),
			"line_total":  moneyProp(),
		},
		"required": []string{"description", "quantity", "unit_price", "line_total"},
	}

	props := map[string]any{
		"invoice_number":  map[string]any{"type": "string"},
		"issue_date":      map[string]any{"type": "string", "pattern": datePattern},
		"supplier_name":   map[string]any{"type": "string", "minLength": 1},
		"supplier_tax_id": map[string]any{"type": "string"},
		"customer_name":   map[string]any{"type": "string"},
		"tax_base":        moneyProp(),
		"tax_total":       moneyProp(),
		"grand_total":     moneyProp(),
		"currency":        map[string]any{"type": "string", "minLength": 3, "maxLength": 3},
		"items":           map[string]any{"type": "array", "items": item},
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             []string{"supplier_name", "tax_base", "grand_total"},
	}
}

func moneyProp() map[string]any {
	return map[string]any{"type": "string", "pattern": moneyPattern}
}

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
