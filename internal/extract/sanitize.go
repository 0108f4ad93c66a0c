package extract

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	headerKeys = map[string]struct{}{
		"invoice_number": {}, "issue_date": {}, "supplier_name": {}, "supplier_tax_id": {},
		"customer_name": {}, "tax_base": {}, "tax_total": {}, "grand_total": {}, "currency": {}, "items": {},
	}
	itemKeys = map[string]struct{}{
		"description": {}, "quantity": {}, "unit_price": {}, "line_total": {},
	}
	headerMoney = []string{"tax_base", "tax_total", "grand_total"}
	itemMoney   = []string{"unit_price", "line_total"}
	headerText  = []string{"invoice_number", "issue_date", "supplier_name", "supplier_tax_id", "customer_name"}
)

// SanitizeInvoiceJSON leniently normalizes a model response before schema validation:
//   - numbers and numeric strings in money fields become two-decimal strings
//   - null and blank values are dropped so optionals are simply absent
//   - unknown keys are removed
//   - currency is upper-cased
//
// It returns the cleaned document and the list of touched keys.
func SanitizeInvoiceJSON(raw []byte, logger *slog.Logger) ([]byte, []string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	dropped := make([]string, 0, 8)
	dropUnknown(m, headerKeys, "", &dropped)

	for _, k := range headerMoney {
		coerceMoney(m, k, "", &dropped)
	}
	for _, k := range headerText {
		trimText(m, k, "", &dropped)
	}
	if v, ok := m["currency"].(string); ok {
		if c := strings.ToUpper(strings.TrimSpace(v)); c != "" {
			m["currency"] = c
		} else {
			delete(m, "currency")
			dropped = append(dropped, "currency(empty)")
		}
	}

	switch items := m["items"].(type) {
	case nil:
		delete(m, "items")
	case []any:
		for i, raw := range items {
			it, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			prefix := fmt.Sprintf("items[%d].", i)
			dropUnknown(it, itemKeys, prefix, &dropped)
			for _, k := range itemMoney {
				coerceMoney(it, k, prefix, &dropped)
			}
			coerceQuantity(it, prefix, &dropped)
			trimText(it, "description", prefix, &dropped)
		}
	default:
		delete(m, "items")
		dropped = append(dropped, "items(type)")
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, dropped, fmt.Errorf("sanitize: encode: %w", err)
	}
	if len(dropped) > 0 {
		logger.Warn("llm.extract.normalize_sanitize", "dropped", dropped)
	}
	return out, dropped, nil
}

func dropUnknown(m map[string]any, allowed map[string]struct{}, prefix string, dropped *[]string) {
	for k := range maps.Clone(m) {
		if _, ok := allowed[k]; !ok {
			delete(m, k)
			*dropped = append(*dropped, prefix+k+"(unknown)")
		}
	}
}

func coerceMoney(m map[string]any, k, prefix string, dropped *[]string) {
	v, ok := m[k]
	if !ok {
		return
	}
	switch t := v.(type) {
	case float64:
		m[k] = decimal.NewFromFloat(t).StringFixed(2)
	case string:
		s := normalizeAmount(t)
		if s == "" || strings.EqualFold(s, "null") {
			delete(m, k)
			*dropped = append(*dropped, prefix+k+"(empty)")
			return
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			delete(m, k)
			*dropped = append(*dropped, prefix+k+"(unparseable)")
			return
		}
		m[k] = d.StringFixed(2)
	case nil:
		delete(m, k)
		*dropped = append(*dropped, prefix+k+"(null)")
	default:
		delete(m, k)
		*dropped = append(*dropped, prefix+k+"(type)")
	}
}

// normalizeAmount turns "1.234,56", "1,234.56" and "21,5" into plain decimal text.
// When both separators appear the last one is the decimal point.
func normalizeAmount(s string) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	dot, comma := strings.LastIndex(s, "."), strings.LastIndex(s, ",")
	switch {
	case dot >= 0 && comma >= 0 && comma > dot:
		s = strings.ReplaceAll(s, ".", "")
	case dot >= 0 && comma >= 0:
		s = strings.ReplaceAll(s, ",", "")
	}
	return strings.ReplaceAll(s, ",", ".")
}

func coerceQuantity(m map[string]any, prefix string, dropped *[]string) {
	switch t := m["quantity"].(type) {
	case float64:
		m["quantity"] = decimal.NewFromFloat(t).String()
	case string:
		if d, err := decimal.NewFromString(strings.TrimSpace(t)); err == nil {
			m["quantity"] = d.String()
		} else {
			m["quantity"] = "1"
			*dropped = append(*dropped, prefix+"quantity(defaulted)")
		}
	case nil:
		m["quantity"] = "1"
		*dropped = append(*dropped, prefix+"quantity(defaulted)")
	}
}

func trimText(m map[string]any, k, prefix string, dropped *[]string) {
	switch t := m[k].(type) {
	case string:
		if s := strings.TrimSpace(t); s != "" {
			m[k] = s
		} else {
			delete(m, k)
			*dropped = append(*dropped, prefix+k+"(empty)")
		}
	case nil:
		if _, present := m[k]; present {
			delete(m, k)
			*dropped = append(*dropped, prefix+k+"(null)")
		}
	}
}
