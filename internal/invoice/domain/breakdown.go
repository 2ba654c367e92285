package domain

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/schoolfee/pkg/money"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// FeeEntry is one charged category on a line item.
type FeeEntry struct {
	Category string
	Amount   decimal.Decimal
}

// FeeBreakdown is stored as a JSON object keyed by category. Reads accept the
// flat legacy shape {"Tuition": 35000} and the object shape
// {"Tuition": {"amount": 35000}}; writes always use the object shape.
type FeeBreakdown []FeeEntry

func (b FeeBreakdown) Total() decimal.Decimal {
	amounts := make([]decimal.Decimal, 0, len(b))
	for _, entry := range b {
		amounts = append(amounts, entry.Amount)
	}
	return money.Sum(amounts...)
}

func (b FeeBreakdown) Map() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(b))
	for _, entry := range b {
		out[entry.Category] = money.Round(out[entry.Category].Add(entry.Amount))
	}
	return out
}

// Merged folds entries whose categories differ only in case into the first
// one, keeping order. A JSON object cannot hold the same key twice.
func (b FeeBreakdown) Merged() FeeBreakdown {
	out := make(FeeBreakdown, 0, len(b))
next:
	for _, entry := range b {
		for i := range out {
			if strings.EqualFold(out[i].Category, entry.Category) {
				out[i].Amount = money.Round(out[i].Amount.Add(entry.Amount))
				continue next
			}
		}
		out = append(out, entry)
	}
	return out
}

func (b FeeBreakdown) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, entry := range b.Merged() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(entry.Category)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteString(`:{"amount":`)
		buf.WriteString(money.Format(entry.Amount))
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (b *FeeBreakdown) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*b = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("fee breakdown must be a JSON object")
	}

	out := FeeBreakdown{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		amount, err := parseEntryAmount(raw)
		if err != nil {
			return fmt.Errorf("fee breakdown %q: %w", key, err)
		}
		out = append(out, FeeEntry{Category: key, Amount: amount})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	out = out.Merged()
	*b = out
	return nil
}

func parseEntryAmount(raw json.RawMessage) (decimal.Decimal, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var obj struct {
			Amount json.RawMessage `json:"amount"`
		}
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return decimal.Zero, err
		}
		trimmed = bytes.TrimSpace(obj.Amount)
	}
	value := strings.Trim(string(trimmed), `"`)
	if value == "" || value == "null" {
		return decimal.Zero, nil
	}
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, err
	}
	return money.Round(amount), nil
}

func (b FeeBreakdown) Value() (driver.Value, error) {
	raw, err := b.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func (b *FeeBreakdown) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*b = nil
		return nil
	case []byte:
		return b.UnmarshalJSON(v)
	case string:
		return b.UnmarshalJSON([]byte(v))
	default:
		return fmt.Errorf("unsupported fee breakdown type %T", value)
	}
}

func (FeeBreakdown) GormDataType() string {
	return "json"
}

func (FeeBreakdown) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	switch db.Dialector.Name() {
	case "postgres":
		return "JSONB"
	default:
		return "JSON"
	}
}
