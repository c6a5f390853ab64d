package vault

import (
	"encoding/json"
	"fmt"
	"net/url"
)

// EncodeBody serializes a substituted request body for delivery, returning
// the payload and its content type. Form encoding expects a flat map; the
// adapters that need nested form fields use bracketed key names.
func EncodeBody(body map[string]any, enc BodyEncoding) ([]byte, string, error) {
	switch enc {
	case EncodingForm:
		values := url.Values{}
		for k, v := range body {
			switch val := v.(type) {
			case string:
				values.Set(k, val)
			case bool:
				values.Set(k, fmt.Sprintf("%t", val))
			case float64:
				values.Set(k, trimFloat(val))
			case int, int64:
				values.Set(k, fmt.Sprintf("%d", val))
			default:
				return nil, "", fmt.Errorf("form encoding: unsupported value type %T for key %q", v, k)
			}
		}
		return []byte(values.Encode()), "application/x-www-form-urlencoded", nil
	case EncodingJSON, "":
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, "", fmt.Errorf("json encoding: %w", err)
		}
		return payload, "application/json", nil
	default:
		return nil, "", fmt.Errorf("unsupported body encoding %q", enc)
	}
}

func trimFloat(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}
