package jimeng

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	internalerrors "github.com/jimeng-relay/storyvideo/internal/errors"
)

// payload is a decoded CV task response. The SDK decodes numbers as float64
// and task ids may arrive as either strings or numbers, so the accessors
// coerce instead of asserting.
type payload map[string]any

func (p payload) str(key string) string {
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// num reads an integer field; anything unparseable reads as 0.
func (p payload) num(key string) int {
	switch v := p[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	case string:
		n, _ := strconv.Atoi(strings.TrimSpace(v))
		return n
	}
	return 0
}

func (p payload) obj(key string) payload {
	m, _ := p[key].(map[string]any)
	return m
}

// result is the business envelope every CV task response carries.
type result struct {
	code      int
	status    int
	message   string
	requestID string
}

func (p payload) result() result {
	return result{code: p.num("code"), status: p.num("status"), message: p.str("message"), requestID: p.str("request_id")}
}

func (r result) empty() bool {
	return r.code == 0 && r.status == 0 && r.message == "" && r.requestID == ""
}

func (r result) err(action string) *internalerrors.Error {
	return codeError(action, r.code, r.status, r.message, r.requestID)
}
