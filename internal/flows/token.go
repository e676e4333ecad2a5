package flows

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/sungrid/leadflow/internal/models"
)

// UnknownPhone is the sentinel returned when a flow token cannot be decoded.
// It always fails phone validation, so tokenless submissions are rejected
// before anything is persisted.
const UnknownPhone = "unknown"

// FlowToken is minted at launch time and echoed back by the Flow runtime on
// every data-exchange call. It is the only link between a submission and the
// customer it came from.
type FlowToken struct {
	Phone    string          `json:"phone"`
	FlowType models.FlowKind `json:"flow_type"`
	IssuedAt int64           `json:"issued_at"`
}

// EncodeToken mints a token for a customer and flow kind.
func EncodeToken(phone string, kind models.FlowKind) string {
	tok := FlowToken{Phone: phone, FlowType: kind, IssuedAt: time.Now().Unix()}
	raw, err := json.Marshal(tok)
	if err != nil {
		// FlowToken has no unmarshalable fields; this cannot happen.
		return ""
	}
	return base64.StdEncoding.EncodeToString(raw)
}

// DecodeTokenPhone recovers the customer phone from a flow token. Any decode
// failure yields UnknownPhone rather than an error.
func DecodeTokenPhone(token string) string {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return UnknownPhone
	}
	var tok FlowToken
	if err := json.Unmarshal(raw, &tok); err != nil {
		return UnknownPhone
	}
	if tok.Phone == "" {
		return UnknownPhone
	}
	return tok.Phone
}
