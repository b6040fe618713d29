package settlement

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"

	pkgerrors "github.com/ovasilenko/chatmarket-backend/pkg/errors"
)

// VerifySignature checks the processor's webhook signature: HMAC-SHA512 of
// the body re-serialized with sorted keys, hex encoded. Comparison is
// constant time.
func VerifySignature(body []byte, signature, secret string) error {
	if signature == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "signature header is missing")
	}
	if secret == "" {
		return pkgerrors.New(pkgerrors.CodeInternal, "webhook secret is not configured")
	}

	canonical, err := canonicalizeJSON(body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "webhook body is not valid JSON")
	}

	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(canonical)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return pkgerrors.New(pkgerrors.CodeValidation, "webhook signature mismatch")
	}
	return nil
}

// canonicalizeJSON re-marshals the payload so object keys come out sorted,
// matching what the processor signed. encoding/json emits map keys in sorted
// order.
func canonicalizeJSON(body []byte) ([]byte, error) {
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, err
	}
	return json.Marshal(decoded)
}
