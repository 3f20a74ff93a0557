package middleware

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
)

// decodeError はレスポンスボディをErrorResponseにデコードするヘルパー関数。
func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()

	var body ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("レスポンスボディのパースに失敗: %v, body=%s", err, w.Body.String())
	}
	return body
}
