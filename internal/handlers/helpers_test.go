package handlers

import (
	"encoding/json"
	"testing"

	"github.com/dimitrije/teamboard/internal/testutil"
	"github.com/google/uuid"
)

// authAs returns request headers carrying a valid access token for userID.
func authAs(t *testing.T, userID uuid.UUID) map[string]string {
	t.Helper()
	return map[string]string{
		"Authorization": testutil.AuthHeader(testutil.GenerateTestToken(t, userID, "user@example.com")),
	}
}

func decodeJSON(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
