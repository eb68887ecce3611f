package docs

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSwagger(t *testing.T) {
	raw := NewSwagger().MustToJson()

	var doc struct {
		Paths map[string]map[string]any `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))

	for path, method := range map[string]string{
		"/v1/kiosk/enroll":                 "post",
		"/v1/kiosk/verify":                 "post",
		"/v1/kiosk/delete":                 "post",
		"/v1/kiosk/sessions":               "post",
		"/v1/kiosk/sessions/{id}/complete": "post",
		"/v1/kiosk/nearest":                "post",
		"/v1/kiosk/stats":                  "get",
		"/api/users":                       "get",
		"/api/users/by_otp/{otp}":          "get",
		"/api/users/{id}":                  "delete",
	} {
		require.Contains(t, doc.Paths, path)
		assert.Contains(t, doc.Paths[path], method, path)
	}
}
