package httpx

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeJSONReadsBody(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"acme"}`))
	var target struct {
		Name string `json:"name"`
	}
	require.NoError(t, DecodeJSON(r, &target))
	require.Equal(t, "acme", target.Name)
}

func TestDecodeJSONCapsOversizedBody(t *testing.T) {
	big := `{"name":"` + strings.Repeat("a", maxBodyBytes) + `"}`
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))
	var target struct {
		Name string `json:"name"`
	}
	require.Error(t, DecodeJSON(r, &target))
}
