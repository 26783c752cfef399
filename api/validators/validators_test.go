package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/gamehost-backend/pkg/errors"
)

type orderBody struct {
	PackageID  string `json:"package_id" validate:"required,uuid"`
	ServerName string `json:"server_name" validate:"required,min=3,max=64,servername"`
}

func decode(t *testing.T, body string) (orderBody, error) {
	t.Helper()
	var dest orderBody
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	return dest, DecodeJSONBody(req, &dest)
}

func TestDecodeJSONBodyAcceptsValidPayload(t *testing.T) {
	id := uuid.NewString()
	dest, err := decode(t, `{"package_id":"`+id+`","server_name":"My Server_01"}`)
	require.NoError(t, err)
	assert.Equal(t, "My Server_01", dest.ServerName)
}

func TestDecodeJSONBodyRejectsBadServerName(t *testing.T) {
	_, err := decode(t, `{"package_id":"`+uuid.NewString()+`","server_name":"rm -rf /"}`)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	assert.Contains(t, details, "server_name")
}

func TestDecodeJSONBodyRejectsUnknownFieldsAndShortNames(t *testing.T) {
	_, err := decode(t, `{"package_id":"`+uuid.NewString()+`","server_name":"ok","extra":1}`)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = decode(t, `{"package_id":"`+uuid.NewString()+`","server_name":"ab"}`)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestParseUUIDParam(t *testing.T) {
	id := uuid.New()
	rc := chi.NewRouteContext()
	rc.URLParams.Add("orderId", id.String())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))

	got, err := ParseUUIDParam(req, "orderId")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = ParseUUIDParam(req, "serverId")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestDecodeJSONBodyRejectsMalformedInput(t *testing.T) {
	cases := map[string]string{
		"empty":    ``,
		"syntax":   `{"package_id":`,
		"trailing": `{"package_id":"` + uuid.NewString() + `","server_name":"alpha"}{}`,
		"type":     `{"package_id":42,"server_name":"alpha"}`,
	}
	for name, body := range cases {
		_, err := decode(t, body)
		assert.Truef(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "%s: got %v", name, err)
	}

	_, err := decode(t, `{"package_id":"`+uuid.NewString()+`","server_name":"alpha","coupon":"x"}`)
	details, ok := pkgerrors.As(err).Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "is not allowed", details["coupon"])
}

func TestDecodeJSONBodyChecksContentType(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "text/plain")
	var dest orderBody
	assert.True(t, pkgerrors.IsCode(DecodeJSONBody(req, &dest), pkgerrors.CodeValidation))
}

func TestDecodeJSONBodyEnforcesSizeLimit(t *testing.T) {
	big := `{"package_id":"` + strings.Repeat("a", MaxBodyBytes) + `"}`
	_, err := decode(t, big)
	require.Error(t, err)
	assert.Contains(t, pkgerrors.As(err).Message(), "exceeds")
}

type priced struct {
	Price decimal.Decimal `json:"price" validate:"gte=0"`
}

func TestValidateStructHandlesDecimals(t *testing.T) {
	assert.NoError(t, ValidateStruct(&priced{Price: decimal.RequireFromString("9.99")}))
	err := ValidateStruct(&priced{Price: decimal.NewFromInt(-1)})
	details, ok := pkgerrors.As(err).Details().(map[string]string)
	require.True(t, ok)
	assert.Contains(t, details["price"], "greater than or equal")
}
