package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONB_RoundTripsThroughDriver(t *testing.T) {
	ids := NewJSONB([]string{"internal_healthcare_api", "legacy_healthcare"})

	value, err := ids.Value()
	require.NoError(t, err)

	var scanned JSONB[[]string]
	require.NoError(t, scanned.Scan(value))
	assert.Equal(t, ids.GetValue(), scanned.GetValue())
}

func TestJSONB_Scan(t *testing.T) {
	var errs JSONB[[]string]
	require.NoError(t, errs.Scan(`["delete resources: timeout"]`))
	assert.Equal(t, []string{"delete resources: timeout"}, errs.Data)

	require.NoError(t, errs.Scan(nil))
	assert.Nil(t, errs.Data)

	assert.Error(t, errs.Scan(42))
}

func TestConnectionConfig_DSN(t *testing.T) {
	cfg := ConnectionConfig{Host: "db", Port: "5432", UserName: "clover", Password: "secret", Name: "clover", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=clover password=secret dbname=clover sslmode=disable", cfg.DSN())
}
