package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFeePolicyDefaults(t *testing.T) {
	v := viper.New()
	v.SetDefault("fees.fullPaymentDiscountPercent", "5")
	v.SetDefault("fees.defaultDueDays", 30)
	v.SetDefault("fees.invoiceNumberTemplate", DefaultInvoiceNumberTemplate)

	policy, err := decodeFeePolicy(v)
	require.NoError(t, err)
	assert.True(t, policy.FullPaymentDiscountPercent.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, 30, policy.DefaultDueDays)
}

func TestDecodeFeePolicyFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "feepolicy.yml")
	require.NoError(t, os.WriteFile(path, []byte("fees:\n  fullPaymentDiscountPercent: \"7.5\"\n  defaultDueDays: 14\n  invoiceNumberTemplate: \"FEE-{SEQ4}\"\n"), 0o600))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	policy, err := decodeFeePolicy(v)
	require.NoError(t, err)
	assert.Equal(t, "7.5", policy.FullPaymentDiscountPercent.String())
	assert.Equal(t, 14, policy.DefaultDueDays)
	assert.Equal(t, "FEE-{SEQ4}", policy.InvoiceNumberTemplate)
}

func TestValidateFeePolicyRejectsOutOfRangeDiscount(t *testing.T) {
	policy := DefaultFeePolicy()
	policy.FullPaymentDiscountPercent = decimal.NewFromInt(101)
	assert.Error(t, validateFeePolicy(policy))

	policy = DefaultFeePolicy()
	policy.InvoiceNumberTemplate = " "
	assert.Error(t, validateFeePolicy(policy))
}

func TestGetenvHelpers(t *testing.T) {
	t.Setenv("SCHOOLFEE_TEST_BOOL", "yes")
	t.Setenv("SCHOOLFEE_TEST_DURATION", "90s")
	assert.True(t, getenvBool("SCHOOLFEE_TEST_BOOL", false))
	assert.Equal(t, "1m30s", getenvDuration("SCHOOLFEE_TEST_DURATION", 0).String())
	assert.Equal(t, []string{"a", "b"}, parseList(" a, ,b "))
}
