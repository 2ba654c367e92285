package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const DefaultInvoiceNumberTemplate = "{SCHOOL}-{YYYY}{MM}-{SEQ5}"

// FeePolicy holds the tunable invoicing rules.
type FeePolicy struct {
	// FullPaymentDiscountPercent applies only to the "full" payment plan.
	FullPaymentDiscountPercent decimal.Decimal `mapstructure:"-"`
	DiscountPercentRaw         string          `mapstructure:"fullPaymentDiscountPercent"`
	DefaultDueDays             int             `mapstructure:"defaultDueDays"`
	InvoiceNumberTemplate      string          `mapstructure:"invoiceNumberTemplate"`
}

func DefaultFeePolicy() FeePolicy {
	return FeePolicy{
		FullPaymentDiscountPercent: decimal.NewFromInt(5),
		DiscountPercentRaw:         "5",
		DefaultDueDays:             30,
		InvoiceNumberTemplate:      DefaultInvoiceNumberTemplate,
	}
}

type FeePolicyHolder struct {
	current atomic.Value // holds FeePolicy
}

// NewStaticFeePolicyHolder returns a holder that never reloads.
func NewStaticFeePolicyHolder(policy FeePolicy) *FeePolicyHolder {
	holder := &FeePolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func NewFeePolicyHolder() (*FeePolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("feepolicy")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/schoolfee")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SCHOOLFEE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultFeePolicy()
	v.SetDefault("fees.fullPaymentDiscountPercent", defaults.DiscountPercentRaw)
	v.SetDefault("fees.defaultDueDays", defaults.DefaultDueDays)
	v.SetDefault("fees.invoiceNumberTemplate", defaults.InvoiceNumberTemplate)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	policy, err := decodeFeePolicy(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticFeePolicyHolder(policy)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeFeePolicy(v)
		if err != nil {
			log.Printf("[fee-policy] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[fee-policy] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *FeePolicyHolder) Get() FeePolicy {
	return h.current.Load().(FeePolicy)
}

func decodeFeePolicy(v *viper.Viper) (FeePolicy, error) {
	var policy FeePolicy
	if err := v.UnmarshalKey("fees", &policy); err != nil {
		return FeePolicy{}, err
	}
	pct, err := decimal.NewFromString(strings.TrimSpace(policy.DiscountPercentRaw))
	if err != nil {
		return FeePolicy{}, errors.New("fees.fullPaymentDiscountPercent must be a number")
	}
	policy.FullPaymentDiscountPercent = pct
	if err := validateFeePolicy(policy); err != nil {
		return FeePolicy{}, err
	}
	return policy, nil
}

func validateFeePolicy(policy FeePolicy) error {
	if policy.FullPaymentDiscountPercent.IsNegative() || policy.FullPaymentDiscountPercent.GreaterThan(decimal.NewFromInt(100)) {
		return errors.New("fees.fullPaymentDiscountPercent must be between 0 and 100")
	}
	if policy.DefaultDueDays < 0 {
		return errors.New("fees.defaultDueDays cannot be negative")
	}
	if strings.TrimSpace(policy.InvoiceNumberTemplate) == "" {
		return errors.New("fees.invoiceNumberTemplate cannot be empty")
	}
	return nil
}
