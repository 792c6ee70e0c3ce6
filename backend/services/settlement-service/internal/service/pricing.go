package service

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"coursepay/backend/services/settlement-service/internal/errs"
	"coursepay/backend/services/settlement-service/internal/models"
)

// moneyPlaces is the precision of every charged or credited amount.
const moneyPlaces = 2

// PricingConfig holds the rates used by Pricer. ExchangeRate is listed units
// per settlement unit.
type PricingConfig struct {
	SettlementCurrency string
	ListedCurrency     string
	ExchangeRate       decimal.Decimal
	FeeRate            decimal.Decimal
	CommissionRate     decimal.Decimal
}

// Pricer converts listed prices to the settlement currency and splits revenue.
// It has no state beyond its configuration.
type Pricer struct {
	cfg PricingConfig
}

// NewPricer returns a pricer for cfg. Currencies are compared case-insensitively.
func NewPricer(cfg PricingConfig) *Pricer {
	cfg.SettlementCurrency = strings.ToUpper(strings.TrimSpace(cfg.SettlementCurrency))
	cfg.ListedCurrency = strings.ToUpper(strings.TrimSpace(cfg.ListedCurrency))
	return &Pricer{cfg: cfg}
}

// SettlementCurrency returns the gateway currency.
func (p *Pricer) SettlementCurrency() string {
	return p.cfg.SettlementCurrency
}

// Quote converts listedAmount into the settlement currency and adds the gateway
// fee. Only SettlementAmount and GatewayFee are rounded (half-up, 2 places);
// TotalCharged is their sum so the invariant holds exactly.
func (p *Pricer) Quote(listedAmount decimal.Decimal, listedCurrency string) (models.PriceQuote, error) {
	if !listedAmount.IsPositive() {
		return models.PriceQuote{}, fmt.Errorf("quote %s: %w", listedAmount.String(), errs.ErrInvalidAmount)
	}

	currency := strings.ToUpper(strings.TrimSpace(listedCurrency))
	rate, err := p.rateFor(currency)
	if err != nil {
		return models.PriceQuote{}, err
	}

	settlementExact := listedAmount.Div(rate)
	feeExact := settlementExact.Mul(p.cfg.FeeRate)

	settlement := roundMoney(settlementExact)
	fee := roundMoney(feeExact)

	return models.PriceQuote{
		ListedAmount:       listedAmount,
		ListedCurrency:     currency,
		SettlementAmount:   settlement,
		SettlementCurrency: p.cfg.SettlementCurrency,
		ExchangeRate:       rate,
		FeeRate:            p.cfg.FeeRate,
		GatewayFee:         fee,
		TotalCharged:       settlement.Add(fee),
	}, nil
}

// Split returns the instructor share and platform commission of a listed
// amount. The gateway fee is paid by the buyer and is not part of either.
func (p *Pricer) Split(listedAmount decimal.Decimal) (share, commission decimal.Decimal) {
	share = roundMoney(listedAmount.Mul(decimal.NewFromInt(1).Sub(p.cfg.CommissionRate)))
	return share, listedAmount.Sub(share)
}

func (p *Pricer) rateFor(currency string) (decimal.Decimal, error) {
	switch currency {
	case p.cfg.SettlementCurrency:
		return decimal.NewFromInt(1), nil
	case p.cfg.ListedCurrency:
		if !p.cfg.ExchangeRate.IsPositive() {
			return decimal.Zero, fmt.Errorf("exchange rate for %s: %w", currency, errs.ErrConfiguration)
		}
		return p.cfg.ExchangeRate, nil
	default:
		return decimal.Zero, fmt.Errorf("quote in %q: %w", currency, errs.ErrInvalidCurrency)
	}
}

// roundMoney rounds half away from zero, which is half-up for the positive
// amounts handled here.
func roundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(moneyPlaces)
}
