package order

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/holiman/uint256"
	"github.com/samber/mo"
	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

type Type string

const (
	TypeLimit      Type = "LIMIT"
	TypeMarket     Type = "MARKET"
	TypeStopMarket Type = "STOP_MARKET"
	TypeStopLimit  Type = "STOP_LIMIT"
)

type TimeInForce string

const (
	TimeInForceIOC TimeInForce = "IOC"
	TimeInForceGTT TimeInForce = "GTT"
)

// Default expirations relative to creation time
const (
	MarketExpiry = time.Minute
	LimitExpiry  = 30 * 24 * time.Hour
)

var (
	ErrInvalidRequest = errors.New("invalid order request")
	ErrExpired        = errors.New("order expiration is not in the future")
)

// Request describes an order in human units. Optional fields fall back to exchange defaults in Build.
type Request struct {
	Symbol         string
	Market         string // perpetual object id
	Side           Side
	Type           Type
	Price          decimal.Decimal
	Quantity       decimal.Decimal
	Leverage       mo.Option[decimal.Decimal]
	Maker          mo.Option[string]
	ReduceOnly     bool
	PostOnly       bool
	CancelOnRevert bool
	OrderbookOnly  mo.Option[bool]
	IOC            bool
	TimeInForce    mo.Option[TimeInForce]
	Expiration     mo.Option[uint64] // unix ms
	Salt           mo.Option[uint64]
	TriggerPrice   mo.Option[decimal.Decimal]
	ClientID       mo.Option[string]
}

// Normalized links IOC and TimeInForce: either one implies the other
func (r Request) Normalized() Request {
	if r.IOC {
		r.TimeInForce = mo.Some(TimeInForceIOC)
	}
	if tif, ok := r.TimeInForce.Get(); ok && tif == TimeInForceIOC {
		r.IOC = true
	}
	return r
}

// Build scales the request and fills defaults. defaultMaker is used when Maker is unset.
func (r Request) Build(now time.Time, defaultMaker string) (*Order, error) {
	r = r.Normalized()

	if r.Market == "" {
		return nil, fmt.Errorf("%w: market id is required", ErrInvalidRequest)
	}
	if r.Side != SideBuy && r.Side != SideSell {
		return nil, fmt.Errorf("%w: unknown side %q", ErrInvalidRequest, r.Side)
	}

	price, err := ToBase18(r.Price)
	if err != nil {
		return nil, fmt.Errorf("%w: price: %v", ErrInvalidRequest, err)
	}
	qty, err := ToBase18(r.Quantity)
	if err != nil {
		return nil, fmt.Errorf("%w: quantity: %v", ErrInvalidRequest, err)
	}
	leverage, err := ToBase18(r.Leverage.OrElse(decimal.NewFromInt(1)))
	if err != nil {
		return nil, fmt.Errorf("%w: leverage: %v", ErrInvalidRequest, err)
	}

	expiration := r.Expiration.OrElse(DefaultExpiration(r.Type, now))
	if expiration <= uint64(now.UnixMilli()) {
		return nil, fmt.Errorf("%w: %d <= %d", ErrExpired, expiration, now.UnixMilli())
	}

	salt, ok := r.Salt.Get()
	if !ok {
		if salt, err = randomSalt(now); err != nil {
			return nil, err
		}
	}

	return &Order{
		Market:        r.Market,
		IsBuy:         r.Side == SideBuy,
		Price:         price,
		Quantity:      qty,
		Leverage:      leverage,
		Maker:         strings.ToLower(r.Maker.OrElse(defaultMaker)),
		ReduceOnly:    r.ReduceOnly,
		PostOnly:      r.PostOnly,
		OrderbookOnly: r.OrderbookOnly.OrElse(true),
		IOC:           r.IOC,
		Expiration:    expiration,
		Salt:          uint256.NewInt(salt),
	}, nil
}

// DefaultExpiration is now + 1 minute for market orders and now + 30 days otherwise, in ms
func DefaultExpiration(t Type, now time.Time) uint64 {
	if t == TypeMarket {
		return uint64(now.Add(MarketExpiry).UnixMilli())
	}
	return uint64(now.Add(LimitExpiry).UnixMilli())
}

func randomSalt(now time.Time) (uint64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("failed to generate salt: %w", err)
	}
	return uint64(now.UnixMilli())*1000 + binary.BigEndian.Uint64(b[:])%1000000, nil
}
