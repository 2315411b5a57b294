package order

import (
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/samber/mo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/suiperp/pkg/crypto"
)

const (
	testMnemonic = "lawsuit pony abuse faint call ship attract slender arrange expire despair orbit"
	testMaker    = "0x91d2d00d0e6fa27b1bd3b424907be956632602d9027d50059104057870ff7eda"
	testMarket   = "0x3cf09d732b53b4270cab290e1c2a6fbd2f7ac8c1f205be90a302d7da23646801"

	goldenOrderHex = "000000000000005ff675c114147c0000000000000000000000470de4df82000000000000000000003782dace9d900000000000000000000000062e339e9eae2300000195a5a96f9991d2d00d0e6fa27b1bd3b424907be956632602d9027d50059104057870ff7eda3cf09d732b53b4270cab290e1c2a6fbd2f7ac8c1f205be90a302d7da2364680118426c756566696e"
	goldenOrderHash = "d2b29953ac8761a69a2f56c83d1c60dce2bbcca367d3b8560f88f16473a6934c"
	goldenOrderSig  = "25bc2557eeefa15d17bec53adc707eec42ddbff276fa64acf6ef25035aa1d8f5d2eb934d551199e3d626bdab4be4cb7adc71b00c6d49b4b799b45c8757d65e0a1"
)

func mustU256(t *testing.T, dec string) *uint256.Int {
	t.Helper()
	v, err := uint256.FromDecimal(dec)
	require.NoError(t, err)
	return v
}

func goldenOrder(t *testing.T) *Order {
	return &Order{
		Market:        testMarket,
		IsBuy:         true,
		Price:         mustU256(t, "1770200000000000000000"),
		Quantity:      mustU256(t, "20000000000000000"),
		Leverage:      mustU256(t, "4000000000000000000"),
		Maker:         testMaker,
		OrderbookOnly: true,
		Expiration:    1742241099673,
		Salt:          uint256.NewInt(1739649099673123),
	}
}

func TestEncodeGolden(t *testing.T) {
	o := goldenOrder(t)

	buf, err := o.Encode()
	require.NoError(t, err)
	assert.Len(t, buf, EncodedSize)
	assert.Equal(t, goldenOrderHex, hex.EncodeToString(buf))

	hash, err := o.HashHex()
	require.NoError(t, err)
	assert.Equal(t, goldenOrderHash, hash)
}

func TestEncodeDeterministic(t *testing.T) {
	a, err := goldenOrder(t).Encode()
	require.NoError(t, err)
	b, err := goldenOrder(t).Encode()
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestFlags(t *testing.T) {
	tests := []struct {
		name string
		set  func(o *Order)
		want byte
	}{
		{"none", func(o *Order) {}, 0x00},
		{"ioc", func(o *Order) { o.IOC = true }, 0x01},
		{"postOnly", func(o *Order) { o.PostOnly = true }, 0x02},
		{"reduceOnly", func(o *Order) { o.ReduceOnly = true }, 0x04},
		{"isBuy", func(o *Order) { o.IsBuy = true }, 0x08},
		{"orderbookOnly", func(o *Order) { o.OrderbookOnly = true }, 0x10},
		{"all", func(o *Order) {
			o.IOC, o.PostOnly, o.ReduceOnly, o.IsBuy, o.OrderbookOnly = true, true, true, true, true
		}, 0x1f},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := goldenOrder(t)
			o.IsBuy, o.OrderbookOnly = false, false
			tt.set(o)

			buf, err := o.Encode()
			require.NoError(t, err)
			assert.Equal(t, tt.want, buf[EncodedSize-len(Tag)-1])
			assert.Equal(t, Tag, string(buf[EncodedSize-len(Tag):]))
		})
	}
}

func TestFlagsAllCombinations(t *testing.T) {
	for mask := 0; mask < 32; mask++ {
		o := goldenOrder(t)
		o.IOC = mask&1 != 0
		o.PostOnly = mask&2 != 0
		o.ReduceOnly = mask&4 != 0
		o.IsBuy = mask&8 != 0
		o.OrderbookOnly = mask&16 != 0

		buf, err := o.Encode()
		require.NoError(t, err)
		assert.Equal(t, byte(mask), buf[EncodedSize-len(Tag)-1], "mask %05b", mask)
		assert.Equal(t, Flags(mask), o.Flags())
	}
}

func TestEncodeRejectsOverflow(t *testing.T) {
	o := goldenOrder(t)
	o.Price = new(uint256.Int).Lsh(uint256.NewInt(1), 128)

	_, err := o.Encode()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEncoding)

	var encErr *EncodingError
	require.True(t, errors.As(err, &encErr))
	assert.Equal(t, "price", encErr.Field)

	o = goldenOrder(t)
	o.Salt = nil
	_, err = o.Encode()
	assert.ErrorIs(t, err, ErrEncoding)
}

func TestEncodeAddresses(t *testing.T) {
	o := goldenOrder(t)
	o.Market = "0x" + hex.EncodeToString(make([]byte, 33))
	_, err := o.Encode()
	assert.ErrorIs(t, err, ErrEncoding)

	o = goldenOrder(t)
	o.Maker = "0xabc"
	buf, err := o.Encode()
	require.NoError(t, err)
	maker := buf[72:104]
	assert.Equal(t, byte(0x0a), maker[30])
	assert.Equal(t, byte(0xbc), maker[31])

	o.Maker = "0xzz"
	_, err = o.Encode()
	assert.ErrorIs(t, err, ErrEncoding)
}

func TestSignGolden(t *testing.T) {
	keys, err := crypto.FromMnemonic(testMnemonic)
	require.NoError(t, err)

	o := goldenOrder(t)
	sig, err := o.Sign(keys)
	require.NoError(t, err)
	assert.Equal(t, goldenOrderSig, sig)
	assert.True(t, o.Verify(keys.PublicKey(), sig+keys.PublicKeyBase64()))

	o.Salt = uint256.NewInt(1)
	assert.False(t, o.Verify(keys.PublicKey(), sig))
}

func TestCancellationGolden(t *testing.T) {
	keys, err := crypto.FromMnemonic(testMnemonic)
	require.NoError(t, err)

	digest, err := EncodeCancellation([]string{"0xabc"})
	require.NoError(t, err)
	assert.Equal(t, "0b501637269e25dcfbbd3f3f2799c066eec0b4d065fca53d673667882f0383aa", hex.EncodeToString(digest[:]))

	sig, err := SignCancellation(keys, []string{"0xabc"})
	require.NoError(t, err)
	assert.Equal(t, "8d35516260909d4751961b95dbcea5683da298cdd44a0fa017ef71a63fea1247a168a9be48fbd2417128a9f3394917c989adbd8d597b77f39d09a356ef2008061", sig)
}

func TestCancellationOrderSensitive(t *testing.T) {
	ab, err := EncodeCancellation([]string{"0xabc", "0xdef"})
	require.NoError(t, err)
	ba, err := EncodeCancellation([]string{"0xdef", "0xabc"})
	require.NoError(t, err)

	assert.Equal(t, "343db9b4bf9c3981a4857ed83e067a6f2ee19dd44de0919880a11435d962bf2f", hex.EncodeToString(ab[:]))
	assert.Equal(t, "0709c42bc608c12eaad72e23fe56f81faf07ab327073c23b94895c52516eec7b", hex.EncodeToString(ba[:]))
	assert.NotEqual(t, ab, ba)

	_, err = EncodeCancellation(nil)
	assert.ErrorIs(t, err, ErrEmptyCancellation)
}

func TestOnboardingGolden(t *testing.T) {
	keys, err := crypto.FromMnemonic(testMnemonic)
	require.NoError(t, err)

	sig, err := SignOnboarding(keys, "https://testnet.bluefin.io")
	require.NoError(t, err)
	assert.Equal(t, "3e99bdbddbc04fd974427886b802bd68c6c8d3acce78f9b16ffde2fc8d43fe403e5a2773b1f292a6471046064232637875b3a4a8e9d4d0de4e4573a6fc66370e1", sig)

	long := make([]byte, 300)
	for i := range long {
		long[i] = 'a'
	}
	_, err = EncodeOnboarding(string(long))
	assert.ErrorIs(t, err, ErrEncoding)
}

func TestRequestBuild(t *testing.T) {
	now := time.UnixMilli(1739649099673)

	t.Run("limit defaults", func(t *testing.T) {
		req := Request{
			Symbol:   "ETH-PERP",
			Market:   testMarket,
			Side:     SideBuy,
			Type:     TypeLimit,
			Price:    decimal.RequireFromString("1770.2"),
			Quantity: decimal.RequireFromString("0.02"),
			Leverage: mo.Some(decimal.NewFromInt(4)),
		}
		o, err := req.Build(now, "0x91D2D00D0E6FA27B1BD3B424907BE956632602D9027D50059104057870FF7EDA")
		require.NoError(t, err)

		assert.Equal(t, "1770200000000000000000", o.Price.Dec())
		assert.Equal(t, "20000000000000000", o.Quantity.Dec())
		assert.Equal(t, "4000000000000000000", o.Leverage.Dec())
		assert.Equal(t, testMaker, o.Maker)
		assert.True(t, o.OrderbookOnly)
		assert.True(t, o.IsBuy)
		assert.False(t, o.IOC)
		assert.Equal(t, uint64(now.Add(LimitExpiry).UnixMilli()), o.Expiration)
		assert.NotNil(t, o.Salt)
	})

	t.Run("market order expires in a minute", func(t *testing.T) {
		req := Request{
			Market:   testMarket,
			Side:     SideSell,
			Type:     TypeMarket,
			Price:    decimal.Zero,
			Quantity: decimal.NewFromInt(1),
			Salt:     mo.Some(uint64(42)),
		}
		o, err := req.Build(now, testMaker)
		require.NoError(t, err)
		assert.Equal(t, uint64(now.Add(MarketExpiry).UnixMilli()), o.Expiration)
		assert.Equal(t, "1000000000000000000", o.Leverage.Dec())
		assert.Equal(t, uint64(42), o.Salt.Uint64())
		assert.False(t, o.IsBuy)
	})

	t.Run("ioc and time in force are linked", func(t *testing.T) {
		req := Request{TimeInForce: mo.Some(TimeInForceIOC)}.Normalized()
		assert.True(t, req.IOC)

		req = Request{IOC: true}.Normalized()
		tif, ok := req.TimeInForce.Get()
		assert.True(t, ok)
		assert.Equal(t, TimeInForceIOC, tif)
	})

	t.Run("past expiration rejected", func(t *testing.T) {
		req := Request{
			Market:     testMarket,
			Side:       SideBuy,
			Type:       TypeLimit,
			Price:      decimal.NewFromInt(1),
			Quantity:   decimal.NewFromInt(1),
			Expiration: mo.Some(uint64(now.UnixMilli())),
		}
		_, err := req.Build(now, testMaker)
		assert.ErrorIs(t, err, ErrExpired)
	})

	t.Run("missing market", func(t *testing.T) {
		_, err := Request{Side: SideBuy}.Build(now, testMaker)
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("negative quantity", func(t *testing.T) {
		req := Request{Market: testMarket, Side: SideBuy, Price: decimal.NewFromInt(1), Quantity: decimal.NewFromInt(-1)}
		_, err := req.Build(now, testMaker)
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})
}

func TestScaling(t *testing.T) {
	v, err := ToUSDCBase(decimal.RequireFromString("12.5"))
	require.NoError(t, err)
	assert.Equal(t, "12500000", v.Dec())

	v, err = ToSuiBase(decimal.RequireFromString("0.000000001"))
	require.NoError(t, err)
	assert.Equal(t, "1", v.Dec())

	_, err = ToUSDCBase(decimal.RequireFromString("0.0000001"))
	assert.Error(t, err)

	assert.True(t, decimal.RequireFromString("1770.2").Equal(FromBase18(mustU256(t, "1770200000000000000000"))))
	assert.True(t, FromUSDCBase(nil).IsZero())
}
