package contracts

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/holiman/uint256"

	"github.com/uhyunpark/suiperp/pkg/sui"
)

// Kind is the closed set of on-chain modules a client calls into
type Kind int

const (
	Exchange Kind = iota
	MarginBank
	Roles
	Gateway
)

func (k Kind) Module() string {
	switch k {
	case Exchange:
		return "exchange"
	case MarginBank:
		return "margin_bank"
	case Roles:
		return "roles"
	case Gateway:
		return "gateway"
	default:
		return "unknown"
	}
}

func (k Kind) String() string { return k.Module() }

// Call is a fully resolved entry function invocation. Values come only from Builder methods.
type Call struct {
	kind     Kind
	pkg      string
	function string
	typeArgs []string
	args     []any
}

func (c Call) Kind() Kind         { return c.kind }
func (c Call) Function() string   { return c.function }
func (c Call) Arguments() []any   { return append([]any(nil), c.args...) }
func (c Call) TypeArgs() []string { return append([]string(nil), c.typeArgs...) }

// MoveCall converts the call into a node build request for signer
func (c Call) MoveCall(signer string, gasBudget uint64) sui.MoveCall {
	return sui.MoveCall{
		Signer:        signer,
		Package:       c.pkg,
		Module:        c.kind.Module(),
		Function:      c.function,
		TypeArguments: c.TypeArgs(),
		Arguments:     c.Arguments(),
		GasBudget:     gasBudget,
	}
}

var errNoRFQ = errors.New("rfq contract addresses not configured")

// Builder produces typed calls against a set of contract addresses
type Builder struct {
	addrs *Addresses
	rfq   *RFQAddresses
	salt  func() (string, error)
}

func NewBuilder(addrs *Addresses, rfq *RFQAddresses) *Builder {
	return &Builder{addrs: addrs, rfq: rfq, salt: RandomSalt}
}

// WithSalt replaces the salt source
func (b *Builder) WithSalt(salt func() (string, error)) *Builder {
	cp := *b
	cp.salt = salt
	return &cp
}

func (b *Builder) Addresses() *Addresses { return b.addrs }

// AdjustLeverage builds exchange::adjust_leverage for account on symbol
func (b *Builder) AdjustLeverage(symbol, account string, leverage *uint256.Int) (Call, error) {
	return b.positionCall(symbol, account, leverage, "adjust_leverage")
}

func (b *Builder) AddMargin(symbol, account string, amount *uint256.Int) (Call, error) {
	return b.positionCall(symbol, account, amount, "add_margin")
}

func (b *Builder) RemoveMargin(symbol, account string, amount *uint256.Int) (Call, error) {
	return b.positionCall(symbol, account, amount, "remove_margin")
}

func (b *Builder) positionCall(symbol, account string, value *uint256.Int, function string) (Call, error) {
	if b.addrs == nil {
		return Call{}, errors.New("exchange contract addresses not configured")
	}
	m, err := b.addrs.Market(symbol)
	if err != nil {
		return Call{}, err
	}
	if value == nil {
		return Call{}, fmt.Errorf("%s: missing value", function)
	}
	args := []any{
		sui.ClockObjectID,
		m.Perpetual,
		b.addrs.Bank,
		b.addrs.SubAccounts,
		b.addrs.Sequencer,
		m.PriceOracle,
		account,
		value.Dec(),
	}
	salt, err := b.salt()
	if err != nil {
		return Call{}, err
	}
	hash, err := SaltedHash(append(append([]any(nil), args...), salt))
	if err != nil {
		return Call{}, err
	}
	return Call{
		kind:     Exchange,
		pkg:      b.addrs.Package,
		function: function,
		typeArgs: []string{b.addrs.CurrencyType},
		args:     append(args, hash),
	}, nil
}

// DepositToBank builds margin_bank::deposit_to_bank of amount (USDC base units) from coinID
func (b *Builder) DepositToBank(account string, amount uint64, coinID string) (Call, error) {
	return b.bankCall("deposit_to_bank", account, strconv.FormatUint(amount, 10), coinID)
}

func (b *Builder) WithdrawFromBank(account string, amount uint64) (Call, error) {
	return b.bankCall("withdraw_from_bank", account, strconv.FormatUint(amount, 10))
}

func (b *Builder) WithdrawAllFromBank(account string) (Call, error) {
	return b.bankCall("withdraw_all_margin_from_bank", account)
}

// bankCall lays out [bank, sequencer, hash, account, extra...] where hash covers the list with the salt in its slot
func (b *Builder) bankCall(function, account string, extra ...string) (Call, error) {
	if b.addrs == nil {
		return Call{}, errors.New("exchange contract addresses not configured")
	}
	salt, err := b.salt()
	if err != nil {
		return Call{}, err
	}
	args := []any{b.addrs.Bank, b.addrs.Sequencer, salt, account}
	for _, e := range extra {
		args = append(args, e)
	}
	hash, err := SaltedHash(args)
	if err != nil {
		return Call{}, err
	}
	args[2] = hash
	return Call{
		kind:     MarginBank,
		pkg:      b.addrs.Package,
		function: function,
		typeArgs: []string{b.addrs.CurrencyType},
		args:     args,
	}, nil
}

// SetSubAccount builds roles::set_sub_account granting or revoking sub
func (b *Builder) SetSubAccount(sub string, status bool) (Call, error) {
	if b.addrs == nil {
		return Call{}, errors.New("exchange contract addresses not configured")
	}
	return Call{
		kind:     Roles,
		pkg:      b.addrs.Package,
		function: "set_sub_account",
		args:     []any{b.addrs.SubAccounts, sub, status},
	}, nil
}

func (b *Builder) CreateVault(manager string) (Call, error) {
	if b.rfq == nil {
		return Call{}, errNoRFQ
	}
	return b.gateway("create_rfq_vault", nil, b.rfq.ProtocolConfig, manager), nil
}

func (b *Builder) VaultDeposit(vault, coinID, coinType string) (Call, error) {
	if b.rfq == nil {
		return Call{}, errNoRFQ
	}
	return b.gateway("deposit", []string{coinType}, vault, b.rfq.ProtocolConfig, coinID), nil
}

func (b *Builder) VaultWithdraw(vault string, amount uint64, coinType string) (Call, error) {
	if b.rfq == nil {
		return Call{}, errNoRFQ
	}
	return b.gateway("withdraw", []string{coinType}, vault, b.rfq.ProtocolConfig, strconv.FormatUint(amount, 10)), nil
}

func (b *Builder) SetVaultManager(vault, manager string) (Call, error) {
	if b.rfq == nil {
		return Call{}, errNoRFQ
	}
	return b.gateway("set_manager", nil, vault, b.rfq.ProtocolConfig, manager), nil
}

func (b *Builder) UpdateMinDeposit(vault, coinType string, minAmount uint64) (Call, error) {
	if b.rfq == nil {
		return Call{}, errNoRFQ
	}
	return b.gateway("update_min_deposit", []string{coinType}, vault, b.rfq.ProtocolConfig, strconv.FormatUint(minAmount, 10)), nil
}

func (b *Builder) SupportCoin(vault, coinType string, minAmount uint64) (Call, error) {
	if b.rfq == nil {
		return Call{}, errNoRFQ
	}
	return b.gateway("support_coin", []string{coinType}, vault, b.rfq.ProtocolConfig, strconv.FormatUint(minAmount, 10)), nil
}

func (b *Builder) gateway(function string, typeArgs []string, args ...any) Call {
	return Call{kind: Gateway, pkg: b.rfq.Package, function: function, typeArgs: typeArgs, args: args}
}

// SaltedHash is hex(sha256(compact JSON of args))
func SaltedHash(args []any) (string, error) {
	b, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("failed to encode call arguments: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// RandomSalt returns a random decimal string
func RandomSalt() (string, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	return strconv.FormatUint(binary.BigEndian.Uint64(buf[:]), 10), nil
}
