package contracts

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrUnknownMarket = errors.New("unknown market")

// Addresses holds the exchange object ids a client needs to build calls
type Addresses struct {
	Package      string
	Bank         string
	BankTable    string
	SubAccounts  string
	Sequencer    string
	CurrencyType string
	Markets      map[string]Market
}

// Market holds the per-perpetual object ids
type Market struct {
	Perpetual     string
	PriceOracle   string
	PositionTable string
}

type objectRef struct {
	ID       string `json:"id"`
	DataType string `json:"dataType"`
}

// ParseAddresses reads the exchange contract-address document:
// {"auxiliaryContractsAddresses":{"objects":{...}}, "<SYMBOL>":{"Perpetual":{"id":...},...}}
func ParseAddresses(raw []byte) (*Addresses, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse contract addresses: %w", err)
	}

	auxRaw, ok := doc["auxiliaryContractsAddresses"]
	if !ok {
		return nil, errors.New("contract addresses missing auxiliaryContractsAddresses")
	}
	var aux struct {
		Objects map[string]objectRef `json:"objects"`
	}
	if err := json.Unmarshal(auxRaw, &aux); err != nil {
		return nil, fmt.Errorf("failed to parse auxiliary contracts: %w", err)
	}

	a := &Addresses{
		Package:      aux.Objects["package"].ID,
		Bank:         aux.Objects["Bank"].ID,
		BankTable:    aux.Objects["BankTable"].ID,
		SubAccounts:  aux.Objects["SubAccounts"].ID,
		Sequencer:    aux.Objects["Sequencer"].ID,
		CurrencyType: aux.Objects["Currency"].DataType,
		Markets:      make(map[string]Market),
	}
	if a.Package == "" {
		return nil, errors.New("contract addresses missing package id")
	}

	for symbol, body := range doc {
		if symbol == "auxiliaryContractsAddresses" {
			continue
		}
		var objs map[string]objectRef
		if err := json.Unmarshal(body, &objs); err != nil {
			continue
		}
		perp, ok := objs["Perpetual"]
		if !ok {
			continue
		}
		a.Markets[symbol] = Market{
			Perpetual:     perp.ID,
			PriceOracle:   objs["PriceOracle"].ID,
			PositionTable: objs["PositionsTable"].ID,
		}
	}
	return a, nil
}

func (a *Addresses) Market(symbol string) (Market, error) {
	m, ok := a.Markets[symbol]
	if !ok {
		return Market{}, fmt.Errorf("%w: %s", ErrUnknownMarket, symbol)
	}
	return m, nil
}

// PerpetualID resolves the market id used in order encoding
func (a *Addresses) PerpetualID(symbol string) (string, error) {
	m, err := a.Market(symbol)
	if err != nil {
		return "", err
	}
	return m.Perpetual, nil
}

// RFQAddresses holds the RFQ protocol object ids
type RFQAddresses struct {
	ProtocolConfig string   `json:"ProtocolConfig" yaml:"protocol_config"`
	AdminCap       string   `json:"AdminCap" yaml:"admin_cap"`
	Package        string   `json:"Package" yaml:"package"`
	UpgradeCap     string   `json:"UpgradeCap" yaml:"upgrade_cap"`
	BasePackage    string   `json:"BasePackage" yaml:"base_package"`
	Vaults         []string `json:"vaults" yaml:"vaults"`
}
