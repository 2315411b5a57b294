package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/samber/mo"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/suiperp/pkg/crypto"
	"github.com/uhyunpark/suiperp/pkg/lifecycle"
	"github.com/uhyunpark/suiperp/pkg/order"
)

// defaultMarket is the ETH-PERP perpetual on staging
const defaultMarket = "0x25a869797387e2eaa09c658c83dc0deaba99bb02c94447339c06fdbe8287347e"

func main() {
	_ = godotenv.Load()

	// Step 1: Load key from WALLET_SECRET or generate one
	var (
		keys *crypto.KeyMaterial
		err  error
	)
	if secret := os.Getenv("WALLET_SECRET"); secret != "" {
		fmt.Println("Loading key from WALLET_SECRET...")
		keys, err = crypto.FromSecret(secret)
	} else {
		fmt.Println("Generating new keypair...")
		keys, err = crypto.GenerateKey()
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Address: %s\n", keys.Address())
	fmt.Printf("Public Key: %s\n\n", keys.PublicKeyBase64())

	client, err := lifecycle.New(keys, lifecycle.Deps{}, lifecycle.Config{})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	// Step 2: Describe order
	market := os.Getenv("MARKET_ID")
	if market == "" {
		market = defaultMarket
	}
	req := order.Request{
		Symbol:   "ETH-PERP",
		Market:   market,
		Side:     order.SideBuy,
		Type:     order.TypeLimit,
		Price:    decimal.RequireFromString("1850.5"),
		Quantity: decimal.RequireFromString("0.1"),
		Leverage: mo.Some(decimal.NewFromInt(3)),
	}

	fmt.Println("Order Details:")
	fmt.Printf("  Symbol: %s\n", req.Symbol)
	fmt.Printf("  Market: %s\n", req.Market)
	fmt.Printf("  Side: %s\n", req.Side)
	fmt.Printf("  Type: %s\n", req.Type)
	fmt.Printf("  Price: %s\n", req.Price)
	fmt.Printf("  Quantity: %s\n", req.Quantity)
	fmt.Printf("  Leverage: %sx\n\n", req.Leverage.MustGet())

	// Step 3: Sign
	signed, err := client.CreateSignedOrder(req)
	if err != nil {
		fmt.Printf("Error signing: %v\n", err)
		os.Exit(1)
	}

	encoded, err := signed.Order.Encode()
	if err != nil {
		fmt.Printf("Error encoding: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Encoded (%d bytes): %x\n", len(encoded), encoded)
	fmt.Printf("Order Hash: %s\n\n", signed.OrderHash)

	out, err := json.MarshalIndent(signed, "", "  ")
	if err != nil {
		fmt.Printf("Error marshaling JSON: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Signed Order (JSON):")
	fmt.Println(string(out))
	fmt.Println()

	// Step 4: Verify
	fmt.Println("Verifying signature...")
	if !signed.Order.Verify(keys.PublicKey(), signed.OrderSignature) {
		fmt.Println("✗ Signature INVALID")
		os.Exit(1)
	}
	fmt.Println("✓ Signature VALID")
}
