package sui

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/mr-tron/base58"
)

// StatusSuccess is the only execution status treated as success
const StatusSuccess = "success"

// ClockObjectID is the shared system clock object
const ClockObjectID = "0x0000000000000000000000000000000000000000000000000000000000000006"

var (
	ErrExecutionFailed = errors.New("transaction execution failed")
	ErrLockContention  = errors.New("transaction objects locked by validators")
)

// Coin is an owned coin object as returned by suix_getCoins
type Coin struct {
	CoinType            string `json:"coinType"`
	CoinObjectID        string `json:"coinObjectId"`
	Version             string `json:"version"`
	Digest              string `json:"digest"`
	Balance             string `json:"balance"`
	PreviousTransaction string `json:"previousTransaction"`
}

// BalanceValue parses the decimal balance string
func (c Coin) BalanceValue() (uint64, error) {
	v, err := strconv.ParseUint(c.Balance, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("coin %s has invalid balance %q: %w", c.CoinObjectID, c.Balance, err)
	}
	return v, nil
}

type CoinPage struct {
	Data        []Coin  `json:"data"`
	NextCursor  *string `json:"nextCursor"`
	HasNextPage bool    `json:"hasNextPage"`
}

type Balance struct {
	CoinType        string `json:"coinType"`
	CoinObjectCount int    `json:"coinObjectCount"`
	TotalBalance    string `json:"totalBalance"`
}

type TransactionBlockBytes struct {
	TxBytes string `json:"txBytes"`
}

type ObjectRef struct {
	ObjectID string `json:"objectId"`
	Version  uint64 `json:"version"`
	Digest   string `json:"digest"`
}

// DigestBytes decodes the base58 object digest
func (r ObjectRef) DigestBytes() ([]byte, error) {
	return DecodeDigest(r.Digest)
}

// OwnedObjectRef pairs a reference with its owner. Owner is kept raw since it is either a string or an object.
type OwnedObjectRef struct {
	Owner     json.RawMessage `json:"owner"`
	Reference ObjectRef       `json:"reference"`
}

type ExecutionStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type GasCostSummary struct {
	ComputationCost         string `json:"computationCost"`
	StorageCost             string `json:"storageCost"`
	StorageRebate           string `json:"storageRebate"`
	NonRefundableStorageFee string `json:"nonRefundableStorageFee"`
}

type Effects struct {
	MessageVersion    string           `json:"messageVersion"`
	Status            ExecutionStatus  `json:"status"`
	ExecutedEpoch     string           `json:"executedEpoch"`
	GasUsed           GasCostSummary   `json:"gasUsed"`
	TransactionDigest string           `json:"transactionDigest"`
	Created           []OwnedObjectRef `json:"created,omitempty"`
	Mutated           []OwnedObjectRef `json:"mutated,omitempty"`
	GasObject         OwnedObjectRef   `json:"gasObject"`
	EventsDigest      string           `json:"eventsDigest,omitempty"`
}

// TransactionResult is the response of sui_executeTransactionBlock
type TransactionResult struct {
	Digest        string          `json:"digest"`
	Effects       *Effects        `json:"effects"`
	ObjectChanges json.RawMessage `json:"objectChanges,omitempty"`
	Events        json.RawMessage `json:"events,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// Succeeded is true only for an explicit success status
func (r *TransactionResult) Succeeded() bool {
	return r != nil && r.Effects != nil && r.Effects.Status.Status == StatusSuccess
}

// Err returns nil for a successful result and an *ExecutionError otherwise
func (r *TransactionResult) Err() error {
	if r.Succeeded() {
		return nil
	}
	e := &ExecutionError{}
	if r != nil {
		e.Digest = r.Digest
		e.Raw = r.Raw
		if r.Effects != nil {
			e.Status = r.Effects.Status.Status
			e.Message = r.Effects.Status.Error
		}
	}
	return e
}

// CreatedIDs lists the object ids created by the transaction in effect order
func (r *TransactionResult) CreatedIDs() []string {
	if r == nil || r.Effects == nil {
		return nil
	}
	ids := make([]string, 0, len(r.Effects.Created))
	for _, c := range r.Effects.Created {
		ids = append(ids, c.Reference.ObjectID)
	}
	return ids
}

// ExecutionError carries the chain payload of a transaction without a success status
type ExecutionError struct {
	Digest  string
	Status  string
	Message string
	Raw     json.RawMessage
}

func (e *ExecutionError) Error() string {
	status := e.Status
	if status == "" {
		status = "missing status"
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: tx %s: %s: %s", ErrExecutionFailed, e.Digest, status, e.Message)
	}
	return fmt.Sprintf("%s: tx %s: %s", ErrExecutionFailed, e.Digest, status)
}

func (e *ExecutionError) Unwrap() error { return ErrExecutionFailed }

// DecodeDigest decodes a base58 transaction or object digest into its 32 raw bytes
func DecodeDigest(digest string) ([]byte, error) {
	raw, err := base58.Decode(digest)
	if err != nil {
		return nil, fmt.Errorf("invalid digest %q: %w", digest, err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("invalid digest %q: %d bytes, want 32", digest, len(raw))
	}
	return raw, nil
}
