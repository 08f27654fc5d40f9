package chain

import "context"

// Payload is the transaction payload handed to the signing and
// submission collaborators. Amounts and timestamps are carried as
// decimal strings so that values above 2^53 survive JSON round-trips.
type Payload struct {
	Function      string   `json:"function"`
	TypeArguments []string `json:"type_arguments"`
	Arguments     []any    `json:"arguments"`
}

// SubmitResult captures the outcome reported by the protocol endpoint.
type SubmitResult struct {
	TxHash string `json:"tx_hash"`
	Status string `json:"status"`
}

// Snapshot represents summarized network metadata for UI/reporting.
type Snapshot struct {
	ChainID     string
	BlockHeight string
	Notes       string
}

// StreamFilter narrows down a stream query.
type StreamFilter struct {
	Owner    string
	StreamID string
	Limit    int
}

// StreamSummary is the core's view of an on-chain payment stream. The
// client interprets endpoint responses; raw chain bytes never reach
// higher layers.
type StreamSummary struct {
	StreamID      string `json:"stream_id"`
	Name          string `json:"name"`
	Sender        string `json:"sender"`
	Recipient     string `json:"recipient"`
	DepositAmount string `json:"deposit_amount"`
	WithdrawnAmt  string `json:"withdrawn_amount"`
	StartTime     int64  `json:"start_time"`
	StopTime      int64  `json:"stop_time"`
	Paused        bool   `json:"paused"`
	Closed        bool   `json:"closed"`
}

// Client defines the common interface every chain backend must provide
// so the dispatcher can target different networks uniformly.
type Client interface {
	Name() string
	// FunctionID resolves an operation name to the fully qualified
	// on-chain entry point of the stream protocol deployment.
	FunctionID(name string) string
	// Coin returns the token the protocol deployment streams.
	Coin() string
	FetchSnapshot(ctx context.Context) (Snapshot, error)
	Submit(ctx context.Context, signed []byte) (SubmitResult, error)
	QueryStreams(ctx context.Context, filter StreamFilter) ([]StreamSummary, error)
	// ValidateAddress enforces the chain's address format. Untrusted
	// model output goes through this before it reaches a payload.
	ValidateAddress(address string) error
	ValidateStreamID(id string) error
	Close()
}

// Signer is the external key custody collaborator. The core never
// constructs or holds a private key; absence of a signer degrades the
// session to read-only mode.
type Signer interface {
	Sign(ctx context.Context, payload Payload) ([]byte, error)
	Address() string
}
