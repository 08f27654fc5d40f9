package evm

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"MoveFlow-Agent/internal/chain"
	xerrors "MoveFlow-Agent/internal/errors"
)

// streamABI 是 EVM 版支付流合约的查询接口子集。
const streamABI = `[
  {"name":"getStream","type":"function","stateMutability":"view",
   "inputs":[{"name":"streamId","type":"uint256"}],
   "outputs":[
     {"name":"sender","type":"address"},
     {"name":"recipient","type":"address"},
     {"name":"deposit","type":"uint256"},
     {"name":"withdrawn","type":"uint256"},
     {"name":"startTime","type":"uint256"},
     {"name":"stopTime","type":"uint256"},
     {"name":"paused","type":"bool"},
     {"name":"closed","type":"bool"}
   ]}
]`

// Config describes how to construct an EVM compatible client.
type Config struct {
	Name     string
	RPCURL   string
	Contract string
	Coin     string
	Notes    string
}

// Client implements the chain.Client interface for EVM deployments of
// the stream protocol.
type Client struct {
	name      string
	notes     string
	contract  common.Address
	coin      string
	rpcClient *gethrpc.Client
	eth       *ethclient.Client
	parsedABI abi.ABI
}

// NewClient dials the configured RPC endpoint and returns a ready-to-use client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("未配置 EVM RPC 地址")
	}
	contract := strings.TrimSpace(cfg.Contract)
	if !common.IsHexAddress(contract) {
		return nil, errors.New("EVM 流合约地址非法: " + contract)
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接 EVM 节点失败: %w", err)
	}

	parsedABI, err := abi.JSON(strings.NewReader(streamABI))
	if err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("解析流合约 ABI 失败: %w", err)
	}

	coin := strings.TrimSpace(cfg.Coin)
	if coin == "" {
		coin = "native"
	}

	return &Client{
		name:      cfg.Name,
		notes:     cfg.Notes,
		contract:  common.HexToAddress(contract),
		coin:      coin,
		rpcClient: rpcClient,
		eth:       ethclient.NewClient(rpcClient),
		parsedABI: parsedABI,
	}, nil
}

// Name 返回链名称。
func (c *Client) Name() string {
	return c.name
}

// FunctionID 返回合约地址加方法名的标识。
func (c *Client) FunctionID(name string) string {
	return c.contract.Hex() + "#" + name
}

// Coin 返回流转的代币标识。
func (c *Client) Coin() string {
	return c.coin
}

// FetchSnapshot gathers lightweight metadata from the chain.
func (c *Client) FetchSnapshot(ctx context.Context) (chain.Snapshot, error) {
	chainID, err := c.eth.ChainID(ctx)
	if err != nil {
		return chain.Snapshot{}, fmt.Errorf("获取链 ID 失败: %w", err)
	}
	blockNumber, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return chain.Snapshot{}, fmt.Errorf("获取最新区块高度失败: %w", err)
	}
	return chain.Snapshot{
		ChainID:     chainID.String(),
		BlockHeight: strconv.FormatUint(blockNumber, 10),
		Notes:       c.notes,
	}, nil
}

// Submit broadcasts an externally signed raw transaction.
func (c *Client) Submit(ctx context.Context, signed []byte) (chain.SubmitResult, error) {
	if len(signed) == 0 {
		return chain.SubmitResult{}, xerrors.New(xerrors.CodeInvalidArgument, "签名交易为空")
	}
	var hash common.Hash
	payload := "0x" + hex.EncodeToString(signed)
	if err := c.rpcClient.CallContext(ctx, &hash, "eth_sendRawTransaction", payload); err != nil {
		return chain.SubmitResult{}, xerrors.Wrap(xerrors.CodeDispatchFailure, err, "提交交易失败")
	}
	return chain.SubmitResult{TxHash: hash.Hex(), Status: "submitted"}, nil
}

// QueryStreams 通过合约只读调用查询指定流。
func (c *Client) QueryStreams(ctx context.Context, filter chain.StreamFilter) ([]chain.StreamSummary, error) {
	id := strings.TrimSpace(filter.StreamID)
	if id == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "EVM 部署的流查询需要提供流标识")
	}
	streamID, ok := new(big.Int).SetString(id, 10)
	if !ok {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "流标识格式非法: "+id)
	}

	input, err := c.parsedABI.Pack("getStream", streamID)
	if err != nil {
		return nil, fmt.Errorf("编码查询参数失败: %w", err)
	}
	output, err := c.eth.CallContract(ctx, callMsg(c.contract, input), nil)
	if err != nil {
		return nil, fmt.Errorf("查询流信息失败: %w", err)
	}

	values, err := c.parsedABI.Unpack("getStream", output)
	if err != nil || len(values) != 8 {
		return nil, fmt.Errorf("解码流信息失败: %w", err)
	}

	summary := chain.StreamSummary{
		StreamID:      id,
		Sender:        values[0].(common.Address).Hex(),
		Recipient:     values[1].(common.Address).Hex(),
		DepositAmount: values[2].(*big.Int).String(),
		WithdrawnAmt:  values[3].(*big.Int).String(),
		StartTime:     values[4].(*big.Int).Int64(),
		StopTime:      values[5].(*big.Int).Int64(),
		Paused:        values[6].(bool),
		Closed:        values[7].(bool),
	}
	return []chain.StreamSummary{summary}, nil
}

func callMsg(to common.Address, data []byte) gethcore.CallMsg {
	return gethcore.CallMsg{To: &to, Data: data}
}

// ValidateAddress 按 EVM 地址规则校验（20 字节十六进制）。
func (c *Client) ValidateAddress(address string) error {
	if !common.IsHexAddress(strings.TrimSpace(address)) {
		return xerrors.New(xerrors.CodeInvalidArgument, "地址格式不符合 EVM 规则: "+address)
	}
	return nil
}

var streamIDRe = regexp.MustCompile(`^\d+$`)

// ValidateStreamID 校验流标识：EVM 部署使用十进制序号。
func (c *Client) ValidateStreamID(id string) error {
	if !streamIDRe.MatchString(strings.TrimSpace(id)) {
		return xerrors.New(xerrors.CodeInvalidArgument, "流标识格式非法: "+id)
	}
	return nil
}

// Close releases network connections held by the client.
func (c *Client) Close() {
	if c.eth != nil {
		c.eth.Close()
		c.eth = nil
	}
	if c.rpcClient != nil {
		c.rpcClient.Close()
		c.rpcClient = nil
	}
}

var _ chain.Client = (*Client)(nil)
