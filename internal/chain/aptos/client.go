package aptos

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"MoveFlow-Agent/internal/chain"
	xerrors "MoveFlow-Agent/internal/errors"
)

const (
	defaultNodeURL = "https://fullnode.mainnet.aptoslabs.com/v1"
	defaultCoin    = "0x1::aptos_coin::AptosCoin"
	defaultTimeout = 30 * time.Second

	signedTxContentType = "application/x.aptos.signed_transaction+bcs"
)

// Config 描述访问 Aptos 全节点与 MoveFlow 合约所需的信息。
type Config struct {
	Name     string
	NodeURL  string
	Contract string
	Coin     string
	Notes    string
	Timeout  time.Duration
}

// Client 通过全节点 REST API 与 MoveFlow 支付流协议交互。
type Client struct {
	name       string
	nodeURL    string
	contract   string
	coin       string
	notes      string
	httpClient *http.Client
}

// NewClient 根据配置创建 Aptos 客户端。
func NewClient(cfg Config) (*Client, error) {
	contract := strings.TrimSpace(cfg.Contract)
	if contract == "" {
		return nil, errors.New("未配置 MoveFlow 合约地址")
	}

	nodeURL := strings.TrimSpace(cfg.NodeURL)
	if nodeURL == "" {
		nodeURL = defaultNodeURL
	}
	nodeURL = strings.TrimRight(nodeURL, "/")

	coin := strings.TrimSpace(cfg.Coin)
	if coin == "" {
		coin = defaultCoin
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		name:       cfg.Name,
		nodeURL:    nodeURL,
		contract:   contract,
		coin:       coin,
		notes:      cfg.Notes,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Name 返回链名称。
func (c *Client) Name() string {
	return c.name
}

// Coin 返回支付流使用的代币类型参数。
func (c *Client) Coin() string {
	return c.coin
}

// FunctionID 拼出 MoveFlow 合约入口函数的完整标识。
func (c *Client) FunctionID(name string) string {
	return c.contract + "::stream::" + name
}

// FetchSnapshot 获取账本元信息。
func (c *Client) FetchSnapshot(ctx context.Context) (chain.Snapshot, error) {
	var ledger struct {
		ChainID     int    `json:"chain_id"`
		BlockHeight string `json:"block_height"`
	}
	if err := c.get(ctx, "/", &ledger); err != nil {
		return chain.Snapshot{}, err
	}
	return chain.Snapshot{
		ChainID:     strconv.Itoa(ledger.ChainID),
		BlockHeight: ledger.BlockHeight,
		Notes:       c.notes,
	}, nil
}

// Submit 将外部签名好的交易（BCS 字节）提交到全节点。
// 提交失败由上层原样呈现给用户，绝不自动重发。
func (c *Client) Submit(ctx context.Context, signed []byte) (chain.SubmitResult, error) {
	if len(signed) == 0 {
		return chain.SubmitResult{}, xerrors.New(xerrors.CodeInvalidArgument, "签名交易为空")
	}

	endpoint := c.nodeURL + "/transactions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(signed))
	if err != nil {
		return chain.SubmitResult{}, xerrors.Wrap(xerrors.CodeDispatchFailure, err, "构建提交请求失败")
	}
	httpReq.Header.Set("Content-Type", signedTxContentType)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return chain.SubmitResult{}, xerrors.Wrap(xerrors.CodeDispatchFailure, err, "提交交易失败")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return chain.SubmitResult{}, xerrors.New(xerrors.CodeDispatchFailure,
			fmt.Sprintf("节点拒绝交易 (%d): %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var decoded struct {
		Hash string `json:"hash"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return chain.SubmitResult{}, xerrors.Wrap(xerrors.CodeDispatchFailure, err, "解析提交响应失败")
	}
	return chain.SubmitResult{TxHash: decoded.Hash, Status: "submitted"}, nil
}

// aptosStream 是 MoveFlow view 函数返回的流信息。
type aptosStream struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Deposit   string `json:"deposit_amount"`
	Withdrawn string `json:"withdrawn_amount"`
	StartTime string `json:"start_time"`
	StopTime  string `json:"stop_time"`
	Paused    bool   `json:"paused"`
	Closed    bool   `json:"closed"`
}

// QueryStreams 通过 view 函数查询流信息。
func (c *Client) QueryStreams(ctx context.Context, filter chain.StreamFilter) ([]chain.StreamSummary, error) {
	var (
		function string
		args     []any
	)
	if strings.TrimSpace(filter.StreamID) != "" {
		function = c.FunctionID("get_stream_info")
		args = []any{filter.StreamID}
	} else {
		limit := filter.Limit
		if limit <= 0 {
			limit = 20
		}
		function = c.FunctionID("get_streams")
		args = []any{filter.Owner, strconv.Itoa(limit)}
	}

	body := map[string]any{
		"function":       function,
		"type_arguments": []string{c.coin},
		"arguments":      args,
	}

	var decoded [][]aptosStream
	if err := c.post(ctx, "/view", body, &decoded); err != nil {
		return nil, err
	}

	summaries := make([]chain.StreamSummary, 0)
	for _, group := range decoded {
		for _, s := range group {
			start, _ := strconv.ParseInt(s.StartTime, 10, 64)
			stop, _ := strconv.ParseInt(s.StopTime, 10, 64)
			summaries = append(summaries, chain.StreamSummary{
				StreamID:      s.ID,
				Name:          s.Name,
				Sender:        s.Sender,
				Recipient:     s.Recipient,
				DepositAmount: s.Deposit,
				WithdrawnAmt:  s.Withdrawn,
				StartTime:     start,
				StopTime:      stop,
				Paused:        s.Paused,
				Closed:        s.Closed,
			})
		}
	}
	return summaries, nil
}

// addressRe 允许 Aptos 地址的短写形式，如 0x1、0x123。
var addressRe = regexp.MustCompile(`^0x[0-9a-fA-F]{1,64}$`)

// ValidateAddress 按 Aptos 地址规则校验。
func (c *Client) ValidateAddress(address string) error {
	if !addressRe.MatchString(strings.TrimSpace(address)) {
		return xerrors.New(xerrors.CodeInvalidArgument, "地址格式不符合 Aptos 规则: "+address)
	}
	return nil
}

var streamIDRe = regexp.MustCompile(`^(\d+|0x[0-9a-fA-F]{1,64})$`)

// ValidateStreamID 校验流标识：十进制序号或十六进制对象地址。
func (c *Client) ValidateStreamID(id string) error {
	if !streamIDRe.MatchString(strings.TrimSpace(id)) {
		return xerrors.New(xerrors.CodeInvalidArgument, "流标识格式非法: "+id)
	}
	return nil
}

// Close 释放客户端资源。HTTP 客户端无需显式关闭。
func (c *Client) Close() {}

func (c *Client) get(ctx context.Context, path string, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.nodeURL+path, nil)
	if err != nil {
		return fmt.Errorf("构建节点请求失败: %w", err)
	}
	return c.do(httpReq, out)
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("序列化节点请求失败: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.nodeURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("构建节点请求失败: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return c.do(httpReq, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("请求 Aptos 节点失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("Aptos 节点返回错误状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

var _ chain.Client = (*Client)(nil)
