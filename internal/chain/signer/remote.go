package signer

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"MoveFlow-Agent/internal/chain"
)

const defaultTimeout = 30 * time.Second

// Config 描述外部签名服务的访问方式。私钥托管完全在该服务内，
// 本进程从不接触密钥材料。
type Config struct {
	URL     string
	KeyRef  string
	Timeout time.Duration
}

// Remote 通过 HTTP 调用外部签名服务完成交易签名。
type Remote struct {
	url        string
	keyRef     string
	address    string
	httpClient *http.Client
}

// NewRemote 创建远程签名客户端并获取签名账户地址。
func NewRemote(ctx context.Context, cfg Config) (*Remote, error) {
	url := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if url == "" {
		return nil, errors.New("未配置签名服务地址")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	r := &Remote{
		url:        url,
		keyRef:     strings.TrimSpace(cfg.KeyRef),
		httpClient: &http.Client{Timeout: timeout},
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url+"/v1/account?key_ref="+r.keyRef, nil)
	if err != nil {
		return nil, fmt.Errorf("构建签名服务请求失败: %w", err)
	}
	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("连接签名服务失败: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("签名服务返回错误状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var account struct {
		Address string `json:"address"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&account); err != nil {
		return nil, fmt.Errorf("解析签名账户信息失败: %w", err)
	}
	r.address = account.Address
	return r, nil
}

// Address 返回签名账户地址。
func (r *Remote) Address() string {
	return r.address
}

// Sign 将交易载荷发给签名服务，取回签名后的交易字节。
func (r *Remote) Sign(ctx context.Context, payload chain.Payload) ([]byte, error) {
	body := map[string]any{
		"key_ref": r.keyRef,
		"payload": payload,
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("序列化签名请求失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url+"/v1/sign", bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("构建签名请求失败: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("请求签名服务失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("签名服务返回错误状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var decoded struct {
		SignedTx string `json:"signed_tx"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("解析签名响应失败: %w", err)
	}
	signed, err := hex.DecodeString(strings.TrimPrefix(decoded.SignedTx, "0x"))
	if err != nil {
		return nil, fmt.Errorf("签名结果不是合法的十六进制: %w", err)
	}
	if len(signed) == 0 {
		return nil, errors.New("签名服务返回了空交易")
	}
	return signed, nil
}

var _ chain.Signer = (*Remote)(nil)
