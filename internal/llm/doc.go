// Package llm 定义大模型协作方的抽象接口。
package llm
