package model

import (
	"errors"
	"fmt"

	"github.com/hildam/rag-flow-go/entity/consts"
)

var (
	ErrEmbeddingRateLimited = errors.New("embedding rate limited")
	ErrNotInterrupted       = errors.New("session is not interrupted")
	ErrSessionInterrupted   = errors.New("session is waiting for human approval")
	ErrSessionNotFound      = errors.New("session not found")
	ErrNothingToRecover     = errors.New("session has no running turn")
	ErrMaxStepsExceeded     = errors.New("max workflow steps exceeded")
	ErrAwaitingHuman        = errors.New("human answer required")
	ErrUnknownNode          = consts.ErrUnknownNode
)

// InvalidInputError 用户输入不合法
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string {
	return "invalid input: " + e.Reason
}

// Code 对应的 HTTP 状态码
func (e *InvalidInputError) Code() int {
	return 400
}

// ToolExecutionError 单个工具调用失败
type ToolExecutionError struct {
	Tool   string
	CallID string
	Err    error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s (call %s) failed: %v", e.Tool, e.CallID, e.Err)
}

func (e *ToolExecutionError) Unwrap() error {
	return e.Err
}

// PersistenceError 检查点写入失败
type PersistenceError struct {
	SessionID string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist session %s failed: %v", e.SessionID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
