package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSafetyRefusal は安全性チェックで入力が拒否されたことを示します。技術的エラーではありません。
	ErrSafetyRefusal = errors.New("safety refusal")
	// ErrInsufficientCredits はクレジット不足です。詳細は *CreditError で取得します。
	ErrInsufficientCredits = errors.New("not enough credits")
	ErrNotFound            = errors.New("task not found")
	ErrTerminal            = errors.New("task is already finished")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrInvariant           = errors.New("task invariant violated")
	ErrInvalidInput        = errors.New("invalid input")
)

// CreditError は不足時の必要量と現在残高を保持します。
type CreditError struct {
	Required int
	Current  int
}

func (e *CreditError) Error() string {
	return fmt.Sprintf("not enough credits: required %d, current %d", e.Required, e.Current)
}

func (e *CreditError) Unwrap() error {
	return ErrInsufficientCredits
}

// SafetyError は拒否理由を保持します。理由は利用者には表示しません。
type SafetyError struct {
	Reason string
}

func (e *SafetyError) Error() string {
	return "safety refusal: " + e.Reason
}

func (e *SafetyError) Unwrap() error {
	return ErrSafetyRefusal
}

// SafetyRefusalMessage は利用者向けの拒否メッセージです。
const SafetyRefusalMessage = "Oops! Some of the words or pictures aren't quite right for a story here. Please try different ones."
