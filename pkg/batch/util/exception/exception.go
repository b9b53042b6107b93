package exception

import (
	"errors"
	"fmt"
)

// ErrorKind はバッチエラーの分類です。スキップ/リトライポリシーの判定に使用します。
type ErrorKind string

const (
	KindUnknown           ErrorKind = "UnknownError"
	KindRead              ErrorKind = "ReadError"
	KindProcess           ErrorKind = "ProcessError"
	KindWrite             ErrorKind = "WriteError"
	KindSkipLimitExceeded ErrorKind = "SkipLimitExceeded"
	KindConfiguration     ErrorKind = "ConfigurationError"
	KindRepository        ErrorKind = "RepositoryError"
)

// ParseErrorKind は設定ファイル等の文字列を ErrorKind に変換します。
func ParseErrorKind(s string) (ErrorKind, bool) {
	switch ErrorKind(s) {
	case KindRead, KindProcess, KindWrite, KindSkipLimitExceeded, KindConfiguration, KindRepository:
		return ErrorKind(s), true
	}
	return KindUnknown, false
}

// BatchError はバッチ処理中に発生するカスタムエラー型です。
// エラーの発生元モジュール、分類、メッセージ、ラップされた元のエラー、
// そしてリトライ可能か、スキップ可能かのフラグを保持します。
type BatchError struct {
	Module      string    // エラーが発生したモジュール (例: "reader", "processor", "writer", "config")
	Kind        ErrorKind // エラーの分類
	Message     string    // エラーの簡潔な説明
	OriginalErr error     // ラップされた元のエラー
	isRetryable bool
	isSkippable bool
}

// NewBatchError は新しい BatchError のインスタンスを作成します。
func NewBatchError(module, message string, originalErr error, isRetryable, isSkippable bool) *BatchError {
	return &BatchError{
		Module:      module,
		Kind:        KindUnknown,
		Message:     message,
		OriginalErr: originalErr,
		isRetryable: isRetryable,
		isSkippable: isSkippable,
	}
}

// NewBatchErrorf はフォーマット文字列からリトライ・スキップ不可の BatchError を作成します。
// 引数に %w を含めた場合、そのエラーがラップされます。
func NewBatchErrorf(module, format string, a ...interface{}) *BatchError {
	wrapped := fmt.Errorf(format, a...)
	return &BatchError{
		Module:      module,
		Kind:        KindUnknown,
		Message:     wrapped.Error(),
		OriginalErr: errors.Unwrap(wrapped),
	}
}

// WithKind は分類を設定した BatchError を返します。
func (e *BatchError) WithKind(kind ErrorKind) *BatchError {
	e.Kind = kind
	return e
}

// NewReadError はアイテム読み込み時のエラーを作成します。
func NewReadError(module, message string, err error, isRetryable, isSkippable bool) *BatchError {
	return NewBatchError(module, message, err, isRetryable, isSkippable).WithKind(KindRead)
}

// NewProcessError はアイテム変換時のエラーを作成します。
func NewProcessError(module, message string, err error, isRetryable, isSkippable bool) *BatchError {
	return NewBatchError(module, message, err, isRetryable, isSkippable).WithKind(KindProcess)
}

// NewWriteError はチャンク書き込み時のエラーを作成します。
func NewWriteError(module, message string, err error, isRetryable, isSkippable bool) *BatchError {
	return NewBatchError(module, message, err, isRetryable, isSkippable).WithKind(KindWrite)
}

// NewConfigurationError は構築時に検出された設定不備のエラーを作成します。
func NewConfigurationError(module, message string) *BatchError {
	return NewBatchError(module, message, nil, false, false).WithKind(KindConfiguration)
}

// NewSkipLimitExceededError はスキップ上限を超えたことを示す致命的エラーを作成します。
func NewSkipLimitExceededError(module string, limit int, cause error) *BatchError {
	return NewBatchError(module, fmt.Sprintf("スキップ上限 (%d) を超えました", limit), cause, false, false).WithKind(KindSkipLimitExceeded)
}

// NewRepositoryError は実行履歴の永続化に関するエラーを作成します。
func NewRepositoryError(module, message string, err error) *BatchError {
	return NewBatchError(module, message, err, false, false).WithKind(KindRepository)
}

// Error は error インターフェースの実装です。
func (e *BatchError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %s: %v", e.Module, e.Kind, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Module, e.Kind, e.Message)
}

// Unwrap は errors.Unwrap のために元のエラーを返します。
func (e *BatchError) Unwrap() error {
	return e.OriginalErr
}

// IsRetryable はこのエラーがリトライ可能かどうかを返します。
func (e *BatchError) IsRetryable() bool {
	return e.isRetryable
}

// IsSkippable はこのエラーがスキップ可能かどうかを返します。
func (e *BatchError) IsSkippable() bool {
	return e.isSkippable
}

// KindOf はエラーチェーンの中で最も外側の BatchError の分類を返します。
func KindOf(err error) ErrorKind {
	var be *BatchError
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindUnknown
}

// IsKind はエラーが指定された分類かどうかを判定します。
func IsKind(err error, kind ErrorKind) bool {
	var be *BatchError
	for err != nil {
		if !errors.As(err, &be) {
			return false
		}
		if be.Kind == kind {
			return true
		}
		err = be.OriginalErr
	}
	return false
}

// IsRetryable は BatchError のリトライ可能フラグを返します。BatchError 以外は false です。
func IsRetryable(err error) bool {
	var be *BatchError
	return errors.As(err, &be) && be.IsRetryable()
}

// IsSkippable は BatchError のスキップ可能フラグを返します。BatchError 以外は false です。
func IsSkippable(err error) bool {
	var be *BatchError
	return errors.As(err, &be) && be.IsSkippable()
}
