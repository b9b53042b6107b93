// Package serialization は実行履歴の永続化で使用する JSON 変換を提供します。
package serialization

import (
	"bytes"
	"encoding/json"
	"errors"

	core "batchprocessing/pkg/batch/job/core"
	"batchprocessing/pkg/batch/util/exception"
	"batchprocessing/pkg/batch/util/logger"
)

const module = "serialization"

// MarshalExecutionContext は ExecutionContext を JSON バイトスライスにシリアライズします。
func MarshalExecutionContext(ec core.ExecutionContext) ([]byte, error) {
	if ec == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(ec)
	if err != nil {
		logger.Errorf("ExecutionContext のシリアライズに失敗しました: %v", err)
		return nil, exception.NewBatchError(module, "ExecutionContext のシリアライズに失敗しました", err, false, false)
	}
	return data, nil
}

// UnmarshalExecutionContext は JSON バイトスライスを ExecutionContext にデシリアライズします。
// 数値は json.Number として復元されるため、カーソル位置の int64 が丸められることはありません。
func UnmarshalExecutionContext(data []byte) (core.ExecutionContext, error) {
	ec := core.NewExecutionContext()
	if len(data) == 0 || string(data) == "null" {
		return ec, nil
	}
	if err := decode(data, &ec); err != nil {
		logger.Errorf("ExecutionContext のデシリアライズに失敗しました: %v", err)
		return nil, exception.NewBatchError(module, "ExecutionContext のデシリアライズに失敗しました", err, false, false)
	}
	return ec, nil
}

// MarshalJobParameters は JobParameters を JSON バイトスライスにシリアライズします。
func MarshalJobParameters(params core.JobParameters) ([]byte, error) {
	if params.Params == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(params.Params)
	if err != nil {
		logger.Errorf("JobParameters のシリアライズに失敗しました: %v", err)
		return nil, exception.NewBatchError(module, "JobParameters のシリアライズに失敗しました", err, false, false)
	}
	return data, nil
}

// UnmarshalJobParameters は JSON バイトスライスを JobParameters にデシリアライズします。
func UnmarshalJobParameters(data []byte) (core.JobParameters, error) {
	params := core.NewJobParameters()
	if len(data) == 0 || string(data) == "null" {
		return params, nil
	}
	if err := decode(data, &params.Params); err != nil {
		logger.Errorf("JobParameters のデシリアライズに失敗しました: %v", err)
		return core.JobParameters{}, exception.NewBatchError(module, "JobParameters のデシリアライズに失敗しました", err, false, false)
	}
	return params, nil
}

type failure struct {
	Module  string              `json:"module,omitempty"`
	Kind    exception.ErrorKind `json:"kind"`
	Message string              `json:"message"`
}

func toFailure(err error) failure {
	var be *exception.BatchError
	if errors.As(err, &be) && error(be) == err {
		msg := be.Message
		if be.OriginalErr != nil {
			msg += ": " + be.OriginalErr.Error()
		}
		return failure{Module: be.Module, Kind: be.Kind, Message: msg}
	}
	return failure{Kind: exception.KindOf(err), Message: err.Error()}
}

// MarshalFailures は []error を分類とメッセージの JSON 配列にシリアライズします。
func MarshalFailures(failures []error) ([]byte, error) {
	out := make([]failure, 0, len(failures))
	for _, err := range failures {
		out = append(out, toFailure(err))
	}
	data, err := json.Marshal(out)
	if err != nil {
		logger.Errorf("Failures のシリアライズに失敗しました: %v", err)
		return nil, exception.NewBatchError(module, "Failures のシリアライズに失敗しました", err, false, false)
	}
	return data, nil
}

// UnmarshalFailures は JSON バイトスライスを []error にデシリアライズします。
// 各エラーは分類を保持した BatchError として復元されます。
func UnmarshalFailures(data []byte) ([]error, error) {
	if len(data) == 0 || string(data) == "null" {
		return []error{}, nil
	}
	var in []failure
	if err := json.Unmarshal(data, &in); err != nil {
		logger.Errorf("Failures のデシリアライズに失敗しました: %v", err)
		return nil, exception.NewBatchError(module, "Failures のデシリアライズに失敗しました", err, false, false)
	}
	failures := make([]error, len(in))
	for i, f := range in {
		kind := f.Kind
		if kind == "" {
			kind = exception.KindUnknown
		}
		mod := f.Module
		if mod == "" {
			mod = "registry"
		}
		failures[i] = exception.NewBatchError(mod, f.Message, nil, false, false).WithKind(kind)
	}
	return failures, nil
}

func decode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
