package core

import (
	"encoding/json"
	"errors"
	"maps"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"batchprocessing/pkg/batch/util/exception"
)

// BatchStatus はジョブ/ステップ実行の状態を表します。
type BatchStatus string

const (
	BatchStatusStarting  BatchStatus = "STARTING"
	BatchStatusStarted   BatchStatus = "STARTED"
	BatchStatusExecuting BatchStatus = "EXECUTING"
	BatchStatusCompleted BatchStatus = "COMPLETED"
	BatchStatusFailed    BatchStatus = "FAILED"
	BatchStatusStopped   BatchStatus = "STOPPED"
	BatchStatusUnknown   BatchStatus = "UNKNOWN"
)

// IsFinished は BatchStatus が終了状態かどうかを判定するヘルパーメソッドです。
func (s BatchStatus) IsFinished() bool {
	switch s {
	case BatchStatusCompleted, BatchStatusFailed, BatchStatusStopped:
		return true
	default:
		return false
	}
}

// ToExitStatus は BatchStatus を対応する ExitStatus に変換します。
func (s BatchStatus) ToExitStatus() ExitStatus {
	switch s {
	case BatchStatusCompleted:
		return ExitStatusCompleted
	case BatchStatusFailed:
		return ExitStatusFailed
	case BatchStatusStopped:
		return ExitStatusStopped
	default:
		return ExitStatusUnknown
	}
}

// ExitStatus はジョブ/ステップの終了時の詳細なステータスを表します。
type ExitStatus string

const (
	ExitStatusUnknown   ExitStatus = "UNKNOWN"
	ExitStatusExecuting ExitStatus = "EXECUTING"
	ExitStatusCompleted ExitStatus = "COMPLETED"
	ExitStatusFailed    ExitStatus = "FAILED"
	ExitStatusStopped   ExitStatus = "STOPPED"
	ExitStatusNoOp      ExitStatus = "NO_OP"
)

// ErrFiltered は ItemProcessor がアイテムを除外したことを示します。
// 除外されたアイテムは書き込まれず、FilterCount にのみ計上されます。
var ErrFiltered = errors.New("item filtered")

// ExecutionContext はジョブやステップの状態を共有するためのキー-値ストアです。
type ExecutionContext map[string]interface{}

// NewExecutionContext は新しい空の ExecutionContext を作成します。
func NewExecutionContext() ExecutionContext {
	return make(ExecutionContext)
}

// Put は指定されたキーと値で ExecutionContext に値を設定します。
func (ec ExecutionContext) Put(key string, value interface{}) {
	ec[key] = value
}

// Get は指定されたキーの値を取得します。
func (ec ExecutionContext) Get(key string) (interface{}, bool) {
	v, ok := ec[key]
	return v, ok
}

// GetString は指定されたキーの値を文字列として取得します。
func (ec ExecutionContext) GetString(key string) (string, bool) {
	str, ok := ec[key].(string)
	return str, ok
}

// GetInt64 は指定されたキーの値を int64 として取得します。
// JSON からの復元で float64 や json.Number になった値も受け付けます。
func (ec ExecutionContext) GetInt64(key string) (int64, bool) {
	switch v := ec[key].(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case json.Number:
		i, err := v.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}

// Copy は ExecutionContext のシャローコピーを返します。
func (ec ExecutionContext) Copy() ExecutionContext {
	dst := NewExecutionContext()
	maps.Copy(dst, ec)
	return dst
}

// JobParameters はジョブ実行時のパラメータを保持する構造体です。
type JobParameters struct {
	Params map[string]interface{}
}

// NewJobParameters は JobParameters の新しいインスタンスを作成します。
func NewJobParameters() JobParameters {
	return JobParameters{Params: make(map[string]interface{})}
}

// Put はパラメータを設定します。
func (p JobParameters) Put(key string, value interface{}) {
	p.Params[key] = value
}

// GetString は文字列パラメータを取得します。
func (p JobParameters) GetString(key string) (string, bool) {
	s, ok := p.Params[key].(string)
	return s, ok
}

// JobExecution はジョブの単一の実行インスタンスを表す構造体です。
type JobExecution struct {
	JobName          string
	RunID            int64
	Parameters       JobParameters
	StartTime        time.Time
	EndTime          time.Time
	Status           BatchStatus
	ExitStatus       ExitStatus
	Failures         []error
	FailedStepName   string
	FailureKind      exception.ErrorKind
	LastUpdated      time.Time
	StepExecutions   []*StepExecution
	ExecutionContext ExecutionContext

	stopRequested atomic.Bool
}

// NewJobExecution は新しい JobExecution のインスタンスを作成します。
func NewJobExecution(jobName string, runID int64, params JobParameters) *JobExecution {
	now := time.Now()
	if params.Params == nil {
		params = NewJobParameters()
	}
	return &JobExecution{
		JobName:          jobName,
		RunID:            runID,
		Parameters:       params,
		StartTime:        now,
		Status:           BatchStatusStarting,
		ExitStatus:       ExitStatusUnknown,
		LastUpdated:      now,
		Failures:         make([]error, 0),
		StepExecutions:   make([]*StepExecution, 0),
		ExecutionContext: NewExecutionContext(),
	}
}

// MarkAsStarted は JobExecution の状態を実行中に更新します。
func (je *JobExecution) MarkAsStarted() {
	je.Status = BatchStatusStarted
	je.StartTime = time.Now()
	je.LastUpdated = je.StartTime
}

// AddFailureException は JobExecution にエラー情報を追加します。
func (je *JobExecution) AddFailureException(err error) {
	if err != nil {
		je.Failures = append(je.Failures, err)
		je.LastUpdated = time.Now()
	}
}

// AddStepExecution は StepExecution を実行順に追加します。
func (je *JobExecution) AddStepExecution(se *StepExecution) {
	se.JobExecution = je
	je.StepExecutions = append(je.StepExecutions, se)
}

// FindStepExecution はステップ名に一致する最後の StepExecution を返します。
func (je *JobExecution) FindStepExecution(stepName string) *StepExecution {
	for i := len(je.StepExecutions) - 1; i >= 0; i-- {
		if je.StepExecutions[i].StepName == stepName {
			return je.StepExecutions[i]
		}
	}
	return nil
}

// RequestStop はチャンク境界での停止を要求します。
func (je *JobExecution) RequestStop() {
	je.stopRequested.Store(true)
}

// IsStopRequested は停止が要求されているかを返します。
func (je *JobExecution) IsStopRequested() bool {
	return je.stopRequested.Load()
}

// Finish はステップの結果からジョブの最終状態を決定します。
// 1つでも FAILED があれば FAILED、STOPPED があれば STOPPED、全て COMPLETED の場合のみ COMPLETED です。
func (je *JobExecution) Finish() {
	status := BatchStatusCompleted
	for _, se := range je.StepExecutions {
		switch se.Status {
		case BatchStatusFailed:
			status = BatchStatusFailed
			if je.FailedStepName == "" {
				je.FailedStepName = se.StepName
				je.FailureKind = se.FailureKind()
			}
		case BatchStatusStopped:
			if status != BatchStatusFailed {
				status = BatchStatusStopped
			}
		case BatchStatusCompleted:
		default:
			if status == BatchStatusCompleted {
				status = BatchStatusFailed
			}
		}
	}
	je.Status = status
	je.ExitStatus = status.ToExitStatus()
	je.EndTime = time.Now()
	je.LastUpdated = je.EndTime
}

// StepExecution はステップの単一の実行インスタンスを表す構造体です。
type StepExecution struct {
	ID               string
	StepName         string
	JobExecution     *JobExecution
	StartTime        time.Time
	EndTime          time.Time
	Status           BatchStatus
	ExitStatus       ExitStatus
	Failures         []error
	ReadCount        int
	WriteCount       int
	CommitCount      int
	RollbackCount    int
	FilterCount      int
	SkipReadCount    int
	SkipProcessCount int
	SkipWriteCount   int
	ExecutionContext ExecutionContext
	LastUpdated      time.Time
}

// NewStepExecution は新しい StepExecution のインスタンスを作成します。
func NewStepExecution(stepName string) *StepExecution {
	now := time.Now()
	return &StepExecution{
		ID:               uuid.New().String(),
		StepName:         stepName,
		StartTime:        now,
		Status:           BatchStatusStarting,
		ExitStatus:       ExitStatusUnknown,
		Failures:         make([]error, 0),
		ExecutionContext: NewExecutionContext(),
		LastUpdated:      now,
	}
}

// SkipCount は読み込み・処理・書き込みのスキップ件数の合計です。
func (se *StepExecution) SkipCount() int {
	return se.SkipReadCount + se.SkipProcessCount + se.SkipWriteCount
}

// MarkAsExecuting は StepExecution の状態を実行中に更新します。
func (se *StepExecution) MarkAsExecuting() {
	if se.Status.IsFinished() {
		return
	}
	se.Status = BatchStatusExecuting
	se.ExitStatus = ExitStatusExecuting
	se.LastUpdated = time.Now()
}

// MarkAsCompleted は StepExecution の状態を完了に更新します。
func (se *StepExecution) MarkAsCompleted() {
	se.finish(BatchStatusCompleted, nil)
}

// MarkAsFailed は StepExecution の状態を失敗に更新し、エラー情報を追加します。
func (se *StepExecution) MarkAsFailed(err error) {
	se.finish(BatchStatusFailed, err)
}

// MarkAsStopped は StepExecution の状態を停止に更新します。
func (se *StepExecution) MarkAsStopped(err error) {
	se.finish(BatchStatusStopped, err)
}

func (se *StepExecution) finish(status BatchStatus, err error) {
	if se.Status.IsFinished() {
		return
	}
	se.Status = status
	se.ExitStatus = status.ToExitStatus()
	se.EndTime = time.Now()
	se.LastUpdated = se.EndTime
	se.AddFailureException(err)
}

// AddFailureException は StepExecution にエラー情報を追加します。
func (se *StepExecution) AddFailureException(err error) {
	if err != nil {
		se.Failures = append(se.Failures, err)
	}
}

// FailureKind は最初に記録された失敗の分類を返します。
func (se *StepExecution) FailureKind() exception.ErrorKind {
	if len(se.Failures) == 0 {
		return ""
	}
	return exception.KindOf(se.Failures[0])
}
