package repository

import (
	"context"
	"sync"
	"time"

	core "batchprocessing/pkg/batch/job/core"
)

type memoryRun struct {
	params    core.JobParameters
	startTime time.Time
	endTime   time.Time
	status    core.BatchStatus
	failure   error
	steps     []*core.StepExecution
}

// MemoryRunRegistry はメモリ上に実行履歴を保持する RunRegistry です。プロセス終了時に履歴は失われます。
type MemoryRunRegistry struct {
	mu   sync.RWMutex
	runs map[string][]*memoryRun
}

// NewMemoryRunRegistry は新しい MemoryRunRegistry を作成します。
func NewMemoryRunRegistry() *MemoryRunRegistry {
	return &MemoryRunRegistry{runs: make(map[string][]*memoryRun)}
}

func (r *MemoryRunRegistry) RecordStart(_ context.Context, jobName string, params core.JobParameters) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := core.NewJobParameters()
	for k, v := range params.Params {
		p.Put(k, v)
	}
	r.runs[jobName] = append(r.runs[jobName], &memoryRun{
		params:    p,
		startTime: time.Now(),
		status:    core.BatchStatusStarted,
	})
	return int64(len(r.runs[jobName])), nil
}

func (r *MemoryRunRegistry) RecordStepOutcome(_ context.Context, jobName string, runID int64, se *core.StepExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, err := r.lookup(jobName, runID)
	if err != nil {
		return err
	}
	if run.status.IsFinished() {
		return alreadyCompleted(jobName, runID)
	}
	run.steps = append(run.steps, snapshotStep(se))
	return nil
}

func (r *MemoryRunRegistry) RecordCompletion(_ context.Context, jobName string, runID int64, status core.BatchStatus, failure error) error {
	if !status.IsFinished() {
		return invalidCompletion(status)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	run, err := r.lookup(jobName, runID)
	if err != nil {
		return err
	}
	if run.status.IsFinished() {
		return alreadyCompleted(jobName, runID)
	}
	run.status = status
	run.endTime = time.Now()
	run.failure = failure
	return nil
}

func (r *MemoryRunRegistry) FindRun(_ context.Context, jobName string, runID int64) (*core.JobExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, err := r.lookup(jobName, runID)
	if err != nil {
		return nil, err
	}
	return run.toExecution(jobName, runID), nil
}

func (r *MemoryRunRegistry) LastRun(ctx context.Context, jobName string) (*core.JobExecution, error) {
	r.mu.RLock()
	n := int64(len(r.runs[jobName]))
	r.mu.RUnlock()
	if n == 0 {
		return nil, notFound(jobName, 0)
	}
	return r.FindRun(ctx, jobName, n)
}

func (r *MemoryRunRegistry) lookup(jobName string, runID int64) (*memoryRun, error) {
	runs := r.runs[jobName]
	if runID < 1 || runID > int64(len(runs)) {
		return nil, notFound(jobName, runID)
	}
	return runs[runID-1], nil
}

func (run *memoryRun) toExecution(jobName string, runID int64) *core.JobExecution {
	params := core.NewJobParameters()
	for k, v := range run.params.Params {
		params.Put(k, v)
	}
	je := core.NewJobExecution(jobName, runID, params)
	je.StartTime = run.startTime
	je.EndTime = run.endTime
	je.Status = run.status
	je.ExitStatus = run.status.ToExitStatus()
	for _, se := range run.steps {
		je.AddStepExecution(snapshotStep(se))
	}
	applyOutcome(je, run.failure)
	return je
}

var _ RunRegistry = (*MemoryRunRegistry)(nil)
