// Package transaction はチャンク単位のトランザクション境界を提供します。
// スコープはそれを開いたチャンク実行だけがコミット/ロールバックできます。
package transaction

import (
	"context"
	"errors"
	"sync"

	"batchprocessing/pkg/batch/database"
	"batchprocessing/pkg/batch/util/exception"
	"batchprocessing/pkg/batch/util/logger"
)

// ErrTransactionClosed は終了済みトランザクションの再コミット/再ロールバックを示します。
var ErrTransactionClosed = errors.New("transaction already closed")

// Synchronization はトランザクションの完了に同期して呼び出されるコールバックです。
// ファイルなどデータベース外のリソースを all-or-nothing にするために使用します。
type Synchronization interface {
	// BeforeCommit はコミット直前に呼び出されます。エラーを返すとロールバックされます。
	BeforeCommit(ctx context.Context) error
	// AfterRollback はロールバック後に呼び出されます。
	AfterRollback(ctx context.Context)
}

// Tx は1チャンク分のトランザクションスコープです。
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	// RegisterSynchronization はコミット/ロールバックに同期するコールバックを登録します。
	RegisterSynchronization(s Synchronization)
	// SQL はデータベーストランザクションを返します。リソースレスの場合は nil です。
	SQL() database.Tx
}

// Manager はトランザクションを開始します。
type Manager interface {
	Begin(ctx context.Context) (Tx, error)
}

// scope は Tx の共通実装です。
type scope struct {
	mu     sync.Mutex
	sqlTx  database.Tx
	syncs  []Synchronization
	closed bool
}

func (s *scope) RegisterSynchronization(cb Synchronization) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncs = append(s.syncs, cb)
}

func (s *scope) SQL() database.Tx {
	return s.sqlTx
}

func (s *scope) Commit(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrTransactionClosed
	}
	syncs := append([]Synchronization(nil), s.syncs...)
	s.mu.Unlock()

	for _, cb := range syncs {
		if err := cb.BeforeCommit(ctx); err != nil {
			if rbErr := s.Rollback(ctx); rbErr != nil {
				logger.Errorf("コミット前処理の失敗後のロールバックに失敗しました: %v", rbErr)
			}
			return exception.NewWriteError("transaction", "コミット前処理に失敗しました", err, false, false)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.sqlTx != nil {
		if err := s.sqlTx.Commit(); err != nil {
			for _, cb := range s.syncs {
				cb.AfterRollback(ctx)
			}
			return exception.NewWriteError("transaction", "トランザクションのコミットに失敗しました", err, true, false)
		}
	}
	return nil
}

func (s *scope) Rollback(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrTransactionClosed
	}
	s.closed = true

	var err error
	if s.sqlTx != nil {
		if rbErr := s.sqlTx.Rollback(); rbErr != nil {
			err = exception.NewBatchError("transaction", "トランザクションのロールバックに失敗しました", rbErr, false, false)
		}
	}
	// 登録の逆順で取り消す
	for i := len(s.syncs) - 1; i >= 0; i-- {
		s.syncs[i].AfterRollback(ctx)
	}
	return err
}

// ResourcelessManager はデータベースを使わないトランザクションマネージャです。
// 同期コールバックのみでコミット/ロールバックを表現します。
type ResourcelessManager struct{}

// NewResourcelessManager は新しい ResourcelessManager を作成します。
func NewResourcelessManager() *ResourcelessManager {
	return &ResourcelessManager{}
}

// Begin は新しいトランザクションスコープを開始します。
func (m *ResourcelessManager) Begin(ctx context.Context) (Tx, error) {
	return &scope{}, nil
}

// SQLManager は database.DBConnection 上のトランザクションマネージャです。
type SQLManager struct {
	db database.DBConnection
}

// NewSQLManager は新しい SQLManager を作成します。
func NewSQLManager(db database.DBConnection) *SQLManager {
	return &SQLManager{db: db}
}

// Begin はデータベーストランザクションを開始し、スコープでラップします。
func (m *SQLManager) Begin(ctx context.Context) (Tx, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, exception.NewBatchError("transaction", "トランザクションの開始に失敗しました", err, true, false)
	}
	return &scope{sqlTx: tx}, nil
}

var (
	_ Manager = (*ResourcelessManager)(nil)
	_ Manager = (*SQLManager)(nil)
)
