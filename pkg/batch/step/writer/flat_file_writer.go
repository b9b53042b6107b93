// Package writer は ItemWriter の実装を提供します。
package writer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	core "batchprocessing/pkg/batch/job/core"
	"batchprocessing/pkg/batch/transaction"
	"batchprocessing/pkg/batch/util/exception"
	"batchprocessing/pkg/batch/util/logger"
)

// DefaultDelimiter はフィールドの既定の区切り文字です。
const DefaultDelimiter = "^"

// FieldExtractor はアイテムを出力するフィールドの並びに変換します。
type FieldExtractor[T any] func(item T) []string

// FlatFileWriter はアイテムを区切り文字付きの行としてファイルに書き込む ItemWriter です。
//
// ヘッダ行はファイル作成時に1度だけ書き込まれます。行は "\n" で区切られ、末尾に改行は付きません。
// チャンクはトランザクションにコミットされた場合のみ残り、ロールバック時には書き込み前の位置まで切り詰められます。
// コミット済みのバイト位置は ExecutionContext の "<name>.written.offset" に保存され、再起動時はその位置まで切り詰めてから追記します。
type FlatFileWriter[T any] struct {
	name      string
	path      string
	header    string
	delimiter string
	extract   FieldExtractor[T]

	mu        sync.Mutex
	file      *os.File
	offset    int64
	committed int64
}

// FlatFileOption は FlatFileWriter の設定を変更します。
type FlatFileOption func(*flatFileOptions)

type flatFileOptions struct {
	header    string
	delimiter string
}

// WithHeader はヘッダ行を設定します。
func WithHeader(header string) FlatFileOption {
	return func(o *flatFileOptions) { o.header = header }
}

// WithDelimiter はフィールドの区切り文字を設定します。
func WithDelimiter(delimiter string) FlatFileOption {
	return func(o *flatFileOptions) { o.delimiter = delimiter }
}

// NewFlatFileWriter は新しい FlatFileWriter を作成します。
func NewFlatFileWriter[T any](name, path string, extract FieldExtractor[T], opts ...FlatFileOption) *FlatFileWriter[T] {
	o := flatFileOptions{delimiter: DefaultDelimiter}
	for _, opt := range opts {
		opt(&o)
	}
	return &FlatFileWriter[T]{
		name:      name,
		path:      path,
		header:    o.header,
		delimiter: o.delimiter,
		extract:   extract,
	}
}

func (w *FlatFileWriter[T]) key() string {
	return w.name + ".written.offset"
}

// Open はファイルを開きます。
// ExecutionContext にコミット済みの位置があればそこまで切り詰め、なければファイルを作成してヘッダを書き込みます。
func (w *FlatFileWriter[T]) Open(_ context.Context, ec core.ExecutionContext) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if restart, ok := ec.GetInt64(w.key()); ok {
		f, err := os.OpenFile(w.path, os.O_RDWR, 0o644)
		if err == nil {
			if err := f.Truncate(restart); err != nil {
				f.Close()
				return exception.NewWriteError("flat_file_writer", fmt.Sprintf("ファイル '%s' の切り詰めに失敗しました", w.path), err, false, false)
			}
			w.file, w.offset, w.committed = f, restart, restart
			logger.Infof("FlatFileWriter '%s': ファイル '%s' の %d バイト目から書き込みを再開します。", w.name, w.path, restart)
			return nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return exception.NewWriteError("flat_file_writer", fmt.Sprintf("ファイル '%s' を開けませんでした", w.path), err, false, false)
		}
		logger.Warnf("FlatFileWriter '%s': 再開対象のファイル '%s' が存在しないため、新規に作成します。", w.name, w.path)
	}

	f, err := os.OpenFile(w.path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return exception.NewWriteError("flat_file_writer", fmt.Sprintf("ファイル '%s' を作成できませんでした", w.path), err, false, false)
	}
	w.file, w.offset, w.committed = f, 0, 0

	if w.header != "" {
		n, err := f.WriteAt([]byte(w.header), 0)
		if err != nil {
			f.Close()
			w.file = nil
			return exception.NewWriteError("flat_file_writer", "ヘッダ行の書き込みに失敗しました", err, false, false)
		}
		w.offset, w.committed = int64(n), int64(n)
	}
	ec.Put(w.key(), w.committed)
	return nil
}

// Write はチャンクを1回の書き込みでファイルに追記し、トランザクションの完了に同期させます。
// 書き込みが途中で失敗した場合は書き込み前の位置まで切り詰めます。
func (w *FlatFileWriter[T]) Write(_ context.Context, tx transaction.Tx, items []T) error {
	if len(items) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return exception.NewWriteError("flat_file_writer", "FlatFileWriter がオープンされていません", nil, false, false)
	}

	var b strings.Builder
	sep := w.offset > 0
	for _, item := range items {
		if sep {
			b.WriteByte('\n')
		}
		b.WriteString(strings.Join(w.extract(item), w.delimiter))
		sep = true
	}
	data := []byte(b.String())

	start := w.offset
	n, err := w.file.WriteAt(data, start)
	if err == nil && n < len(data) {
		err = fmt.Errorf("short write: %d/%d bytes", n, len(data))
	}
	if err != nil {
		if terr := w.file.Truncate(start); terr != nil {
			logger.Errorf("FlatFileWriter '%s': 部分書き込みの切り詰めに失敗しました: %v", w.name, terr)
		}
		return exception.NewWriteError("flat_file_writer", fmt.Sprintf("%d 件の書き込みに失敗しました", len(items)), err, false, true)
	}

	w.offset = start + int64(n)
	tx.RegisterSynchronization(&flatFileSync[T]{w: w, start: start, end: w.offset})
	return nil
}

// Update はコミット済みのバイト位置を ExecutionContext に保存します。
func (w *FlatFileWriter[T]) Update(_ context.Context, ec core.ExecutionContext) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	ec.Put(w.key(), w.committed)
	return nil
}

// Close はファイルを閉じます。
func (w *FlatFileWriter[T]) Close(context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// flatFileSync は1回の Write をトランザクションに同期させます。
type flatFileSync[T any] struct {
	w          *FlatFileWriter[T]
	start, end int64
}

func (s *flatFileSync[T]) BeforeCommit(context.Context) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	if err := s.w.file.Sync(); err != nil {
		return err
	}
	s.w.committed = s.end
	return nil
}

func (s *flatFileSync[T]) AfterRollback(context.Context) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	if s.w.file == nil {
		return
	}
	if err := s.w.file.Truncate(s.start); err != nil {
		logger.Errorf("FlatFileWriter '%s': ロールバック時の切り詰めに失敗しました: %v", s.w.name, err)
		return
	}
	s.w.offset = s.start
	if s.w.committed > s.start {
		s.w.committed = s.start
	}
}

var _ core.ItemWriter[string] = (*FlatFileWriter[string])(nil)
