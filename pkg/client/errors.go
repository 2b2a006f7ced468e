package client

import "fmt"

// ValidationError ローカル入力の検証エラー。ネットワークへは一切出さずに
// 呼び出し元へ即座に返す
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// TransportError ネットワーク/HTTP層の失敗
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error on %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// JobFailure サーバーがジョブの失敗を報告した状態。メッセージはそのまま提示する
type JobFailure struct {
	JobID   string
	Message string
}

func (e *JobFailure) Error() string {
	return fmt.Sprintf("job %s failed: %s", e.JobID, e.Message)
}

// DataAbsence 該当データなし。エラー扱いではなく空結果として扱うが、
// ユーザーへのメッセージ表示のために型として区別する
type DataAbsence struct {
	Message string
}

func (e *DataAbsence) Error() string {
	return e.Message
}
