package entity

import (
	"database/sql"
	"errors"
	"fmt"
)

// Person は persons テーブルの1行を表す構造体です。
type Person struct {
	FirstName string
	LastName  string
}

func (p Person) String() string {
	return fmt.Sprintf("firstName: %s, lastName: %s", p.FirstName, p.LastName)
}

// MapPersonRow は "select first_name, last_name from persons" の行を Person に変換します。
// NULL の列を含む行はエラーになります。
func MapPersonRow(rows *sql.Rows) (Person, error) {
	var first, last sql.NullString
	if err := rows.Scan(&first, &last); err != nil {
		return Person{}, err
	}
	if !first.Valid || !last.Valid {
		return Person{}, errors.New("first_name または last_name が NULL です")
	}
	return Person{FirstName: first.String, LastName: last.String}, nil
}

// PersonFields は出力ファイルのフィールドの並び (first_name, last_name) を返します。
func PersonFields(p Person) []string {
	return []string{p.FirstName, p.LastName}
}
