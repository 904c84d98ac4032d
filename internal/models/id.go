package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// ID: идентификатор записи: либо серверный (положительное число), либо клиентский
// (строка вида "<model>_<n>"). Нулевое значение: "нет записи".
type ID struct {
	num   int64
	local string
}

func Persisted(n int64) ID { return ID{num: n} }
func Local(s string) ID    { return ID{local: s} }

func (id ID) IsZero() bool  { return id.num == 0 && id.local == "" }
func (id ID) IsLocal() bool { return id.local != "" }

// Int: серверный номер, если id персистентный
func (id ID) Int() (int64, bool) {
	if id.local != "" || id.num == 0 {
		return 0, false
	}
	return id.num, true
}

// Value: значение для wire-формата: int64, string или false
func (id ID) Value() any {
	switch {
	case id.local != "":
		return id.local
	case id.num != 0:
		return id.num
	}
	return false
}

func (id ID) String() string {
	if id.local != "" {
		return id.local
	}
	if id.num == 0 {
		return ""
	}
	return strconv.FormatInt(id.num, 10)
}

func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.Value())
}

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) || bytes.Equal(b, []byte("false")) {
		*id = ID{}
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = Local(s)
		return nil
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil || n < 0 {
		return fmt.Errorf("invalid record id %s", b)
	}
	*id = Persisted(n)
	return nil
}

// ParseID приводит значение из payload к ID. nil, false и 0 дают нулевой ID.
// ok=false: значение не может быть идентификатором.
func ParseID(v any) (ID, bool) {
	switch x := v.(type) {
	case nil:
		return ID{}, true
	case ID:
		return x, true
	case *Record:
		if x == nil {
			return ID{}, true
		}
		return x.id, true
	case bool:
		if x {
			return ID{}, false
		}
		return ID{}, true
	case int:
		return intID(int64(x))
	case int32:
		return intID(int64(x))
	case int64:
		return intID(x)
	case uint:
		if uint64(x) > math.MaxInt64 {
			return ID{}, false
		}
		return intID(int64(x))
	case uint32:
		return intID(int64(x))
	case uint64:
		if x > math.MaxInt64 {
			return ID{}, false
		}
		return intID(int64(x))
	case float64:
		if x != math.Trunc(x) || x > math.MaxInt64 {
			return ID{}, false
		}
		return intID(int64(x))
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			return ID{}, false
		}
		return intID(n)
	case string:
		return Local(x), true
	}
	return ID{}, false
}

func intID(n int64) (ID, bool) {
	if n < 0 {
		return ID{}, false
	}
	return Persisted(n), true
}
