package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"time"
)

// コーデックはSuperJSONのエンベロープ形式に倣い、値を
// {"json": <プレーンJSON>, "meta": {"values": {<パス>: ["Date"]}}}
// の形で運ぶ。time.TimeはRFC 3339（ナノ秒精度）の文字列として運ばれ、
// metaの型注釈によりJavaScriptクライアントはDateに復元できる。
// Goクライアントは型付きフィールドへのUnmarshalで復元するため、
// 日時が文字列のまま失われることはない（往復で等価）。

// envelope はコーデックのワイヤ形式。
type envelope struct {
	JSON json.RawMessage `json:"json"`
	Meta *envelopeMeta   `json:"meta,omitempty"`
}

// envelopeMeta はJSONに失われる型情報の注釈。
type envelopeMeta struct {
	Values map[string][]string `json:"values,omitempty"`
}

var timeType = reflect.TypeOf(time.Time{})

// Encode は値をエンベロープ形式のJSONに変換する。
func Encode(v interface{}) (json.RawMessage, error) {
	plain, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}

	env := envelope{JSON: plain}
	if values := collectDatePaths(v); len(values) > 0 {
		env.Meta = &envelopeMeta{Values: values}
	}

	out, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return out, nil
}

// Decode はエンベロープ形式のJSONを値に復元する。
// エンベロープでない素のJSONも受け付ける（後方互換のための許容）。
func Decode(data json.RawMessage, target interface{}) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err == nil && env.JSON != nil {
		if err := json.Unmarshal(env.JSON, target); err != nil {
			return fmt.Errorf("failed to unmarshal envelope payload: %w", err)
		}
		return nil
	}

	if err := json.Unmarshal(trimmed, target); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return nil
}

// collectDatePaths は値の中のtime.Timeフィールドのパスを収集する。
// パスはSuperJSONと同様にドット区切り（配列は添字）。ルート値は空文字列。
func collectDatePaths(v interface{}) map[string][]string {
	paths := make(map[string][]string)
	walkDates(reflect.ValueOf(v), "", paths)
	return paths
}

func walkDates(rv reflect.Value, path string, out map[string][]string) {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return
		}
		walkDates(rv.Elem(), path, out)

	case reflect.Struct:
		if rv.Type() == timeType {
			out[path] = []string{"Date"}
			return
		}
		t := rv.Type()
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if f.PkgPath != "" {
				continue // unexported
			}
			name, skip := jsonFieldName(f)
			if skip {
				continue
			}
			if f.Anonymous && name == "" {
				// タグなしの埋め込み構造体はJSON上フラット化される
				walkDates(rv.Field(i), path, out)
				continue
			}
			walkDates(rv.Field(i), joinPath(path, name), out)
		}

	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			walkDates(rv.Index(i), joinPath(path, strconv.Itoa(i)), out)
		}

	case reflect.Map:
		for _, k := range rv.MapKeys() {
			if k.Kind() != reflect.String {
				continue
			}
			walkDates(rv.MapIndex(k), joinPath(path, k.String()), out)
		}
	}
}

// jsonFieldName はフィールドのJSON名を返す。skipは`json:"-"`の場合にtrue。
// タグなしの埋め込みフィールドは空文字列を返す。
func jsonFieldName(f reflect.StructField) (name string, skip bool) {
	tag := f.Tag.Get("json")
	if tag == "-" {
		return "", true
	}
	if i := indexComma(tag); i >= 0 {
		tag = tag[:i]
	}
	if tag != "" {
		return tag, false
	}
	if f.Anonymous {
		return "", false
	}
	return f.Name, false
}

func indexComma(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			return i
		}
	}
	return -1
}

func joinPath(parent, child string) string {
	if parent == "" {
		return child
	}
	return parent + "." + child
}
