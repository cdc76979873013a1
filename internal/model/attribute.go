package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Attribute はアカウントに付与される認可属性（key=value）を表す。
type Attribute struct {
	Key   string
	Value string
}

// String は属性を "key=value" 形式で返す。
func (a Attribute) String() string {
	return a.Key + "=" + a.Value
}

// ParseAttribute は "key=value" 形式のタグを最初の "=" で分割して属性に変換する。
// "=" を含まないタグは値が空の属性として扱う。
// カンマ区切り形式と往復できるよう、カンマを含むタグと空キーはエラーとする。
func ParseAttribute(tag string) (Attribute, error) {
	if strings.Contains(tag, ",") {
		return Attribute{}, fmt.Errorf("attribute %q must not contain a comma", tag)
	}
	key, value, _ := strings.Cut(tag, "=")
	key = strings.TrimSpace(key)
	if key == "" {
		return Attribute{}, fmt.Errorf("attribute %q has an empty key", tag)
	}
	return Attribute{Key: key, Value: value}, nil
}

// AttributeSet は順序付きの属性集合。
// 重複は許容するが特別な意味は持たない。空集合（ゲスト）も有効な値である。
type AttributeSet []Attribute

// ParseAttributeSet は "key=value" 形式のタグ列を属性集合に変換する。
// 入力の順序は保持される。
func ParseAttributeSet(tags []string) (AttributeSet, error) {
	set := make(AttributeSet, 0, len(tags))
	for _, tag := range tags {
		attr, err := ParseAttribute(tag)
		if err != nil {
			return nil, err
		}
		set = append(set, attr)
	}
	return set, nil
}

// ParseAttributeList はカンマ区切りの属性文字列（"role=user,team=devops"）を属性集合に変換する。
// 空文字列と空要素は無視する。
func ParseAttributeList(s string) (AttributeSet, error) {
	var tags []string
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		tags = append(tags, part)
	}
	return ParseAttributeSet(tags)
}

// MustParseAttributeSet はParseAttributeSetのパニック版。固定値の初期化用。
func MustParseAttributeSet(tags ...string) AttributeSet {
	set, err := ParseAttributeSet(tags)
	if err != nil {
		panic(err)
	}
	return set
}

// Strings は属性集合を "key=value" 形式の文字列スライスに変換する。
// 空集合の場合もnilではなく空スライスを返す。
func (s AttributeSet) Strings() []string {
	out := make([]string, len(s))
	for i, a := range s {
		out[i] = a.String()
	}
	return out
}

// String はカンマ区切り形式で属性集合を返す。
func (s AttributeSet) String() string {
	return strings.Join(s.Strings(), ",")
}

// Has は指定したキーと値の組を含むかを返す。
func (s AttributeSet) Has(key, value string) bool {
	for _, a := range s {
		if a.Key == key && a.Value == value {
			return true
		}
	}
	return false
}

// Values は指定キーの値を出現順に返す。
func (s AttributeSet) Values(key string) []string {
	var values []string
	for _, a := range s {
		if a.Key == key {
			values = append(values, a.Value)
		}
	}
	return values
}

// Equal は順序を含めて2つの属性集合が等しいかを返す。
func (s AttributeSet) Equal(other AttributeSet) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// MarshalJSON は属性集合を文字列配列としてエンコードする。
func (s AttributeSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Strings())
}

// UnmarshalJSON は文字列配列から属性集合をデコードする。
func (s *AttributeSet) UnmarshalJSON(data []byte) error {
	var tags []string
	if err := json.Unmarshal(data, &tags); err != nil {
		return err
	}
	set, err := ParseAttributeSet(tags)
	if err != nil {
		return err
	}
	*s = set
	return nil
}
