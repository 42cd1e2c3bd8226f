package objectstore

import (
	"fmt"
	"strings"
)

const scheme = "s3://"

// Location 标识一个对象：bucket + key
type Location struct {
	Bucket string
	Key    string
}

// ParseLocation 解析 s3://bucket/key 形式的位置引用
func ParseLocation(s string) (Location, error) {
	rest, ok := strings.CutPrefix(s, scheme)
	if !ok {
		return Location{}, fmt.Errorf("invalid object location %q: missing %s prefix", s, scheme)
	}
	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return Location{}, fmt.Errorf("invalid object location %q: bucket and key are required", s)
	}
	return Location{Bucket: bucket, Key: key}, nil
}

// String 返回 s3://bucket/key
func (l Location) String() string {
	return scheme + l.Bucket + "/" + l.Key
}

// IsZero 是否为空位置
func (l Location) IsZero() bool {
	return l.Bucket == "" && l.Key == ""
}

// JoinKey 拼接 key 前缀与名称，去掉多余的斜杠
func JoinKey(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	name = strings.TrimLeft(name, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
