package logger

import "fmt"

// Fields 把交替出现的键值对转换为字段列表，非字符串键使用 fmt.Sprint 转换。
func Fields(kv ...any) []Field {
	if len(kv) == 0 {
		return nil
	}
	out := make([]Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		out = append(out, Field{Key: key, Value: kv[i+1]})
	}
	return out
}
