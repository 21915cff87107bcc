package log

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

type formatter struct {
	pattern string
	time    string
}

// Format renders entry with the pattern placeholders %time, %level, %field, %msg, %caller and %func.
func (f *formatter) Format(entry *logrus.Entry) ([]byte, error) {
	r := strings.NewReplacer(
		"%time", entry.Time.Format(f.time),
		"%level", strings.ToUpper(entry.Level.String()),
		"%field", buildFields(entry),
		"%msg", entry.Message,
		"%caller", getCaller(entry),
		"%func", getFunc(entry),
	)
	return []byte(r.Replace(f.pattern)), nil
}

// getCaller returns package/file.go:line of the log call.
func getCaller(entry *logrus.Entry) string {
	if !entry.HasCaller() {
		return "unknown"
	}
	file := filepath.Base(entry.Caller.File)
	pkg := ""
	if fn := entry.Caller.Function; fn != "" {
		// github.com/x/y/pkg.(*T).Method -> pkg
		lastSlash := strings.LastIndex(fn, "/")
		rest := fn[lastSlash+1:]
		if dot := strings.Index(rest, "."); dot > 0 {
			pkg = rest[:dot]
		}
	}
	return fmt.Sprintf("%s/%s:%d", pkg, file, entry.Caller.Line)
}

func getFunc(entry *logrus.Entry) string {
	if !entry.HasCaller() {
		return "unknown"
	}
	funcName := entry.Caller.Function
	if dotIdx := strings.LastIndex(funcName, "."); dotIdx != -1 && dotIdx+1 < len(funcName) {
		return funcName[dotIdx+1:]
	}
	return funcName
}

// buildFields renders entry fields as k=v pairs sorted by key.
func buildFields(entry *logrus.Entry) string {
	if len(entry.Data) == 0 {
		return ""
	}
	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]string, 0, len(keys))
	for _, key := range keys {
		val := entry.Data[key]
		stringVal, ok := val.(string)
		if !ok {
			if err, isErr := val.(error); isErr {
				stringVal = err.Error()
			} else {
				stringVal = fmt.Sprint(val)
			}
		}
		fields = append(fields, key+"="+stringVal)
	}
	return strings.Join(fields, ",")
}
