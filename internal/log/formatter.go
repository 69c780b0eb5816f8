package log

import (
	"fmt"
	"reflect"
	"runtime"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

const logrusPackage = "github.com/sirupsen/logrus"

var selfPackage = reflect.TypeOf(formatter{}).PkgPath()

type formatter struct {
	pattern    string
	time       string
	needCaller bool
}

// Format renders an entry through the pattern. Supported verbs are %time,
// %level, %field, %msg, %caller, %func, %goroutine and %n for a newline.
// A pattern without %n still ends every line with a newline.
func (f *formatter) Format(entry *logrus.Entry) ([]byte, error) {
	var frame runtime.Frame
	var found bool
	if f.needCaller {
		frame, found = callerFrame()
	}
	r := strings.NewReplacer(
		"%time", entry.Time.Format(f.time),
		"%level", strings.ToUpper(entry.Level.String()),
		"%field", buildFields(entry),
		"%msg", entry.Message,
		"%caller", getCaller(frame, found),
		"%func", getFunc(frame, found),
		"%goroutine", getGoroutineID(),
		"%n", "\n",
	)
	output := r.Replace(f.pattern)
	if !strings.HasSuffix(output, "\n") {
		output += "\n"
	}
	return []byte(output), nil
}

// callerFrame finds the first frame outside logrus and this package's
// adapter, which is the logging call site.
func callerFrame() (runtime.Frame, bool) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		f, more := frames.Next()
		internal := strings.HasPrefix(f.Function, logrusPackage) ||
			(strings.HasPrefix(f.Function, selfPackage+".") && !strings.HasSuffix(f.File, "_test.go"))
		if !internal {
			return f, true
		}
		if !more {
			return runtime.Frame{}, false
		}
	}
}

// getCaller returns package/file.go:line of the logging call site.
func getCaller(f runtime.Frame, ok bool) string {
	if !ok {
		return "unknown"
	}
	file := f.File
	if i := strings.LastIndex(file, "/"); i != -1 && i+1 < len(file) {
		file = file[i+1:]
	}

	pkg := ""
	if fn := f.Function; fn != "" {
		if i := strings.LastIndex(fn, "/"); i != -1 {
			fn = fn[i+1:]
		}
		pkg, _, _ = strings.Cut(fn, ".")
	}
	return fmt.Sprintf("%s/%s:%d", pkg, file, f.Line)
}

// getFunc keeps only the function or method name.
func getFunc(f runtime.Frame, ok bool) string {
	if !ok {
		return "unknown"
	}
	name := f.Function
	if i := strings.LastIndex(name, "."); i != -1 && i+1 < len(name) {
		return name[i+1:]
	}
	return name
}

func getGoroutineID() string {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	stack := strings.TrimPrefix(string(buf[:n]), "goroutine ")
	if id := strings.Fields(stack); len(id) > 0 {
		return id[0]
	}
	return "unknown"
}

func buildFields(entry *logrus.Entry) string {
	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]string, 0, len(keys))
	for _, k := range keys {
		val, ok := entry.Data[k].(string)
		if !ok {
			val = fmt.Sprint(entry.Data[k])
		}
		fields = append(fields, k+"="+val)
	}
	return strings.Join(fields, ",")
}
