package log

import (
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"

	"github.com/ohowe1/clipboard/internal/xerrors"
)

// errorAttrs expands err into the key/value pairs appended by Logger.Error.
func errorAttrs(err error, withLinks bool, maxLinks int) []any {
	surface, root := classifyTypes(err)
	kv := []any{
		"err", err,
		"error_type", surface,
		"cause_type", root,
	}
	if k := xerrors.KindOf(err); k != nil {
		kv = append(kv, "error_kind", k.Error())
	}
	if chain := errorChain(err); len(chain) > 1 {
		kv = append(kv, "error_chain", chain)
	}
	if withLinks {
		kv = append(kv, "error_links", chainLinks(err, maxLinks))
	}
	return kv
}

// errorChain lists distinct messages from outermost to innermost, including
// the members of an errors.Join at the top level.
func errorChain(err error) []string {
	out := make([]string, 0, 4)
	var prev string
	add := func(s string) {
		if s != prev {
			out = append(out, s)
			prev = s
		}
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		add(e.Error())
	}
	if m, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range m.Unwrap() {
			if e != nil {
				add(e.Error())
			}
		}
	}
	return out
}

func chainLinks(err error, max int) []map[string]any {
	links := make([]map[string]any, 0, 4)
	depth := 0
	for e := err; e != nil && (max <= 0 || depth < max); e = errors.Unwrap(e) {
		link := map[string]any{"msg": e.Error()}
		fn, file, line, ok := linkPosition(e)
		if ok {
			link["func"], link["file"], link["line"] = fn, file, line
		}
		if depth == 0 || ok {
			links = append(links, link)
		}
		depth++
	}
	return links
}

// linkPosition prefers the single call-site PC from Wrap/Mark and falls back
// to the first frame outside xerrors in a captured stack.
func linkPosition(e error) (fn, file string, line int, ok bool) {
	if hp, is := e.(hasPC); is && hp.PC() != 0 {
		fr, _ := runtime.CallersFrames([]uintptr{hp.PC()}).Next()
		return fr.Function, fr.File, fr.Line, true
	}
	hs, is := e.(hasStack)
	if !is {
		return "", "", 0, false
	}
	frames := runtime.CallersFrames(hs.StackPCs())
	for {
		fr, more := frames.Next()
		skip := strings.HasPrefix(fr.Function, "runtime.") ||
			isLoggingFrame(fr.Function) ||
			strings.Contains(fr.Function, "/internal/xerrors.")
		if !skip && fr.Function != "" {
			return fr.Function, fr.File, fr.Line, true
		}
		if !more {
			return "", "", 0, false
		}
	}
}

// classifyTypes reports the first concrete non-wrapper type in the chain and
// the innermost type.
func classifyTypes(err error) (surface, root string) {
	if err == nil {
		return "", ""
	}
	var last error
	for e := err; e != nil; e = errors.Unwrap(e) {
		last = e
		if surface != "" {
			continue
		}
		t := reflect.TypeOf(e)
		u := t
		for u.Kind() == reflect.Ptr {
			u = u.Elem()
		}
		if _, wrapper := e.(interface{ IsXerrorsWrapper() }); wrapper {
			continue
		}
		if u.PkgPath() == "fmt" && strings.HasPrefix(u.Name(), "wrapError") {
			continue
		}
		surface = t.String()
	}
	if surface == "" {
		surface = fmt.Sprintf("%T", err)
	}
	return surface, fmt.Sprintf("%T", last)
}
